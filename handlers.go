package sftpserver

import (
	"io"
	"os"

	"github.com/xqyjlj/sftpserver/internal/fileattr"
	"github.com/xqyjlj/sftpserver/internal/statvfs"
)

// ListerAt does for directory listings what io.ReaderAt does for
// files: ListAt copies as many entries as fit into ls starting at
// offset and returns io.EOF once there are no more. Grounded
// unchanged on the teacher's server.go ListerAt.
type ListerAt interface {
	ListAt(ls []os.FileInfo, offset int64) (int, error)
}

// Request is the handler-facing view of one job: the path(s) and
// attributes a Handlers method needs, stripped of the wire framing
// and serialization bookkeeping the dispatcher (session.go) owns.
// Grounded on the teacher's request.go Request, trimmed to the
// fields handlers actually read — this engine keeps open-handle
// state (the teacher's state/ListerAt/lsoffset bundle) in the
// dispatcher's handle table instead of on the Request, since handle
// lifetime is core dispatch state per spec.md section 3, not
// something delegated to handlers.
type Request struct {
	Filepath string
	Target   string // rename/symlink/link destination
	PFlags   fileattr.PFlag
	Attrs    fileattr.Attr
}

// Handlers implements the type-specific bodies spec.md section 6
// delegates outside the hard core: everything the dispatcher cannot
// decide from the wire shape alone. Two implementations ship with
// this engine (internal/handlers/memfs and internal/handlers/osfs);
// callers may supply their own.
type Handlers interface {
	Get(*Request) (io.ReaderAt, error)
	OpenFile(*Request) (io.WriterAt, error)
	List(*Request) (ListerAt, error)
	Stat(*Request) (os.FileInfo, error)
	Lstat(*Request) (os.FileInfo, error)
	ReadLink(*Request) (string, error)
	Setstat(*Request) error
	Rename(*Request) error
	Rmdir(*Request) error
	Mkdir(*Request) error
	Symlink(*Request) error
	Remove(*Request) error
	Realpath(*Request) (string, error)

	// PosixRename and Statvfs back the posix-rename@openssh.com and
	// statvfs@openssh.com extensions this engine serves at every
	// negotiated version (SPEC_FULL.md's domain-stack extensions; their
	// names are listed only in the v5/v6 VERSION capability blocks). A
	// Handlers value that
	// does not support them should return an error wrapping
	// syscall.ENOTSUP or similar; the registry maps any error the
	// same way it does for core operations.
	PosixRename(*Request) error
	Statvfs(*Request) (statvfs.Info, error)
}
