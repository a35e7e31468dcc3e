// Package osfs implements sftpserver.Handlers backed by the real
// filesystem. Request paths are used as given: the package applies no
// root directory or confinement of its own.
//
// Grounded on the teacher's handler_os_fs.go (handlePacket's os.*
// calls) and handler_host_fs.go (hostFS/hostFile, AllowWrite gating),
// merged into the expanded Handlers interface.
package osfs

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"

	sftpserver "github.com/xqyjlj/sftpserver"
	"github.com/xqyjlj/sftpserver/internal/fileattr"
	"github.com/xqyjlj/sftpserver/internal/statvfs"
)

// FS serves SFTP requests directly off the host filesystem. AllowWrite
// mirrors the teacher's HostFSOpts: when false, every mutating call
// fails with permission-denied regardless of the session's own
// Config.ReadOnly flag (the dispatcher already enforces that one;
// this is a second, handler-level guard for embedders that construct
// FS directly).
type FS struct {
	AllowWrite bool
}

// New returns an FS. allowWrite enables OpenFile/Mkdir/Setstat/Rename/
// Symlink/Remove/Rmdir/PosixRename.
func New(allowWrite bool) *FS {
	return &FS{AllowWrite: allowWrite}
}

var errPermDenied = errors.Wrap(syscall.EACCES, "osfs: server is read-only")

type fileHandle struct {
	os.FileInfo
	raw *os.File
}

func (f fileHandle) ReadAt(dst []byte, offset int64) (int, error) { return f.raw.ReadAt(dst, offset) }
func (f fileHandle) WriteAt(d []byte, offset int64) (int, error)  { return f.raw.WriteAt(d, offset) }
func (f fileHandle) Close() error                                 { return f.raw.Close() }

func (fs *FS) Get(r *sftpserver.Request) (io.ReaderAt, error) {
	f, err := os.Open(r.Filepath)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return fileHandle{fi, f}, nil
}

func (fs *FS) OpenFile(r *sftpserver.Request) (io.WriterAt, error) {
	if !fs.AllowWrite && r.PFlags.Mutates() {
		return nil, errPermDenied
	}
	f, err := os.OpenFile(r.Filepath, r.PFlags.OS(), 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return fileHandle{fi, f}, nil
}

// dirHandle adapts *os.File's Readdir to sftpserver.ListerAt.
type dirHandle struct {
	*os.File
}

func (d dirHandle) ListAt(ls []os.FileInfo, offset int64) (int, error) {
	// os.File.Readdir has no offset parameter; a fresh dirHandle is
	// created per Opendir, so offset tracking lives in the dispatcher
	// and this only ever sees monotonically increasing calls, matching
	// os.File's own internal cursor.
	entries, err := d.Readdir(len(ls))
	n := copy(ls, entries)
	if err == io.EOF || (err == nil && n < len(ls)) {
		return n, io.EOF
	}
	return n, err
}

func (fs *FS) List(r *sftpserver.Request) (sftpserver.ListerAt, error) {
	f, err := os.Open(r.Filepath)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !fi.IsDir() {
		f.Close()
		return nil, &os.PathError{Op: "opendir", Path: r.Filepath, Err: syscall.ENOTDIR}
	}
	return dirHandle{f}, nil
}

func (fs *FS) Stat(r *sftpserver.Request) (os.FileInfo, error)  { return os.Stat(r.Filepath) }
func (fs *FS) Lstat(r *sftpserver.Request) (os.FileInfo, error) { return os.Lstat(r.Filepath) }

func (fs *FS) ReadLink(r *sftpserver.Request) (string, error) {
	return os.Readlink(r.Filepath)
}

func (fs *FS) Setstat(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	return applyAttrs(r.Filepath, r.Attrs)
}

func applyAttrs(name string, attr fileattr.Attr) error {
	if attr.Flags&fileattr.FlagSize != 0 {
		if err := os.Truncate(name, int64(attr.Size)); err != nil {
			return err
		}
	}
	if attr.Flags&fileattr.FlagPermissions != 0 {
		if err := os.Chmod(name, attr.Perms); err != nil {
			return err
		}
	}
	if attr.Flags&fileattr.FlagAcModTime != 0 {
		if err := os.Chtimes(name, attr.AcTime, attr.ModTime); err != nil {
			return err
		}
	}
	if attr.Flags&fileattr.FlagUIDGID != 0 {
		return os.Chown(name, int(attr.UID), int(attr.GID))
	}
	return nil
}

func (fs *FS) Rename(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	if _, err := os.Stat(r.Target); err == nil {
		return &os.LinkError{Op: "rename", Old: r.Filepath, New: r.Target, Err: os.ErrExist}
	}
	return os.Rename(r.Filepath, r.Target)
}

// PosixRename allows overwriting the target, per
// posix-rename@openssh.com.
func (fs *FS) PosixRename(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	return os.Rename(r.Filepath, r.Target)
}

func (fs *FS) Rmdir(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	info, err := os.Lstat(r.Filepath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "rmdir", Path: r.Filepath, Err: syscall.ENOTDIR}
	}
	return os.Remove(r.Filepath)
}

func (fs *FS) Mkdir(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	perm := os.FileMode(0755)
	if r.Attrs.Flags&fileattr.FlagPermissions != 0 {
		perm = r.Attrs.Perms
	}
	return os.Mkdir(r.Filepath, perm)
}

func (fs *FS) Symlink(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	return os.Symlink(r.Target, r.Filepath)
}

func (fs *FS) Remove(r *sftpserver.Request) error {
	if !fs.AllowWrite {
		return errPermDenied
	}
	info, err := os.Lstat(r.Filepath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &os.PathError{Op: "remove", Path: r.Filepath, Err: syscall.EISDIR}
	}
	return os.Remove(r.Filepath)
}

func (fs *FS) Realpath(r *sftpserver.Request) (string, error) {
	return filepath.Abs(r.Filepath)
}

func (fs *FS) Statvfs(r *sftpserver.Request) (statvfs.Info, error) {
	return statvfsFromPath(r.Filepath)
}
