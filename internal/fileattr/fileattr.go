// Package fileattr implements the v3-style SFTP attribute codec (the
// wire shape of FileAttr) and the v3 pflag bits, shared by the
// dispatch registry and every Handlers implementation so they agree
// on one Go-native representation of "file attributes" regardless of
// which protocol version is in use.
//
// Grounded on the teacher's attrs.go, attrs_unix.go, and pflags.go,
// carried over largely unchanged since the wire shape here is exactly
// the "type-specific body" spec.md section 6 delegates to handlers,
// not something the dispatch core (C1-C7) interprets.
package fileattr

import (
	"os"
	"syscall"
	"time"

	"github.com/xqyjlj/sftpserver/internal/wire"
)

// Flag marks which fields of an Attr are present on the wire.
type Flag uint32

const (
	FlagSize Flag = 1 << iota
	FlagUIDGID
	FlagPermissions
	FlagAcModTime
	// -- room left in the v3 protocol for more flag bits --
	FlagExtended Flag = 1 << 31
)

// Extension is one SFTP attribute extension pair.
type Extension struct {
	Name string
	Data string
}

// Attr is the Go-idiomatic representation of the attributes attached
// to OPEN/SETSTAT/FSETSTAT requests and STAT-family responses.
type Attr struct {
	Flags           Flag
	Size            uint64
	UID, GID        uint32
	Perms           os.FileMode
	AcTime, ModTime time.Time
	Extensions      []Extension
}

// Decode reads an Attr from r per draft-ietf-secsh-filexfer-02 section 5.
func Decode(r *wire.Reader) (Attr, error) {
	var a Attr
	flags, err := r.TakeUint32()
	if err != nil {
		return a, err
	}
	a.Flags = Flag(flags)

	if a.Flags&FlagSize != 0 {
		if a.Size, err = r.TakeUint64(); err != nil {
			return a, err
		}
	}
	if a.Flags&FlagUIDGID != 0 {
		if a.UID, err = r.TakeUint32(); err != nil {
			return a, err
		}
		if a.GID, err = r.TakeUint32(); err != nil {
			return a, err
		}
	}
	if a.Flags&FlagPermissions != 0 {
		mode, err := r.TakeUint32()
		if err != nil {
			return a, err
		}
		a.Perms = ToFileMode(mode)
	}
	if a.Flags&FlagAcModTime != 0 {
		atime, err := r.TakeUint32()
		if err != nil {
			return a, err
		}
		mtime, err := r.TakeUint32()
		if err != nil {
			return a, err
		}
		a.AcTime = time.Unix(int64(atime), 0)
		a.ModTime = time.Unix(int64(mtime), 0)
	}
	if a.Flags&FlagExtended != 0 {
		count, err := r.TakeUint32()
		if err != nil {
			return a, err
		}
		a.Extensions = make([]Extension, count)
		for i := range a.Extensions {
			if a.Extensions[i].Name, err = r.TakeString(); err != nil {
				return a, err
			}
			if a.Extensions[i].Data, err = r.TakeString(); err != nil {
				return a, err
			}
		}
	}
	return a, nil
}

// Encode writes a into w.
func Encode(w *wire.Writer, a Attr) {
	w.PutUint32(uint32(a.Flags))
	if a.Flags&FlagSize != 0 {
		w.PutUint64(a.Size)
	}
	if a.Flags&FlagUIDGID != 0 {
		w.PutUint32(a.UID)
		w.PutUint32(a.GID)
	}
	if a.Flags&FlagPermissions != 0 {
		w.PutUint32(FromFileMode(a.Perms))
	}
	if a.Flags&FlagAcModTime != 0 {
		w.PutUint32(uint32(a.AcTime.Unix()))
		w.PutUint32(uint32(a.ModTime.Unix()))
	}
	if a.Flags&FlagExtended != 0 {
		w.PutUint32(uint32(len(a.Extensions)))
		for _, ext := range a.Extensions {
			w.PutString(ext.Name)
			w.PutString(ext.Data)
		}
	}
}

// FromFileInfo builds an Attr from a Go os.FileInfo, the shape every
// Handlers implementation returns from Stat/Lstat/Fstat/List.
func FromFileInfo(fi os.FileInfo) Attr {
	if a, ok := fi.Sys().(*Attr); ok {
		return *a
	}
	mtime := fi.ModTime()
	a := Attr{
		Flags:   FlagSize | FlagPermissions | FlagAcModTime,
		Size:    uint64(fi.Size()),
		Perms:   fi.Mode(),
		AcTime:  mtime,
		ModTime: mtime,
	}
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		a.Flags |= FlagUIDGID
		a.UID = stat.Uid
		a.GID = stat.Gid
	}
	return a
}

// ToFileMode converts SFTP v3 permission/mode bits to os.FileMode.
func ToFileMode(mode uint32) os.FileMode {
	fm := os.FileMode(mode & 0777)
	switch mode & syscall.S_IFMT {
	case syscall.S_IFBLK:
		fm |= os.ModeDevice
	case syscall.S_IFCHR:
		fm |= os.ModeDevice | os.ModeCharDevice
	case syscall.S_IFDIR:
		fm |= os.ModeDir
	case syscall.S_IFIFO:
		fm |= os.ModeNamedPipe
	case syscall.S_IFLNK:
		fm |= os.ModeSymlink
	case syscall.S_IFSOCK:
		fm |= os.ModeSocket
	}
	if mode&syscall.S_ISGID != 0 {
		fm |= os.ModeSetgid
	}
	if mode&syscall.S_ISUID != 0 {
		fm |= os.ModeSetuid
	}
	if mode&syscall.S_ISVTX != 0 {
		fm |= os.ModeSticky
	}
	return fm
}

// FromFileMode converts an os.FileMode to SFTP v3 permission/mode bits.
func FromFileMode(mode os.FileMode) uint32 {
	ret := uint32(0)
	switch {
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		ret |= syscall.S_IFCHR
	case mode&os.ModeDevice != 0:
		ret |= syscall.S_IFBLK
	case mode&os.ModeDir != 0:
		ret |= syscall.S_IFDIR
	case mode&os.ModeSymlink != 0:
		ret |= syscall.S_IFLNK
	case mode&os.ModeNamedPipe != 0:
		ret |= syscall.S_IFIFO
	case mode&os.ModeSocket != 0:
		ret |= syscall.S_IFSOCK
	case mode&os.ModeType == 0:
		ret |= syscall.S_IFREG
	}
	if mode&os.ModeSetgid != 0 {
		ret |= syscall.S_ISGID
	}
	if mode&os.ModeSetuid != 0 {
		ret |= syscall.S_ISUID
	}
	if mode&os.ModeSticky != 0 {
		ret |= syscall.S_ISVTX
	}
	ret |= uint32(mode & os.ModePerm)
	return ret
}

// PFlag is the SSH_FXP_OPEN bit set (v3 style; v5+ defines a richer
// flags/access-mask pair, and internal/protocol's OpenFlagMask is what
// the v5/v6 VERSION blocks advertise, but the registry's OPEN decoder
// reads only this v3 layout at every negotiated version).
type PFlag uint32

const (
	PFlagRead PFlag = 1 << iota
	PFlagWrite
	PFlagAppend
	PFlagCreate
	PFlagTruncate
	PFlagExclusive
)

// OS converts SFTP pflags to os package open flags.
func (pf PFlag) OS() (f int) {
	switch {
	case pf&PFlagRead != 0 && pf&PFlagWrite != 0:
		f |= os.O_RDWR
	case pf&PFlagWrite != 0:
		f |= os.O_WRONLY
	default:
		f |= os.O_RDONLY
	}
	if pf&PFlagAppend != 0 {
		f |= os.O_APPEND
	}
	if pf&PFlagCreate != 0 {
		f |= os.O_CREATE
	}
	if pf&PFlagTruncate != 0 {
		f |= os.O_TRUNC
	}
	if pf&PFlagExclusive != 0 {
		f |= os.O_EXCL
	}
	return f
}

// Mutates reports whether these open flags mutate the filesystem
// namespace or file contents, for the dispatcher's readonly check and
// serialization key derivation.
func (pf PFlag) Mutates() bool {
	return pf&(PFlagWrite|PFlagCreate|PFlagTruncate) != 0
}
