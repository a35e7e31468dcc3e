// Package statvfs carries the statvfs@openssh.com extension's reply
// shape: a filesystem-capacity summary independent of any particular
// handler's storage backend.
//
// Grounded on the teacher's packets_extended.go (fxpExtVfsPkt /
// StatVFS) and server_statvfs_linux.go / server_statvfs_darwin.go,
// reshaped into a plain value type a Handlers implementation returns
// rather than a packet type the core wire layer knows about.
package statvfs

const (
	FlagReadonly = 0x1
	FlagNoSetUID = 0x2
)

// Info mirrors POSIX struct statvfs, as carried by the OpenSSH
// statvfs@openssh.com extension reply.
type Info struct {
	BlockSize   uint64
	FBlockSize  uint64
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
	Files       uint64
	FilesFree   uint64
	FilesAvail  uint64
	FSID        uint64
	Flag        uint64
	MaxNameLen  uint64
}

// TotalSpace is the filesystem's total capacity in bytes.
func (i Info) TotalSpace() uint64 { return i.FBlockSize * i.Blocks }

// FreeSpace is the filesystem's free capacity in bytes.
func (i Info) FreeSpace() uint64 { return i.FBlockSize * i.BlocksFree }

// Readonly reports the FlagReadonly bit.
func (i Info) Readonly() bool { return i.Flag&FlagReadonly != 0 }
