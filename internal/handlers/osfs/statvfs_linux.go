//go:build linux

package osfs

import (
	"syscall"

	"github.com/xqyjlj/sftpserver/internal/statvfs"
)

// statvfsFromPath is grounded on the teacher's
// server_statvfs_linux.go statvfsFromStatfst.
func statvfsFromPath(path string) (statvfs.Info, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return statvfs.Info{}, err
	}
	info := statvfs.Info{
		BlockSize:   uint64(stat.Bsize),
		FBlockSize:  uint64(stat.Bsize),
		Blocks:      stat.Blocks,
		BlocksFree:  stat.Bfree,
		BlocksAvail: stat.Bavail,
		Files:       stat.Files,
		FilesFree:   stat.Ffree,
		FilesAvail:  stat.Ffree, // no direct unprivileged-caller figure on Linux
		MaxNameLen:  uint64(stat.Namelen),
	}
	if stat.Flags&0x1 != 0 { // ST_RDONLY
		info.Flag |= statvfs.FlagReadonly
	}
	if stat.Flags&0x2 != 0 { // ST_NOSUID
		info.Flag |= statvfs.FlagNoSetUID
	}
	return info, nil
}
