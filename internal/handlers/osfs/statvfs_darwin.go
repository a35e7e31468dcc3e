//go:build darwin

package osfs

import (
	"syscall"

	"github.com/xqyjlj/sftpserver/internal/statvfs"
)

// statvfsFromPath is grounded on the teacher's
// server_statvfs_darwin.go statvfsFromStatfst.
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
		FilesAvail:  stat.Ffree,
		FSID:        uint64(uint32(stat.Fsid.Val[1]))<<32 | uint64(uint32(stat.Fsid.Val[0])),
		MaxNameLen:  1024, // man 2 statfs: #define MAXPATHLEN 1024
	}
	if stat.Flags&0x1 != 0 { // MNT_RDONLY
		info.Flag |= statvfs.FlagReadonly
	}
	if stat.Flags&0x8 != 0 { // MNT_NOSUID
		info.Flag |= statvfs.FlagNoSetUID
	}
	return info, nil
}
