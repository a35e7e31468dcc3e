//go:build !linux && !darwin

package osfs

import (
	"syscall"

	"github.com/xqyjlj/sftpserver/internal/statvfs"
)

// statvfsFromPath is grounded on the teacher's
// server_statvfs_stubs.go: platforms without a Statfs_t shape this
// package knows how to read report ENOTSUP.
func statvfsFromPath(string) (statvfs.Info, error) {
	return statvfs.Info{}, syscall.ENOTSUP
}
