package status

import (
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestFromErrnoKnownCases(t *testing.T) {
	cases := map[syscall.Errno]Code{
		unix.EPERM:        PermissionDenied,
		unix.EACCES:       PermissionDenied,
		unix.ENOENT:       NoSuchFile,
		unix.ENOSPC:       NoSpaceOnFilesystem,
		unix.ELOOP:        LinkLoop,
		unix.EDQUOT:       QuotaExceeded,
		unix.ENAMETOOLONG: InvalidFilename,
		unix.ENOTEMPTY:    DirNotEmpty,
		unix.EIO:          FileCorrupt,
		unix.ENOTDIR:      NotADirectory,
		unix.EISDIR:       FileIsADirectory,
		unix.EEXIST:       FileAlreadyExists,
		unix.EROFS:        WriteProtect,
		syscall.Errno(0):  OK,
	}
	for errno, want := range cases {
		if got := FromErrno(errno); got != want {
			t.Errorf("FromErrno(%v) = %v, want %v", errno, got, want)
		}
	}
}

func TestFromErrnoUnknownIsFailure(t *testing.T) {
	if got := FromErrno(syscall.Errno(0x7fffffff)); got != Failure {
		t.Errorf("unknown errno = %v, want Failure", got)
	}
}

func TestClampByVersion(t *testing.T) {
	// Scenario 6 of spec.md section 8: LOCK_CONFLICT (17, a v6 code)
	// returned by a handler clamps to FAILURE under an active v3
	// descriptor, whose max-status is FAILURE (4) itself.
	v3Max := MaxStatus(3)
	if v3Max != Failure {
		t.Fatalf("MaxStatus(3) = %v, want Failure", v3Max)
	}
	if got := Clamp(LockConflict, v3Max); got != Failure {
		t.Fatalf("Clamp(LockConflict, v3) = %v, want Failure", got)
	}

	// OP_UNSUPPORTED from a handler also clamps under v3, since v3's
	// ceiling is FAILURE; the dispatcher's own OP_UNSUPPORTED reply to
	// an unrecognized request type (scenario 4) never goes through
	// Clamp at all, so the two scenarios don't conflict.
	if got := Clamp(OpUnsupported, v3Max); got != Failure {
		t.Fatalf("Clamp(OpUnsupported, v3) = %v, want Failure", got)
	}

	// Under v6 the full range passes through.
	if got := Clamp(LockConflict, MaxStatus(6)); got != LockConflict {
		t.Fatalf("Clamp(LockConflict, v6) = %v, want LockConflict", got)
	}
}

func TestMessageShape(t *testing.T) {
	b := Message(101, 42, NoSuchFile, "")
	if b[0] != 101 {
		t.Fatalf("type byte = %d, want 101", b[0])
	}
}
