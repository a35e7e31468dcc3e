// Package status implements the error-mapping layer (C3): translating
// host errno values into the version-specific SFTP status code range,
// and formatting the SSH_FXP_STATUS response body.
//
// Grounded on the teacher's errors.go (translateErrno/statusFromError),
// generalized from the teacher's 3-case switch to the full errno table
// spec.md section 4.3 enumerates, using golang.org/x/sys/unix so the
// table does not depend on build-specific syscall constant names.
package status

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/xqyjlj/sftpserver/internal/wire"
)

// Code is an SSH_FXP_STATUS status value.
type Code uint32

// Status codes across draft-ietf-secsh-filexfer-02 (v3) through -13 (v6).
const (
	OK                      Code = 0
	EOF                     Code = 1
	NoSuchFile              Code = 2
	PermissionDenied        Code = 3
	Failure                 Code = 4
	BadMessage              Code = 5
	NoConnection            Code = 6
	ConnectionLost          Code = 7
	OpUnsupported           Code = 8
	InvalidHandle           Code = 9
	NoSuchPath              Code = 10
	FileAlreadyExists       Code = 11
	WriteProtect            Code = 12
	NoMedia                 Code = 13
	NoSpaceOnFilesystem     Code = 14
	QuotaExceeded           Code = 15
	UnknownPrincipal        Code = 16
	LockConflict            Code = 17
	DirNotEmpty             Code = 18
	NotADirectory           Code = 19
	InvalidFilename         Code = 20
	LinkLoop                Code = 21
	CannotDelete            Code = 22
	InvalidParameter        Code = 23
	FileIsADirectory        Code = 24
	ByteRangeLockConflict   Code = 25
	ByteRangeLockRefused    Code = 26
	DeletePending           Code = 27
	FileCorrupt             Code = 28
	OwnerInvalid            Code = 29
	GroupInvalid            Code = 30
	NoMatchingByteRangeLock Code = 31
)

var names = map[Code]string{
	OK:                      "Success",
	EOF:                     "End of file",
	NoSuchFile:              "No such file",
	PermissionDenied:        "Permission denied",
	Failure:                 "Failure",
	BadMessage:              "Bad message",
	NoConnection:            "No connection",
	ConnectionLost:          "Connection lost",
	OpUnsupported:           "Operation unsupported",
	InvalidHandle:           "Invalid handle",
	NoSuchPath:              "No such path",
	FileAlreadyExists:       "File already exists",
	WriteProtect:            "Write protected filesystem",
	NoMedia:                 "No media",
	NoSpaceOnFilesystem:     "No space on filesystem",
	QuotaExceeded:           "Quota exceeded",
	UnknownPrincipal:        "Unknown principal",
	LockConflict:            "Lock conflict",
	DirNotEmpty:             "Directory not empty",
	NotADirectory:           "Not a directory",
	InvalidFilename:         "Invalid filename",
	LinkLoop:                "Link loop",
	CannotDelete:            "Cannot delete",
	InvalidParameter:        "Invalid parameter",
	FileIsADirectory:        "File is a directory",
	ByteRangeLockConflict:   "Byte range lock conflict",
	ByteRangeLockRefused:    "Byte range lock refused",
	DeletePending:           "Delete pending",
	FileCorrupt:             "File corrupt",
	OwnerInvalid:            "Owner invalid",
	GroupInvalid:            "Group invalid",
	NoMatchingByteRangeLock: "No matching byte range lock",
}

// String returns the human-readable text sent as the STATUS message
// field. Unknown codes (which should not occur once clamped) fall back
// to Failure's text.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return names[Failure]
}

// AnyStatus is the sentinel request value (-1 as an all-ones uint32)
// meaning "consult errno", per spec.md section 4.3.
const AnyStatus Code = 0xFFFFFFFF

// errnoTable maps host errno to SFTP status, per spec.md section 4.3.
// Ordered as the spec enumerates it; unknown errno values fall through
// to Failure.
var errnoTable = map[syscall.Errno]Code{
	0:                  OK,
	unix.EPERM:         PermissionDenied,
	unix.EACCES:        PermissionDenied,
	unix.ENOENT:        NoSuchFile,
	unix.ENOSPC:        NoSpaceOnFilesystem,
	unix.ELOOP:         LinkLoop,
	unix.EDQUOT:        QuotaExceeded,
	unix.ENAMETOOLONG:  InvalidFilename,
	unix.ENOTEMPTY:     DirNotEmpty,
	unix.EIO:           FileCorrupt,
	unix.ENOTDIR:       NotADirectory,
	unix.EISDIR:        FileIsADirectory,
	unix.EEXIST:        FileAlreadyExists,
	unix.EROFS:         WriteProtect,
}

// FromErrno maps a host errno to an SFTP status code. Errno values not
// present in the table map to Failure.
func FromErrno(errno syscall.Errno) Code {
	if c, ok := errnoTable[errno]; ok {
		return c
	}
	return Failure
}

// FromError inspects err (which may wrap a syscall.Errno, an
// *os.PathError, or be nil) and returns the matching SFTP status code.
// This is the general entry point handlers use instead of reaching for
// syscall.Errno directly.
func FromError(err error) Code {
	if err == nil {
		return OK
	}
	var errno syscall.Errno
	if asErrno(err, &errno) {
		return FromErrno(errno)
	}
	return Failure
}

// asErrno unwraps err looking for a syscall.Errno, following
// os.PathError/os.LinkError-style Unwrap chains without importing os
// (avoiding an import cycle with handler packages that wrap os errors).
func asErrno(err error, target *syscall.Errno) bool {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			*target = errno
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// MaxStatus returns the maximum status code value a descriptor of the
// given protocol version may emit as a *handler-returned* status.
// Codes above this are clamped to Failure by Clamp, called from
// send_errno_status-equivalent code on handler results only: the
// dispatcher's own direct responses (OP_UNSUPPORTED for an
// unrecognized request type, BAD_MESSAGE for a parse failure) are
// never routed through Clamp, since section 7's error taxonomy keeps
// "dispatch errors" and "handler errors" on separate paths.
//
// Values: v3 and v4 stop at Failure itself (section 8 scenario 6: a
// v6-only LOCK_CONFLICT handler result clamps to FAILURE under v3);
// v5 adds the codes through NoMedia; v6 adds the rest through
// NoMatchingByteRangeLock (section 4.3: "5 added new codes, 6 added
// more").
func MaxStatus(version uint32) Code {
	switch {
	case version <= 4:
		return Failure
	case version == 5:
		return NoMedia
	default:
		return NoMatchingByteRangeLock
	}
}

// Clamp substitutes Failure for any code exceeding max, per spec.md
// section 4.3.
func Clamp(code Code, max Code) Code {
	if code > max {
		return Failure
	}
	return code
}

// Message is the fully formed SSH_FXP_STATUS response body:
//
//	u8 typ | u32 id | u32 status | string message | string "en"
//
// typ is the caller's SSH_FXP_STATUS type byte (constant across
// versions, but passed in rather than imported to avoid a dependency
// cycle with the protocol package).
func Message(typ uint8, id uint32, code Code, text string) []byte {
	if text == "" {
		text = code.String()
	}
	var w wire.Writer
	w.PutUint8(typ)
	w.PutUint32(id)
	w.PutUint32(uint32(code))
	w.PutString(text)
	w.PutString("en")
	return w.Bytes()
}
