package serialize

import (
	"testing"

	"github.com/xqyjlj/sftpserver/internal/wire"
)

func packString(w *wire.Writer, s string) { w.PutString(s) }

func TestDeriveKeysReadOnlyOpsHaveNoKeys(t *testing.T) {
	var w wire.Writer
	packString(&w, "/a/b")
	for _, typ := range []uint8{7, 17, 8, 19, 16, 5, 11, 12} { // Lstat..Readdir
		if got := DeriveKeys(typ, w.Bytes()); got != nil {
			t.Fatalf("DeriveKeys(%d) = %v, want nil", typ, got)
		}
	}
}

func TestDeriveKeysCloseKeysOnHandle(t *testing.T) {
	var w wire.Writer
	packString(&w, "handle-1")
	got := DeriveKeys(4, w.Bytes()) // TypeClose
	if len(got) != 1 || got[0] != "handle-1" {
		t.Fatalf("DeriveKeys(Close) = %v", got)
	}
}

func TestDeriveKeysRenameKeysBothPaths(t *testing.T) {
	var w wire.Writer
	packString(&w, "/old")
	packString(&w, "/new")
	got := DeriveKeys(18, w.Bytes()) // TypeRename
	if len(got) != 2 || got[0] != "/old" || got[1] != "/new" {
		t.Fatalf("DeriveKeys(Rename) = %v", got)
	}
}

func TestDeriveKeysPosixRenameExtensionKeysBothPaths(t *testing.T) {
	var w wire.Writer
	packString(&w, "posix-rename@openssh.com")
	packString(&w, "/old")
	packString(&w, "/new")
	got := DeriveKeys(200, w.Bytes()) // TypeExtended
	if len(got) != 2 || got[0] != "/old" || got[1] != "/new" {
		t.Fatalf("DeriveKeys(posix-rename) = %v", got)
	}
}

func TestDeriveKeysStatvfsExtensionHasNoKeys(t *testing.T) {
	var w wire.Writer
	packString(&w, "statvfs@openssh.com")
	packString(&w, "/")
	if got := DeriveKeys(200, w.Bytes()); got != nil { // TypeExtended
		t.Fatalf("DeriveKeys(statvfs) = %v, want nil", got)
	}
}

func TestDeriveKeysOpenOnlyKeysMutatingFlags(t *testing.T) {
	var w wire.Writer
	packString(&w, "/f")
	w.PutUint32(1) // PFlagRead only: non-mutating
	if got := DeriveKeys(3, w.Bytes()); got != nil { // TypeOpen
		t.Fatalf("DeriveKeys(Open, read-only) = %v, want nil", got)
	}

	w = wire.Writer{}
	packString(&w, "/f")
	w.PutUint32(1 << 3) // PFlagCreate: mutating
	got := DeriveKeys(3, w.Bytes())
	if len(got) != 1 || got[0] != "/f" {
		t.Fatalf("DeriveKeys(Open, create) = %v", got)
	}
}
