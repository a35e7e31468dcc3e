package memfs

import (
	"io"
	"os"
	"testing"

	sftpserver "github.com/xqyjlj/sftpserver"
	"github.com/xqyjlj/sftpserver/internal/fileattr"
)

func TestMkdirThenLstat(t *testing.T) {
	fs := New()
	if err := fs.Mkdir(&sftpserver.Request{Filepath: "/sub"}); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	fi, err := fs.Lstat(&sftpserver.Request{Filepath: "/sub"})
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if !fi.IsDir() {
		t.Fatal("expected /sub to be a directory")
	}
}

func TestMkdirMissingParentFails(t *testing.T) {
	fs := New()
	if err := fs.Mkdir(&sftpserver.Request{Filepath: "/a/b"}); err == nil {
		t.Fatal("expected error creating a directory under a missing parent")
	}
}

func TestOpenFileWriteThenReadRoundTrips(t *testing.T) {
	fs := New()
	w, err := fs.OpenFile(&sftpserver.Request{
		Filepath: "/f",
		PFlags:   fileattr.PFlagWrite | fileattr.PFlagCreate,
	})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := w.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	r, err := fs.Get(&sftpserver.Request{Filepath: "/f"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("ReadAt = %q, want hello", buf[:n])
	}
}

func TestOpenFileTruncateClearsContent(t *testing.T) {
	fs := New()
	w, _ := fs.OpenFile(&sftpserver.Request{Filepath: "/f", PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate})
	w.WriteAt([]byte("hello"), 0)

	w2, err := fs.OpenFile(&sftpserver.Request{Filepath: "/f", PFlags: fileattr.PFlagWrite | fileattr.PFlagTruncate})
	if err != nil {
		t.Fatalf("OpenFile truncate: %v", err)
	}
	r := w2.(io.ReaderAt)
	buf := make([]byte, 5)
	n, _ := r.ReadAt(buf, 0)
	if n != 0 {
		t.Fatalf("expected truncated file to read 0 bytes, got %d", n)
	}
}

func TestSymlinkAndReadLink(t *testing.T) {
	fs := New()
	fs.OpenFile(&sftpserver.Request{Filepath: "/target", PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate})
	if err := fs.Symlink(&sftpserver.Request{Filepath: "/link", Target: "/target"}); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	target, err := fs.ReadLink(&sftpserver.Request{Filepath: "/link"})
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if target != "/target" {
		t.Fatalf("ReadLink = %q, want /target", target)
	}
}

func TestSymlinkAllowsDanglingTarget(t *testing.T) {
	fs := New()
	if err := fs.Symlink(&sftpserver.Request{Filepath: "/dangling", Target: "/nowhere"}); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	target, err := fs.ReadLink(&sftpserver.Request{Filepath: "/dangling"})
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if target != "/nowhere" {
		t.Fatalf("ReadLink = %q, want /nowhere", target)
	}
}

func TestRenameRejectsExistingTarget(t *testing.T) {
	fs := New()
	fs.Mkdir(&sftpserver.Request{Filepath: "/a"})
	fs.Mkdir(&sftpserver.Request{Filepath: "/b"})
	err := fs.Rename(&sftpserver.Request{Filepath: "/a", Target: "/b"})
	if err == nil {
		t.Fatal("expected Rename to reject an existing target")
	}
}

func TestPosixRenameOverwritesTarget(t *testing.T) {
	fs := New()
	fs.Mkdir(&sftpserver.Request{Filepath: "/a"})
	fs.Mkdir(&sftpserver.Request{Filepath: "/b"})
	if err := fs.PosixRename(&sftpserver.Request{Filepath: "/a", Target: "/b"}); err != nil {
		t.Fatalf("PosixRename: %v", err)
	}
	if _, err := fs.Lstat(&sftpserver.Request{Filepath: "/b"}); err != nil {
		t.Fatalf("expected /b to exist after PosixRename: %v", err)
	}
	if _, err := fs.Lstat(&sftpserver.Request{Filepath: "/a"}); err == nil {
		t.Fatal("expected /a to be gone after PosixRename")
	}
}

func TestListReturnsChildrenSorted(t *testing.T) {
	fs := New()
	fs.Mkdir(&sftpserver.Request{Filepath: "/dir"})
	fs.OpenFile(&sftpserver.Request{Filepath: "/dir/b", PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate})
	fs.OpenFile(&sftpserver.Request{Filepath: "/dir/a", PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate})

	lister, err := fs.List(&sftpserver.Request{Filepath: "/dir"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	entries := make([]os.FileInfo, 4)
	n, err := lister.ListAt(entries, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("ListAt: %v", err)
	}
	if n != 2 {
		t.Fatalf("ListAt returned %d entries, want 2", n)
	}
	if entries[0].Name() != "a" || entries[1].Name() != "b" {
		t.Fatalf("ListAt order = %q, %q, want a, b", entries[0].Name(), entries[1].Name())
	}
}

func TestRemoveAndRmdir(t *testing.T) {
	fs := New()
	fs.Mkdir(&sftpserver.Request{Filepath: "/dir"})
	fs.OpenFile(&sftpserver.Request{Filepath: "/dir/f", PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate})

	if err := fs.Remove(&sftpserver.Request{Filepath: "/dir/f"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fs.Lstat(&sftpserver.Request{Filepath: "/dir/f"}); err == nil {
		t.Fatal("expected /dir/f to be gone after Remove")
	}

	if err := fs.Rmdir(&sftpserver.Request{Filepath: "/dir"}); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if _, err := fs.Lstat(&sftpserver.Request{Filepath: "/dir"}); err == nil {
		t.Fatal("expected /dir to be gone after Rmdir")
	}
}

func TestRealpathCleansRelativeInput(t *testing.T) {
	fs := New()
	resolved, err := fs.Realpath(&sftpserver.Request{Filepath: "a/../b"})
	if err != nil {
		t.Fatalf("Realpath: %v", err)
	}
	if resolved != "/b" {
		t.Fatalf("Realpath = %q, want /b", resolved)
	}
}

func TestStatvfsReturnsNominalFigures(t *testing.T) {
	fs := New()
	info, err := fs.Statvfs(&sftpserver.Request{Filepath: "/"})
	if err != nil {
		t.Fatalf("Statvfs: %v", err)
	}
	if info.BlockSize == 0 || info.Blocks == 0 {
		t.Fatal("expected non-zero nominal statvfs figures")
	}
}
