package osfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	sftpserver "github.com/xqyjlj/sftpserver"
	"github.com/xqyjlj/sftpserver/internal/fileattr"
)

func TestOpenFileWriteThenGetReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	fs := New(true)
	path := filepath.Join(dir, "f")

	w, err := fs.OpenFile(&sftpserver.Request{Filepath: path, PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := w.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if c, ok := w.(io.Closer); ok {
		c.Close()
	}

	r, err := fs.Get(&sftpserver.Request{Filepath: path})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
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

func TestReadOnlyFSRejectsMutatingOpen(t *testing.T) {
	dir := t.TempDir()
	fs := New(false)
	path := filepath.Join(dir, "f")

	if _, err := fs.OpenFile(&sftpserver.Request{Filepath: path, PFlags: fileattr.PFlagWrite | fileattr.PFlagCreate}); err == nil {
		t.Fatal("expected OpenFile to reject a mutating open on a read-only FS")
	}
}

func TestMkdirAndRmdir(t *testing.T) {
	dir := t.TempDir()
	fs := New(true)
	sub := filepath.Join(dir, "sub")

	if err := fs.Mkdir(&sftpserver.Request{Filepath: sub}); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	info, err := fs.Lstat(&sftpserver.Request{Filepath: sub})
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected created path to be a directory")
	}
	if err := fs.Rmdir(&sftpserver.Request{Filepath: sub}); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be gone after Rmdir", sub)
	}
}

func TestRenameRejectsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	fs := New(true)
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("a"), 0644)
	os.WriteFile(b, []byte("b"), 0644)

	if err := fs.Rename(&sftpserver.Request{Filepath: a, Target: b}); err == nil {
		t.Fatal("expected Rename to reject an existing target")
	}
}

func TestPosixRenameOverwritesTarget(t *testing.T) {
	dir := t.TempDir()
	fs := New(true)
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("a"), 0644)
	os.WriteFile(b, []byte("b"), 0644)

	if err := fs.PosixRename(&sftpserver.Request{Filepath: a, Target: b}); err != nil {
		t.Fatalf("PosixRename: %v", err)
	}
	content, err := os.ReadFile(b)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "a" {
		t.Fatalf("content = %q, want a", content)
	}
}

func TestSymlinkAndReadLink(t *testing.T) {
	dir := t.TempDir()
	fs := New(true)
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	os.WriteFile(target, []byte("x"), 0644)

	if err := fs.Symlink(&sftpserver.Request{Filepath: link, Target: target}); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	got, err := fs.ReadLink(&sftpserver.Request{Filepath: link})
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if got != target {
		t.Fatalf("ReadLink = %q, want %q", got, target)
	}
}

func TestRealpathReturnsAbsolutePath(t *testing.T) {
	fs := New(true)
	resolved, err := fs.Realpath(&sftpserver.Request{Filepath: "relative/path"})
	if err != nil {
		t.Fatalf("Realpath: %v", err)
	}
	if !filepath.IsAbs(resolved) {
		t.Fatalf("Realpath = %q, want an absolute path", resolved)
	}
}
