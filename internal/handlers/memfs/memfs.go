// Package memfs implements an in-memory Handlers backend: a flat
// path-keyed map standing in for a real filesystem, useful for tests
// and for exercising the dispatcher without touching disk.
//
// Grounded on the teacher's handler_memory_fs.go (MemFS/memFile),
// adapted to the expanded Handlers interface (handlers.go) — Lstat,
// Realpath, PosixRename, and Statvfs have no teacher equivalent here
// and are implemented in the same style as the rest of the file.
package memfs

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	sftpserver "github.com/xqyjlj/sftpserver"
	"github.com/xqyjlj/sftpserver/internal/fileattr"
	"github.com/xqyjlj/sftpserver/internal/statvfs"
)

// FS is an in-memory filesystem implementing sftpserver.Handlers.
type FS struct {
	mu    sync.Mutex
	root  *node
	nodes map[string]*node
}

// New returns an empty in-memory filesystem rooted at "/".
func New() *FS {
	return &FS{
		root:  newNode("/", true),
		nodes: make(map[string]*node),
	}
}

type node struct {
	name    string
	modtime time.Time
	symlink string
	isdir   bool

	mu      sync.RWMutex
	content []byte
}

func newNode(name string, isdir bool) *node {
	return &node{name: name, modtime: time.Now(), isdir: isdir}
}

func (n *node) Name() string { return path.Base(n.name) }
func (n *node) Size() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return int64(len(n.content))
}
func (n *node) Mode() os.FileMode {
	switch {
	case n.symlink != "":
		return 0777 | os.ModeSymlink
	case n.isdir:
		return 0755 | os.ModeDir
	default:
		return 0644
	}
}
func (n *node) ModTime() time.Time { return n.modtime }
func (n *node) IsDir() bool        { return n.isdir }
func (n *node) Sys() interface{}   { return nil }

func (n *node) ReadAt(p []byte, off int64) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if off >= int64(len(n.content)) {
		return 0, io.EOF
	}
	c := copy(p, n.content[off:])
	if c < len(p) {
		return c, io.EOF
	}
	return c, nil
}

func (n *node) WriteAt(p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	end := int(off) + len(p)
	if end > len(n.content) {
		grown := make([]byte, end)
		copy(grown, n.content)
		n.content = grown
	}
	copy(n.content[off:], p)
	return len(p), nil
}

// listerAt adapts a fixed slice of entries to sftpserver.ListerAt, the
// same "ReadAt for directories" trick as the teacher's listerat.
type listerAt []os.FileInfo

func (l listerAt) ListAt(ls []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(ls, l[offset:])
	if n < len(ls) {
		return n, io.EOF
	}
	return n, nil
}

func (fs *FS) fetch(p string) (*node, error) {
	if p == "/" || p == "" {
		return fs.root, nil
	}
	if n, ok := fs.nodes[p]; ok {
		return n, nil
	}
	return nil, os.ErrNotExist
}

func (fs *FS) resolve(p string) (*node, error) {
	n, err := fs.fetch(p)
	if err != nil {
		return nil, err
	}
	if n.symlink != "" {
		return fs.fetch(n.symlink)
	}
	return n, nil
}

func (fs *FS) Get(r *sftpserver.Request) (io.ReaderAt, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.resolve(r.Filepath)
	if err != nil {
		return nil, err
	}
	if n.isdir {
		return nil, os.ErrInvalid
	}
	return n, nil
}

func (fs *FS) OpenFile(r *sftpserver.Request) (io.WriterAt, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.fetch(r.Filepath)
	if err == os.ErrNotExist {
		dir, derr := fs.fetch(path.Dir(r.Filepath))
		if derr != nil {
			return nil, derr
		}
		if !dir.isdir {
			return nil, os.ErrInvalid
		}
		n = newNode(r.Filepath, false)
		fs.nodes[r.Filepath] = n
	} else if err != nil {
		return nil, err
	}
	if r.PFlags.Mutates() && r.PFlags&fileattr.PFlagTruncate != 0 {
		n.mu.Lock()
		n.content = nil
		n.mu.Unlock()
	}
	return n, nil
}

func (fs *FS) List(r *sftpserver.Request) (sftpserver.ListerAt, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.resolve(r.Filepath)
	if err != nil {
		return nil, err
	}
	if !n.isdir {
		return nil, errors.New("memfs: not a directory")
	}
	var names []string
	for name := range fs.nodes {
		if path.Dir(name) == path.Clean(r.Filepath) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	list := make([]os.FileInfo, len(names))
	for i, name := range names {
		list[i] = fs.nodes[name]
	}
	return listerAt(list), nil
}

func (fs *FS) Stat(r *sftpserver.Request) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.resolve(r.Filepath)
}

func (fs *FS) Lstat(r *sftpserver.Request) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fetch(r.Filepath)
}

func (fs *FS) ReadLink(r *sftpserver.Request) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.fetch(r.Filepath)
	if err != nil {
		return "", err
	}
	if n.symlink == "" {
		return "", os.ErrInvalid
	}
	return n.symlink, nil
}

func (fs *FS) Setstat(*sftpserver.Request) error { return nil }

func (fs *FS) Rename(r *sftpserver.Request) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.fetch(r.Filepath)
	if err != nil {
		return err
	}
	if _, exists := fs.nodes[r.Target]; exists {
		return &os.LinkError{Op: "rename", Old: r.Filepath, New: r.Target, Err: os.ErrExist}
	}
	n.name = r.Target
	fs.nodes[r.Target] = n
	delete(fs.nodes, r.Filepath)
	return nil
}

// PosixRename behaves like Rename but may overwrite an existing
// target, per posix-rename@openssh.com's documented semantics.
func (fs *FS) PosixRename(r *sftpserver.Request) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.fetch(r.Filepath)
	if err != nil {
		return err
	}
	n.name = r.Target
	fs.nodes[r.Target] = n
	delete(fs.nodes, r.Filepath)
	return nil
}

func (fs *FS) Rmdir(r *sftpserver.Request) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.fetch(path.Dir(r.Filepath)); err != nil {
		return err
	}
	delete(fs.nodes, r.Filepath)
	return nil
}

func (fs *FS) Mkdir(r *sftpserver.Request) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.fetch(path.Dir(r.Filepath)); err != nil {
		return err
	}
	fs.nodes[r.Filepath] = newNode(r.Filepath, true)
	return nil
}

// Symlink creates a new symlink at r.Filepath pointing at r.Target.
// The target need not exist yet — dangling symlinks are legal.
func (fs *FS) Symlink(r *sftpserver.Request) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.fetch(path.Dir(r.Filepath)); err != nil {
		return err
	}
	if _, exists := fs.nodes[r.Filepath]; exists {
		return os.ErrExist
	}
	link := newNode(r.Filepath, false)
	link.symlink = r.Target
	fs.nodes[r.Filepath] = link
	return nil
}

func (fs *FS) Remove(r *sftpserver.Request) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.fetch(path.Dir(r.Filepath)); err != nil {
		return err
	}
	delete(fs.nodes, r.Filepath)
	return nil
}

func (fs *FS) Realpath(r *sftpserver.Request) (string, error) {
	return path.Clean("/" + r.Filepath), nil
}

func (fs *FS) Statvfs(*sftpserver.Request) (statvfs.Info, error) {
	// An in-memory filesystem has no block device to report on; these
	// figures are nominal rather than measured.
	return statvfs.Info{
		BlockSize:   4096,
		FBlockSize:  4096,
		Blocks:      1 << 20,
		BlocksFree:  1 << 19,
		BlocksAvail: 1 << 19,
		Files:       1 << 16,
		FilesFree:   1 << 15,
		FilesAvail:  1 << 15,
		MaxNameLen:  255,
	}, nil
}
