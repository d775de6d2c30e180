// Package testutil provides an in-memory layer filesystem for tests.
package testutil

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/containerd/errdefs"

	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/pathutil"
)

type node struct {
	stat   layer.Stat
	xattrs map[string][]byte
}

// MemFS is an in-memory layer.FS. Paths are relative to the root "." and
// are never cleaned beyond what pathutil does, matching what the checker
// passes to a real layer.
type MemFS struct {
	mu    sync.Mutex
	nodes map[string]*node
	dev   uint64
	ino   uint64

	// Fail makes the named operation on the named path return the error.
	// Keys are "op:path", for example "lstat:a/b" or "setxattr:a".
	Fail map[string]error
}

// NewMemFS returns an empty filesystem containing only the root directory.
func NewMemFS() *MemFS {
	m := &MemFS{
		nodes: make(map[string]*node),
		dev:   1,
		Fail:  make(map[string]error),
	}
	m.nodes["."] = m.newNode(layer.DirMode)
	return m
}

func (m *MemFS) newNode(mode uint32) *node {
	m.ino++
	return &node{
		stat:   layer.Stat{Mode: mode, Dev: m.dev, Ino: m.ino},
		xattrs: make(map[string][]byte),
	}
}

func clean(p string) string {
	return pathutil.Join(".", p)
}

// lookup resolves p, failing the same way fstatat does for a missing or
// non-directory component.
func (m *MemFS) lookup(p string) (*node, error) {
	p = clean(p)
	for _, a := range pathutil.Ancestors(p) {
		n, ok := m.nodes[a]
		if !ok || !n.stat.IsDir() {
			return nil, fmt.Errorf("%s: %w", p, errdefs.ErrNotFound)
		}
	}
	n, ok := m.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, errdefs.ErrNotFound)
	}
	return n, nil
}

func (m *MemFS) failure(op, p string) error {
	if err, ok := m.Fail[op+":"+clean(p)]; ok {
		return err
	}
	return nil
}

func (m *MemFS) create(p string, mode uint32) (*node, error) {
	p = clean(p)
	if _, ok := m.nodes[p]; ok {
		return nil, &os.PathError{Op: "create", Path: p, Err: syscall.EEXIST}
	}
	parent, err := m.lookup(pathutil.Dir(p))
	if err != nil || !parent.stat.IsDir() {
		return nil, &os.PathError{Op: "create", Path: p, Err: syscall.ENOENT}
	}
	n := m.newNode(mode)
	m.nodes[p] = n
	return n, nil
}

// Mkdir creates directory p and its missing parents, setting the given
// xattrs on p. It panics on conflicts since it only builds fixtures.
func (m *MemFS) Mkdir(p string, xattrs ...string) *MemFS {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	for _, d := range append(pathutil.Ancestors(p), p) {
		if n, ok := m.nodes[d]; ok {
			if !n.stat.IsDir() {
				panic(fmt.Sprintf("memfs: %s is not a directory", d))
			}
			continue
		}
		if _, err := m.create(d, layer.DirMode); err != nil {
			panic(err)
		}
	}
	m.setXattrs(p, xattrs)
	return m
}

// WriteFile creates regular file p (and missing parents) with xattrs.
func (m *MemFS) WriteFile(p string, xattrs ...string) *MemFS {
	return m.mknode(p, layer.RegularMode, xattrs)
}

// Symlink creates a symlink at p.
func (m *MemFS) Symlink(p string) *MemFS {
	return m.mknode(p, layer.SymlinkMode, nil)
}

// Whiteout creates a whiteout at p.
func (m *MemFS) Whiteout(p string) *MemFS {
	return m.mknode(p, layer.WhiteoutMode, nil)
}

// CharDevice creates a character device with a non-zero device number.
func (m *MemFS) CharDevice(p string) *MemFS {
	m.mknode(p, layer.WhiteoutMode, nil)
	m.mu.Lock()
	m.nodes[clean(p)].stat.Rdev = 0x0501
	m.mu.Unlock()
	return m
}

func (m *MemFS) mknode(p string, mode uint32, xattrs []string) *MemFS {
	if d := pathutil.Dir(clean(p)); d != "." {
		m.Mkdir(d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.create(p, mode); err != nil {
		panic(err)
	}
	m.setXattrs(clean(p), xattrs)
	return m
}

// setXattrs takes "name=value" pairs; a pair without '=' sets an empty value.
func (m *MemFS) setXattrs(p string, xattrs []string) {
	n := m.nodes[p]
	for _, kv := range xattrs {
		name, value, _ := strings.Cut(kv, "=")
		n.xattrs[name] = []byte(value)
	}
}

// Exists reports whether p exists.
func (m *MemFS) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.lookup(p)
	return err == nil
}

// Xattr returns the value of attribute name on p.
func (m *MemFS) Xattr(p, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(p)
	if err != nil {
		return "", false
	}
	v, ok := n.xattrs[name]
	return string(v), ok
}

func (m *MemFS) Lstat(rel string) (layer.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("lstat", rel); err != nil {
		return layer.Stat{}, err
	}
	n, err := m.lookup(rel)
	if err != nil {
		return layer.Stat{}, err
	}
	return n.stat, nil
}

func (m *MemFS) Getxattr(rel, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("getxattr", rel); err != nil {
		return nil, false, err
	}
	n, err := m.lookup(rel)
	if err != nil {
		return nil, false, &os.PathError{Op: "getxattr", Path: rel, Err: syscall.ENOENT}
	}
	v, ok := n.xattrs[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

func (m *MemFS) Setxattr(rel, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("setxattr", rel); err != nil {
		return err
	}
	n, err := m.lookup(rel)
	if err != nil {
		return &os.PathError{Op: "setxattr", Path: rel, Err: syscall.ENOENT}
	}
	n.xattrs[name] = append([]byte{}, value...)
	return nil
}

func (m *MemFS) Removexattr(rel, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("removexattr", rel); err != nil {
		return err
	}
	n, err := m.lookup(rel)
	if err != nil {
		return &os.PathError{Op: "removexattr", Path: rel, Err: syscall.ENOENT}
	}
	if _, ok := n.xattrs[name]; !ok {
		return &os.PathError{Op: "removexattr", Path: rel, Err: syscall.ENODATA}
	}
	delete(n.xattrs, name)
	return nil
}

func (m *MemFS) Mkwhiteout(rel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("mknod", rel); err != nil {
		return err
	}
	_, err := m.create(rel, layer.WhiteoutMode)
	return err
}

func (m *MemFS) Unlink(rel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("unlink", rel); err != nil {
		return err
	}
	n, err := m.lookup(rel)
	if err != nil {
		return &os.PathError{Op: "unlink", Path: rel, Err: syscall.ENOENT}
	}
	if n.stat.IsDir() {
		return &os.PathError{Op: "unlink", Path: rel, Err: syscall.EISDIR}
	}
	delete(m.nodes, clean(rel))
	return nil
}

func (m *MemFS) ReadDir(rel string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("readdir", rel); err != nil {
		return nil, err
	}
	n, err := m.lookup(rel)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: rel, Err: syscall.ENOENT}
	}
	if !n.stat.IsDir() {
		return nil, &os.PathError{Op: "readdir", Path: rel, Err: syscall.ENOTDIR}
	}
	dir := clean(rel)
	var names []string
	for p := range m.nodes {
		if p != "." && pathutil.Dir(p) == dir {
			names = append(names, pathutil.Base(p))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemFS) Close() error { return nil }

// Overlay builds a layer.Set over in-memory filesystems. lowers[0] is the
// top lower layer. A nil upper builds a lower-only overlay.
func Overlay(upper *MemFS, lowers ...*MemFS) *layer.Set {
	s := &layer.Set{}
	for i, fsys := range lowers {
		l := layer.New(fmt.Sprintf("/lower%d", i), layer.Lower, i, fsys)
		l.Caps = layer.SupportsXattr
		s.Lowers = append(s.Lowers, l)
	}
	if upper != nil {
		s.Upper = layer.New("/upper", layer.Upper, 0, upper)
		s.Upper.Caps = layer.SupportsXattr
		s.Work = layer.New("/work", layer.Work, 0, NewMemFS())
		s.Work.Caps = layer.SupportsXattr
	}
	return s
}
