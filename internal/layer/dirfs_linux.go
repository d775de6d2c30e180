/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package layer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"
)

// probeXattr is read on the layer root to find out whether the backing
// filesystem supports trusted.* attributes at all.
const probeXattr = "trusted.overlay.opaque"

// dirFS implements FS on top of an open directory descriptor. Stat, mknod
// and unlink use the *at syscalls; extended attributes go through the
// descriptor's /proc/self/fd link so the l*xattr calls resolve relative to
// the same directory without following a trailing symlink.
type dirFS struct {
	fd   int
	proc string
}

// OpenDir opens path as a layer root.
func OpenDir(path string) (FS, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &dirFS{fd: fd, proc: "/proc/self/fd/" + strconv.Itoa(fd)}, nil
}

func (d *dirFS) xattrPath(rel string) string {
	return d.proc + "/" + rel
}

func (d *dirFS) Lstat(rel string) (Stat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(d.fd, rel, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
			return Stat{}, fmt.Errorf("%s: %w", rel, errdefs.ErrNotFound)
		}
		return Stat{}, &os.PathError{Op: "fstatat", Path: rel, Err: err}
	}
	return Stat{
		Mode: st.Mode,
		Rdev: uint64(st.Rdev), //nolint:unconvert // Rdev is uint32 on some platforms
		Dev:  uint64(st.Dev),  //nolint:unconvert
		Ino:  st.Ino,
		Size: st.Size,
	}, nil
}

func (d *dirFS) Getxattr(rel, name string) ([]byte, bool, error) {
	p := d.xattrPath(rel)
	for {
		sz, err := unix.Lgetxattr(p, name, nil)
		if err != nil {
			if errors.Is(err, unix.ENODATA) || errors.Is(err, unix.ENOTSUP) {
				return nil, false, nil
			}
			return nil, false, &os.PathError{Op: "getxattr " + name, Path: rel, Err: err}
		}
		if sz == 0 {
			return []byte{}, true, nil
		}
		buf := make([]byte, sz)
		n, err := unix.Lgetxattr(p, name, buf)
		if errors.Is(err, unix.ERANGE) {
			// Grew between the two calls.
			continue
		}
		if err != nil {
			if errors.Is(err, unix.ENODATA) {
				return nil, false, nil
			}
			return nil, false, &os.PathError{Op: "getxattr " + name, Path: rel, Err: err}
		}
		return buf[:n], true, nil
	}
}

func (d *dirFS) Setxattr(rel, name string, value []byte) error {
	if err := unix.Lsetxattr(d.xattrPath(rel), name, value, 0); err != nil {
		return &os.PathError{Op: "setxattr " + name, Path: rel, Err: err}
	}
	return nil
}

func (d *dirFS) Removexattr(rel, name string) error {
	if err := unix.Lremovexattr(d.xattrPath(rel), name); err != nil {
		return &os.PathError{Op: "removexattr " + name, Path: rel, Err: err}
	}
	return nil
}

func (d *dirFS) Mkwhiteout(rel string) error {
	if err := unix.Mknodat(d.fd, rel, unix.S_IFCHR|0o000, int(unix.Mkdev(0, 0))); err != nil {
		return &os.PathError{Op: "mknodat", Path: rel, Err: err}
	}
	return nil
}

func (d *dirFS) Unlink(rel string) error {
	if err := unix.Unlinkat(d.fd, rel, 0); err != nil {
		return &os.PathError{Op: "unlinkat", Path: rel, Err: err}
	}
	return nil
}

func (d *dirFS) ReadDir(rel string) ([]string, error) {
	fd, err := unix.Openat(d.fd, rel, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: rel, Err: err}
	}
	f := os.NewFile(uintptr(fd), rel)
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", rel, err)
	}
	sort.Strings(names)
	return names, nil
}

func (d *dirFS) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// probe reports the capabilities of the filesystem under the root.
func (d *dirFS) probe() (Capability, error) {
	var caps Capability

	var sfs unix.Statfs_t
	if err := unix.Fstatfs(d.fd, &sfs); err != nil {
		return 0, fmt.Errorf("statfs: %w", err)
	}
	if sfs.Flags&unix.ST_RDONLY != 0 {
		caps |= ReadOnly
	}

	_, err := unix.Fgetxattr(d.fd, probeXattr, nil)
	switch {
	case err == nil, errors.Is(err, unix.ENODATA):
		caps |= SupportsXattr
	case errors.Is(err, unix.ENOTSUP):
	default:
		return 0, fmt.Errorf("getxattr %s: %w", probeXattr, err)
	}
	return caps, nil
}

// Probe fills in l.Caps for a layer opened with OpenDir. Layers backed by
// any other FS keep the capabilities they were given.
func Probe(l *Layer) error {
	d, ok := l.FS.(*dirFS)
	if !ok {
		return nil
	}
	caps, err := d.probe()
	if err != nil {
		return fmt.Errorf("probe %s (%s): %w", l, l.Path, err)
	}
	l.Caps = caps
	return nil
}
