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

// Package layer models the directories an overlay filesystem is built from
// and gives root-relative access to each of them.
package layer

import (
	"fmt"
)

// Role is the part a directory plays in the overlay.
type Role int

const (
	// Upper is the single read-write layer copy-ups land in.
	Upper Role = iota
	// Lower is one of the ordered layers beneath the upper layer.
	Lower
	// Work is the overlay's scratch directory next to the upper layer.
	Work
)

// String returns the mount option name of the role.
func (r Role) String() string {
	switch r {
	case Upper:
		return "upperdir"
	case Lower:
		return "lowerdir"
	case Work:
		return "workdir"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Capability flags describe what the filesystem under a layer allows.
type Capability uint8

const (
	// ReadOnly is set when the layer sits on a read-only mount.
	ReadOnly Capability = 1 << iota
	// SupportsXattr is set when trusted.* extended attributes can be read.
	SupportsXattr
)

// File type bits of Stat.Mode, as in stat(2).
const (
	modeTypeMask = 0o170000
	modeDir      = 0o040000
	modeChar     = 0o020000
	modeRegular  = 0o100000
	modeSymlink  = 0o120000
)

// Stat is the subset of stat(2) the checker looks at.
type Stat struct {
	Mode uint32
	Rdev uint64
	Dev  uint64
	Ino  uint64
	Size int64
}

// IsDir reports whether the entry is a directory.
func (s Stat) IsDir() bool { return s.Mode&modeTypeMask == modeDir }

// IsRegular reports whether the entry is a regular file.
func (s Stat) IsRegular() bool { return s.Mode&modeTypeMask == modeRegular }

// IsSymlink reports whether the entry is a symbolic link.
func (s Stat) IsSymlink() bool { return s.Mode&modeTypeMask == modeSymlink }

// IsWhiteout reports whether the entry is an overlay whiteout: a character
// device with device number 0.
func (s Stat) IsWhiteout() bool {
	return s.Mode&modeTypeMask == modeChar && s.Rdev == 0
}

// DirMode, RegularMode and WhiteoutMode build Stat.Mode values for the
// corresponding file types.
const (
	DirMode      = modeDir | 0o755
	RegularMode  = modeRegular | 0o644
	SymlinkMode  = modeSymlink | 0o777
	WhiteoutMode = modeChar
)

// FS is root-relative access to one layer directory. Every path is relative
// to the layer root ("." is the root) and no operation follows a trailing
// symlink.
//
// Lstat reports a missing entry, or a missing or non-directory component on
// the way to it, with an error wrapping errdefs.ErrNotFound. Getxattr
// returns exists=false without error when the attribute is absent or not
// supported, and exists=true with an empty value when the attribute is set
// but empty.
type FS interface {
	Lstat(rel string) (Stat, error)
	Getxattr(rel, name string) (value []byte, exists bool, err error)
	Setxattr(rel, name string, value []byte) error
	Removexattr(rel, name string) error
	Mkwhiteout(rel string) error
	Unlink(rel string) error
	ReadDir(rel string) ([]string, error)
	Close() error
}

// Layer is one directory of the overlay.
type Layer struct {
	Path  string
	Role  Role
	Stack int // meaningful for Lower only
	Caps  Capability
	FS    FS
}

// New returns a layer backed by fsys.
func New(path string, role Role, stack int, fsys FS) *Layer {
	return &Layer{Path: path, Role: role, Stack: stack, FS: fsys}
}

// Has reports whether all capabilities in c are set.
func (l *Layer) Has(c Capability) bool {
	return l.Caps&c == c
}

// String names the layer the way findings are reported.
func (l *Layer) String() string {
	if l.Role == Lower {
		return fmt.Sprintf("%s-%d", l.Role, l.Stack)
	}
	return l.Role.String()
}

// Close releases the layer's root handle.
func (l *Layer) Close() error {
	if l.FS == nil {
		return nil
	}
	err := l.FS.Close()
	l.FS = nil
	return err
}
