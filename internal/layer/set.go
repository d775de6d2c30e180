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
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"
)

// MaxStack is the largest number of lower layers the kernel accepts.
const MaxStack = 500

// Set is the static structure of one overlay. It owns every layer handle.
type Set struct {
	Upper  *Layer
	Lowers []*Layer // index 0 is closest to the upper layer
	Work   *Layer
}

// Bottom returns the stack index of the bottom-most lower layer.
func (s *Set) Bottom() int {
	return len(s.Lowers) - 1
}

// IsBottom reports whether l is the bottom-most lower layer.
func (s *Set) IsBottom(l *Layer) bool {
	return l.Role == Lower && l.Stack == s.Bottom()
}

// Layers returns every layer of the set: lowers in stack order, then the
// upper and work layers when present.
func (s *Set) Layers() []*Layer {
	out := make([]*Layer, 0, len(s.Lowers)+2)
	out = append(out, s.Lowers...)
	if s.Upper != nil {
		out = append(out, s.Upper)
	}
	if s.Work != nil {
		out = append(out, s.Work)
	}
	return out
}

// ScanOrder returns the layers in the order the checker walks them: from
// the bottom lower up to lower 0, then the upper layer.
func (s *Set) ScanOrder() []*Layer {
	out := make([]*Layer, 0, len(s.Lowers)+1)
	for i := len(s.Lowers) - 1; i >= 0; i-- {
		out = append(out, s.Lowers[i])
	}
	if s.Upper != nil {
		out = append(out, s.Upper)
	}
	return out
}

// Paths returns the root paths of Layers, in the same order.
func (s *Set) Paths() []string {
	layers := s.Layers()
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.Path
	}
	return out
}

// Digest identifies the overlay by its ordered layer paths, with the role
// of each path included so that moving a directory between roles changes
// the identity.
func (s *Set) Digest() digest.Digest {
	var b strings.Builder
	for _, l := range s.Layers() {
		fmt.Fprintf(&b, "%s=%s\n", l, l.Path)
	}
	return digest.FromString(b.String())
}

// Validate checks the shape of the set: at least one lower layer, at least
// two when there is no upper layer, no more than MaxStack, and a work
// directory next to the upper layer on the same filesystem without either
// being nested in the other.
func (s *Set) Validate() error {
	switch {
	case len(s.Lowers) == 0:
		return fmt.Errorf("no lower layer: %w", errdefs.ErrInvalidArgument)
	case len(s.Lowers) > MaxStack:
		return fmt.Errorf("too many lower layers %d, max %d: %w", len(s.Lowers), MaxStack, errdefs.ErrInvalidArgument)
	case s.Upper == nil && len(s.Lowers) == 1:
		return fmt.Errorf("a lower-only overlay needs at least two lower layers: %w", errdefs.ErrInvalidArgument)
	case s.Upper != nil && s.Work == nil:
		return fmt.Errorf("upper layer %s has no work directory: %w", s.Upper.Path, errdefs.ErrInvalidArgument)
	}
	for i, l := range s.Lowers {
		if l.Role != Lower || l.Stack != i {
			return fmt.Errorf("lower layer %s has role %s stack %d at index %d: %w", l.Path, l.Role, l.Stack, i, errdefs.ErrInvalidArgument)
		}
	}
	if s.Upper == nil {
		return nil
	}

	if isNested(s.Upper.Path, s.Work.Path) || isNested(s.Work.Path, s.Upper.Path) {
		return fmt.Errorf("workdir %s and upperdir %s must be separate subtrees: %w", s.Work.Path, s.Upper.Path, errdefs.ErrInvalidArgument)
	}
	ust, err := s.Upper.FS.Lstat(".")
	if err != nil {
		return fmt.Errorf("stat upperdir %s: %w", s.Upper.Path, err)
	}
	wst, err := s.Work.FS.Lstat(".")
	if err != nil {
		return fmt.Errorf("stat workdir %s: %w", s.Work.Path, err)
	}
	if ust.Dev != wst.Dev {
		return fmt.Errorf("workdir %s and upperdir %s must reside on the same filesystem: %w", s.Work.Path, s.Upper.Path, errdefs.ErrInvalidArgument)
	}
	return nil
}

// Close closes every layer handle and returns the joined errors.
func (s *Set) Close() error {
	var errs []error
	for _, l := range s.Layers() {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", l, err))
		}
	}
	return errors.Join(errs...)
}

func isNested(parent, child string) bool {
	if parent == "" || child == "" {
		return false
	}
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if parent == child {
		return true
	}
	if parent == "/" {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}
