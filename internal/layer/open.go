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
	"context"
	"fmt"

	"github.com/containerd/continuity/fs"
	"github.com/containerd/log"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// probeConcurrency bounds the number of layers probed at once.
const probeConcurrency = 8

// Dirs names the directories of an overlay. Paths are expected to be
// absolute and already resolved.
type Dirs struct {
	Lower []string
	Upper string
	Work  string
}

// Open opens every directory in dirs, probes the capabilities of each layer
// and validates the resulting set. On error every handle opened so far is
// closed.
func Open(ctx context.Context, dirs Dirs) (_ *Set, retErr error) {
	s := &Set{}
	defer func() {
		if retErr != nil {
			s.Close()
		}
	}()

	for i, p := range dirs.Lower {
		fsys, err := OpenDir(p)
		if err != nil {
			return nil, err
		}
		s.Lowers = append(s.Lowers, New(p, Lower, i, fsys))
	}
	if dirs.Upper != "" {
		fsys, err := OpenDir(dirs.Upper)
		if err != nil {
			return nil, err
		}
		s.Upper = New(dirs.Upper, Upper, 0, fsys)
	}
	if dirs.Work != "" {
		fsys, err := OpenDir(dirs.Work)
		if err != nil {
			return nil, err
		}
		s.Work = New(dirs.Work, Work, 0, fsys)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, l := range s.Layers() {
		l := l
		g.Go(func() error {
			return Probe(l)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, l := range s.Layers() {
		log.G(ctx).WithFields(log.Fields{
			"layer":    l.String(),
			"path":     l.Path,
			"readonly": l.Has(ReadOnly),
			"xattr":    l.Has(SupportsXattr),
		}).Debug("opened layer")
	}
	return s, nil
}

// Usage reports the disk usage of each layer, keyed by layer name.
func Usage(ctx context.Context, s *Set) (map[string]fs.Usage, error) {
	out := make(map[string]fs.Usage)
	for _, l := range s.Layers() {
		u, err := fs.DiskUsage(ctx, l.Path)
		if err != nil {
			return nil, fmt.Errorf("disk usage of %s: %w", l, err)
		}
		out[l.String()] = u
	}
	return out, nil
}

// Digest returns the identity the set opened from d would have, without
// opening anything.
func (d Dirs) Digest() digest.Digest {
	s := &Set{}
	for i, p := range d.Lower {
		s.Lowers = append(s.Lowers, New(p, Lower, i, nil))
	}
	if d.Upper != "" {
		s.Upper = New(d.Upper, Upper, 0, nil)
	}
	if d.Work != "" {
		s.Work = New(d.Work, Work, 0, nil)
	}
	return s.Digest()
}
