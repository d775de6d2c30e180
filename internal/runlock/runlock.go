// Package runlock keeps two checks from running on the same overlay at
// once.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/gofrs/flock"
	"github.com/opencontainers/go-digest"
)

// DefaultDir is where lock files are kept unless configured otherwise.
const DefaultDir = "/run/fsck.overlay"

// Acquire takes the lock for the overlay identified by id in dir without
// waiting. It fails with errdefs.ErrUnavailable when another process holds
// the lock. The returned function releases it.
//
// Lock files are left in place on release. Unlinking a lock file while
// another process holds it open would let that process and a later one
// both lock, on different inodes. There is one empty file per checked
// overlay and DefaultDir is on tmpfs.
func Acquire(dir string, id digest.Digest) (func() error, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid overlay id %q: %w", id, errdefs.ErrInvalidArgument)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	p := Path(dir, id)
	l := flock.New(p)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", p, err)
	}
	if !locked {
		return nil, fmt.Errorf("another check of this overlay is running (%s): %w", p, errdefs.ErrUnavailable)
	}
	return l.Unlock, nil
}

// Path returns the lock file used for the overlay identified by id in dir.
func Path(dir string, id digest.Digest) string {
	return filepath.Join(dir, id.Encoded()+".lock")
}
