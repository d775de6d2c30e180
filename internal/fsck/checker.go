// Package fsck checks and repairs the overlay metadata stored in the layers
// of an unmounted overlay filesystem: whiteouts, redirect directories and
// impure directories.
//
// The checker re-derives, for every entry, what the overlay driver would
// find beneath it by following the same lookup rules (layer order, opaque
// directories, whiteouts and redirects), and compares that with what is
// recorded on disk.
package fsck

import (
	"context"
	"fmt"

	"github.com/containerd/log"

	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/repair"
)

// MountChecker reports whether any of the given layer paths belongs to a
// mounted overlay.
type MountChecker interface {
	Mounted(paths []string) (mounted bool, path string, err error)
}

// Checker scans the layers of one overlay.
type Checker struct {
	set      *layer.Set
	decider  repair.Decider
	recorder Recorder
	mounts   MountChecker

	// registry is rebuilt by every Run during pass one.
	registry *Registry
	modified bool
}

// Opt configures a Checker.
type Opt func(*Checker)

// WithDecider sets who answers repair questions. The default answers no.
func WithDecider(d repair.Decider) Opt {
	return func(c *Checker) { c.decider = d }
}

// WithRecorder sends every finding to r.
func WithRecorder(r Recorder) Opt {
	return func(c *Checker) { c.recorder = r }
}

// WithMountChecker makes Run refuse to repair an overlay that is mounted.
func WithMountChecker(m MountChecker) Opt {
	return func(c *Checker) { c.mounts = m }
}

// New returns a Checker for set.
func New(set *layer.Set, opts ...Opt) *Checker {
	c := &Checker{
		set:      set,
		decider:  repair.Fixed(false),
		registry: NewRegistry(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// scanCtx is the state of scanning one layer in one pass.
type scanCtx struct {
	ctx     context.Context
	layer   *layer.Layer
	decider repair.Decider
	result  Result
}

func (sc *scanCtx) log(p string) *log.Entry {
	return log.G(sc.ctx).WithFields(log.Fields{
		"layer": sc.layer.String(),
		"path":  p,
	})
}

// ask puts a repair question about p to the decider, naming the problem
// and the layer it was found in.
func (sc *scanCtx) ask(problem, p, action string, def bool) bool {
	q := fmt.Sprintf("%s: %q in %s", problem, p, sc.layer)
	if action != "" {
		q += " " + action
	}
	return sc.decider.Decide(q, def)
}

func (c *Checker) record(sc *scanCtx, kind Kind, p, detail string, repaired bool) error {
	entry := sc.log(p).WithField("kind", string(kind))
	if detail != "" {
		entry = entry.WithField("detail", detail)
	}
	if repaired {
		entry.Info("repaired")
	} else {
		entry.Warn("inconsistency found")
	}

	if c.recorder == nil {
		return nil
	}
	err := c.recorder.Record(sc.ctx, Finding{
		Kind:     kind,
		Role:     sc.layer.Role,
		Stack:    sc.layer.Stack,
		Layer:    sc.layer.String(),
		Path:     p,
		Detail:   detail,
		Repaired: repaired,
	})
	return scanErr(ErrCodeRecord, sc.layer, "record "+string(kind), p, err)
}
