package fsck

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/repair"
)

// Pass is one sweep over every layer.
type Pass int

const (
	// PassRedirect validates redirect directories and builds the registry.
	PassRedirect Pass = iota
	// PassWhiteout checks whiteouts and the impure attribute.
	PassWhiteout

	numPasses = 2
)

func (p Pass) String() string {
	switch p {
	case PassRedirect:
		return "Checking redirect xattr and directory tree"
	case PassWhiteout:
		return "Checking whiteouts and impure xattr"
	}
	return fmt.Sprintf("pass %d", int(p))
}

// Report is the outcome of Run.
type Report struct {
	// Passes holds the counters summed over every layer, per pass.
	Passes [numPasses]Result
	// Final is the per-counter maximum over the passes that ran.
	Final  Result
	Status Status
	// Redirects lists the redirects found valid in pass one.
	Redirects []RedirectTarget
}

// Run checks, and as allowed by the decider repairs, every layer of the
// overlay. An operational error aborts the run; the report then carries
// the counters gathered so far and StatusAborted.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	var rep Report

	if err := c.checkMounted(ctx); err != nil {
		rep.Status |= StatusAborted
		return rep, err
	}

	c.registry = NewRegistry()
	c.modified = false

	var err error
	for p := Pass(0); p < numPasses; p++ {
		pctx := log.WithLogger(ctx, log.G(ctx).WithField("pass", int(p)))
		log.G(pctx).Debug(p.String())

		rep.Passes[p], err = c.runPass(pctx, p)
		rep.Final.Max(rep.Passes[p])
		if err != nil {
			break
		}
	}
	rep.Redirects = c.registry.Entries()

	if c.modified {
		rep.Status |= StatusModified
	}
	if rep.Final.Inconsistent() {
		rep.Status |= StatusInconsistent
	}
	if err != nil {
		rep.Status |= StatusAborted
		return rep, err
	}
	return rep, nil
}

func (c *Checker) checkMounted(ctx context.Context) error {
	if c.mounts == nil {
		return nil
	}
	mounted, p, err := c.mounts.Mounted(c.set.Paths())
	if err != nil {
		return fmt.Errorf("checking mount state: %w", err)
	}
	if !mounted {
		return nil
	}
	if c.decider.Policy() != repair.AssumeNo {
		return fmt.Errorf("%s is in use by a mounted overlay, refusing to repair: %w",
			p, errdefs.ErrFailedPrecondition)
	}
	log.G(ctx).WithField("path", p).Warn("layer is in use by a mounted overlay, results may be inaccurate")
	return nil
}

// runPass scans every layer in scan order and sums their counters.
func (c *Checker) runPass(ctx context.Context, p Pass) (Result, error) {
	var total Result
	for _, l := range c.set.ScanOrder() {
		if p == PassRedirect && !l.Has(layer.SupportsXattr) {
			log.G(ctx).WithField("layer", l.String()).Debug("no xattr support, skipping redirect check")
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		sc := &scanCtx{
			ctx:     log.WithLogger(ctx, log.G(ctx).WithField("layer", l.String())),
			layer:   l,
			decider: c.decider,
		}
		if l.Has(layer.ReadOnly) {
			sc.decider = repair.ReadOnly(c.decider)
		}

		log.G(sc.ctx).Debug("scanning layer")
		err := Walk(l, c.visitor(sc, p))
		total.Add(sc.result)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Checker) visitor(sc *scanCtx, p Pass) Visitor {
	impurity := p == PassWhiteout && sc.layer.Role == layer.Upper &&
		sc.layer.Has(layer.SupportsXattr)

	v := Visitor{
		Dir: func(e *Entry, parent *DirState) error {
			sc.result.Directories++
			if p == PassRedirect {
				return c.checkRedirect(sc, e)
			}
			if impurity {
				return c.countImpurity(sc, e, parent)
			}
			return nil
		},
		Other: func(e *Entry, parent *DirState) error {
			if e.Stat.IsRegular() {
				sc.result.Files++
			}
			if impurity {
				if err := c.countImpurity(sc, e, parent); err != nil {
					return err
				}
			}
			if p == PassWhiteout {
				return c.checkWhiteout(sc, e)
			}
			return nil
		},
	}
	if impurity {
		v.DirDone = func(e *Entry, state *DirState) error {
			return c.checkImpure(sc, e, state)
		}
	}
	return v
}
