package fsck

// countImpurity bumps the counters of e's parent directory for each reason
// e makes that parent impure: an origin attribute, a redirect directory, or
// a directory merging with a lower one.
func (c *Checker) countImpurity(sc *scanCtx, e *Entry, parent *DirState) error {
	if parent == nil {
		return nil
	}

	origin, err := isOrigin(sc.layer, e.Path)
	if err != nil {
		return err
	}
	if origin {
		parent.Origins++
	}
	if !e.Stat.IsDir() {
		return nil
	}

	redirect, err := isRedirect(sc.layer, e.Path)
	if err != nil {
		return err
	}
	if redirect {
		parent.Redirects++
	}

	merge, err := c.isMerge(sc, e.Path)
	if err != nil {
		return err
	}
	if merge {
		parent.MergeDirs++
	}
	return nil
}

// isMerge reports whether directory p merges with a lower directory.
func (c *Checker) isMerge(sc *scanCtx, p string) (bool, error) {
	opaque, err := isOpaque(sc.layer, p)
	if err != nil || opaque {
		return false, err
	}
	lower, err := c.LookupLower(sc.layer, p)
	if err != nil {
		return false, err
	}
	return lower.Found && lower.Stat.IsDir(), nil
}

// checkImpure makes sure a directory with impure children carries the
// impure attribute. A directory whose only impure children are merge
// directories is not counted when left alone: a freshly built overlay
// looks like that and the kernel fixes it on first mount.
func (c *Checker) checkImpure(sc *scanCtx, e *Entry, state *DirState) error {
	if !state.impure() {
		return nil
	}
	impure, err := isImpure(sc.layer, e.Path)
	if err != nil || impure {
		return err
	}

	if sc.ask("Missing impure xattr", e.Path, "Fix", true) {
		if err := setImpure(sc.layer, e.Path); err != nil {
			return err
		}
		c.modified = true
		return c.record(sc, KindMissingImpure, e.Path, "", true)
	}
	if state.Origins == 0 && state.Redirects == 0 {
		return nil
	}
	sc.result.MissingImpure++
	return c.record(sc, KindMissingImpure, e.Path, "", false)
}
