package fsck

import (
	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/pathutil"
	"github.com/spin-stack/fsck-overlay/internal/stringutil"
)

const (
	maxLoggedRedirect = 256

	askDuplicateRedirect = "Duplicate redirect directory"
	askRemoveRedirect    = "Remove redirect"
	askSetOpaque         = "Should set opaque dir"
)

// checkRedirect validates the redirect attribute of directory e and
// records valid redirects in the registry. A redirect is invalid when it
// lives in the bottom layer, when its target cannot be found beneath it as
// a directory, or when another redirect or a merging directory already
// claims the same origin.
func (c *Checker) checkRedirect(sc *scanCtx, e *Entry) error {
	target, ok, err := redirectTarget(sc.layer, e.Path)
	if err != nil || !ok {
		return err
	}
	sc.log(e.Path).WithField("redirect", stringutil.TruncateOutput([]byte(target), maxLoggedRedirect)).
		Debug("directory has redirect")
	sc.result.Redirects++

	if c.set.IsBottom(sc.layer) {
		return c.invalidRedirect(sc, e.Path, "redirect in bottom layer")
	}

	start := 0
	if sc.layer.Role == layer.Lower {
		start = sc.layer.Stack + 1
	}
	origin, err := c.Lookup(target, start)
	if err != nil {
		return err
	}
	if !origin.Found || !origin.Stat.IsDir() {
		return c.invalidRedirect(sc, e.Path, "redirect target "+target+" not found")
	}

	if dup, ok := c.registry.Find(origin.Path, origin.Stack); ok {
		sc.result.InvalidRedirects++
		detail := "origin already claimed by " + dup.RedirectPath + " in " + dup.redirectLayer()
		if !sc.ask(askDuplicateRedirect, e.Path, askRemoveRedirect, false) {
			return c.record(sc, KindDuplicateRedirect, e.Path, detail, false)
		}
		if err := c.removeRedirect(sc, e.Path); err != nil {
			return err
		}
		return c.record(sc, KindDuplicateRedirect, e.Path, detail, true)
	}

	cover, exists, err := lstat(sc.layer, target)
	if err != nil {
		return err
	}
	switch {
	case !exists:
		if err := c.coverTarget(sc, e.Path, target); err != nil {
			return err
		}
	case cover.IsDir():
		merged, err := c.isPlainDir(sc.layer, target)
		if err != nil {
			return err
		}
		if merged {
			valid, err := c.resolveMergeDuplicate(sc, e.Path, target)
			if err != nil || !valid {
				return err
			}
		}
	}

	return c.registry.Add(RedirectTarget{
		RedirectPath:  e.Path,
		RedirectRole:  sc.layer.Role,
		RedirectStack: sc.layer.Stack,
		OriginPath:    origin.Path,
		OriginStack:   origin.Stack,
	})
}

// invalidRedirect counts the redirect of p as invalid and offers to remove
// it.
func (c *Checker) invalidRedirect(sc *scanCtx, p, detail string) error {
	sc.result.InvalidRedirects++
	if !sc.ask("Invalid redirect directory", p, askRemoveRedirect, true) {
		return c.record(sc, KindInvalidRedirect, p, detail, false)
	}
	if err := c.removeRedirect(sc, p); err != nil {
		return err
	}
	return c.record(sc, KindInvalidRedirect, p, detail, true)
}

// coverTarget offers to create the whiteout that must hide the moved-away
// origin of a redirect in its own layer.
func (c *Checker) coverTarget(sc *scanCtx, p, target string) error {
	if !sc.ask("Missing whiteout", p, "Add", true) {
		return c.record(sc, KindMissingWhiteout, target, "redirected from "+p, false)
	}
	parent, ok, err := lstat(sc.layer, pathutil.Dir(target))
	if err != nil {
		return err
	}
	if !ok || !parent.IsDir() {
		sc.log(target).Debug("parent of redirect target missing, not creating whiteout")
		return nil
	}
	if err := createWhiteout(sc.layer, target); err != nil {
		return err
	}
	sc.result.Whiteouts++
	c.modified = true
	return c.record(sc, KindMissingWhiteout, target, "redirected from "+p, true)
}

// isPlainDir reports whether directory p in l is neither opaque nor a
// redirect, so that it merges with whatever lies beneath it.
func (c *Checker) isPlainDir(l *layer.Layer, p string) (bool, error) {
	opaque, err := isOpaque(l, p)
	if err != nil || opaque {
		return false, err
	}
	redirect, err := isRedirect(l, p)
	return !redirect, err
}

// resolveMergeDuplicate handles a redirect whose origin is also merged by a
// directory at the origin path in the same layer. It offers to drop the
// redirect, then to make the covering directory opaque. valid reports
// whether the redirect should still be registered.
func (c *Checker) resolveMergeDuplicate(sc *scanCtx, p, target string) (valid bool, err error) {
	sc.result.InvalidRedirects++
	detail := "origin merged by directory " + target
	if sc.ask(askDuplicateRedirect, p, askRemoveRedirect, false) {
		if err := c.removeRedirect(sc, p); err != nil {
			return false, err
		}
		return false, c.record(sc, KindDuplicateRedirect, p, detail, true)
	}
	if !sc.ask(askSetOpaque, target, "", false) {
		return false, c.record(sc, KindDuplicateRedirect, p, detail, false)
	}
	if err := setOpaque(sc.layer, target); err != nil {
		return false, err
	}
	sc.result.InvalidRedirects--
	c.modified = true
	return true, c.record(sc, KindDuplicateRedirect, p, detail+", made opaque", true)
}

// removeRedirect drops the redirect attribute of p. Once p no longer
// redirects it may merge with a lower directory of the same name: the user
// is offered to make it opaque, or else to drop another redirect of the
// same layer that already claims that lower directory.
func (c *Checker) removeRedirect(sc *scanCtx, p string) error {
	if err := removeRedirectXattr(sc.layer, p); err != nil {
		return err
	}
	sc.result.Redirects--
	sc.result.InvalidRedirects--
	c.modified = true

	lower, err := c.LookupLower(sc.layer, p)
	if err != nil {
		return err
	}
	if !lower.Found || !lower.Stat.IsDir() {
		return nil
	}

	if sc.ask(askSetOpaque, p, "", false) {
		return setOpaque(sc.layer, p)
	}

	dup, ok := c.registry.Find(lower.Path, lower.Stack)
	if !ok || dup.RedirectPath == p ||
		dup.RedirectRole != sc.layer.Role || dup.RedirectStack != sc.layer.Stack {
		return nil
	}
	if !sc.ask(askDuplicateRedirect, dup.RedirectPath, askRemoveRedirect, false) {
		return nil
	}
	sc.result.InvalidRedirects++
	c.registry.Delete(lower.Path, lower.Stack)
	if err := c.removeRedirect(sc, dup.RedirectPath); err != nil {
		return err
	}
	return c.record(sc, KindDuplicateRedirect, dup.RedirectPath, "merges with "+p, true)
}
