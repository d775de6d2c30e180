package fsck

import (
	"github.com/containerd/errdefs"

	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/pathutil"
)

// Extended attributes the overlay driver keeps on upper and lower entries.
const (
	xattrPrefix = "trusted.overlay."

	OpaqueXattr   = xattrPrefix + "opaque"
	RedirectXattr = xattrPrefix + "redirect"
	OriginXattr   = xattrPrefix + "origin"
	ImpureXattr   = xattrPrefix + "impure"
)

var flagValue = []byte("y")

// lstat stats p in l. A missing entry is not an error.
func lstat(l *layer.Layer, p string) (layer.Stat, bool, error) {
	st, err := l.FS.Lstat(p)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return layer.Stat{}, false, nil
		}
		return layer.Stat{}, false, scanErr(ErrCodeStat, l, "stat", p, err)
	}
	return st, true, nil
}

func hasXattr(l *layer.Layer, p, name string) (bool, error) {
	_, ok, err := l.FS.Getxattr(p, name)
	if err != nil {
		return false, scanErr(ErrCodeXattr, l, "getxattr "+name, p, err)
	}
	return ok, nil
}

// isFlagSet reports whether name is set to exactly "y".
func isFlagSet(l *layer.Layer, p, name string) (bool, error) {
	v, ok, err := l.FS.Getxattr(p, name)
	if err != nil {
		return false, scanErr(ErrCodeXattr, l, "getxattr "+name, p, err)
	}
	return ok && len(v) == 1 && v[0] == 'y', nil
}

func isOpaque(l *layer.Layer, p string) (bool, error) { return isFlagSet(l, p, OpaqueXattr) }

func isImpure(l *layer.Layer, p string) (bool, error) { return isFlagSet(l, p, ImpureXattr) }

func isRedirect(l *layer.Layer, p string) (bool, error) { return hasXattr(l, p, RedirectXattr) }

func isOrigin(l *layer.Layer, p string) (bool, error) { return hasXattr(l, p, OriginXattr) }

func setOpaque(l *layer.Layer, p string) error {
	return scanErr(ErrCodeRepair, l, "set opaque", p, l.FS.Setxattr(p, OpaqueXattr, flagValue))
}

func setImpure(l *layer.Layer, p string) error {
	return scanErr(ErrCodeRepair, l, "set impure", p, l.FS.Setxattr(p, ImpureXattr, flagValue))
}

func removeRedirectXattr(l *layer.Layer, p string) error {
	return scanErr(ErrCodeRepair, l, "remove redirect", p, l.FS.Removexattr(p, RedirectXattr))
}

func createWhiteout(l *layer.Layer, p string) error {
	return scanErr(ErrCodeRepair, l, "create whiteout", p, l.FS.Mkwhiteout(p))
}

// redirectTarget returns the layer-relative path stored in the redirect
// attribute of p. An absolute value is taken from the layer root, anything
// else is relative to the parent of p. An absent or empty attribute yields
// ok=false.
func redirectTarget(l *layer.Layer, p string) (target string, ok bool, err error) {
	v, exists, err := l.FS.Getxattr(p, RedirectXattr)
	if err != nil {
		return "", false, scanErr(ErrCodeXattr, l, "getxattr "+RedirectXattr, p, err)
	}
	if !exists || len(v) == 0 {
		return "", false, nil
	}
	if v[0] == '/' {
		return pathutil.Join(".", string(v[1:])), true, nil
	}
	return pathutil.Join(pathutil.Dir(p), string(v)), true, nil
}
