package fsck

import (
	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/pathutil"
)

// LookupResult is what a cross-layer lookup found. Path, Stack and Stat are
// only meaningful when Found is set.
type LookupResult struct {
	Found bool
	Path  string // path the target was found under, after redirects
	Stack int    // lower layer the target was found in
	Stat  layer.Stat
}

// ancestorOutcome tells the lookup what to do with the next layer after
// walking the ancestors of a path in the current one.
type ancestorOutcome int

const (
	// ancestorsContinue keeps looking up the same path in the next layer.
	ancestorsContinue ancestorOutcome = iota
	// ancestorsStop ends the lookup: an ancestor is opaque or not a
	// directory, so nothing below can show through.
	ancestorsStop
	// ancestorsRedirect looks up a rewritten path in the next layer.
	ancestorsRedirect
)

type ancestorStep struct {
	outcome ancestorOutcome
	path    string // set for ancestorsRedirect
}

// walkAncestors checks the ancestors of p in l from the layer root down.
// A missing ancestor does not end the walk; the first non-directory or
// opaque ancestor stops the lookup and the first redirect found rewrites
// the path for the next layer.
func walkAncestors(l *layer.Layer, p string) (ancestorStep, error) {
	for _, a := range pathutil.Ancestors(p) {
		st, ok, err := lstat(l, a)
		if err != nil {
			return ancestorStep{}, err
		}
		if !ok {
			continue
		}
		if !st.IsDir() {
			return ancestorStep{outcome: ancestorsStop}, nil
		}
		opaque, err := isOpaque(l, a)
		if err != nil {
			return ancestorStep{}, err
		}
		if opaque {
			return ancestorStep{outcome: ancestorsStop}, nil
		}
		target, ok, err := redirectTarget(l, a)
		if err != nil {
			return ancestorStep{}, err
		}
		if ok {
			return ancestorStep{
				outcome: ancestorsRedirect,
				path:    pathutil.Join(target, pathutil.Rel(p, a)),
			}, nil
		}
	}
	return ancestorStep{outcome: ancestorsContinue}, nil
}

// lookupLayer looks p up in a single layer. Unless skipSelf is set p itself
// is checked first; when it is not there and l is not the last layer to
// search, the ancestors of p decide how the search continues.
func lookupLayer(l *layer.Layer, p string, skipSelf, last bool) (layer.Stat, bool, ancestorStep, error) {
	if !skipSelf {
		st, found, err := lstat(l, p)
		if err != nil || found {
			return st, found, ancestorStep{}, err
		}
	}
	if last {
		return layer.Stat{}, false, ancestorStep{outcome: ancestorsStop}, nil
	}
	step, err := walkAncestors(l, p)
	return layer.Stat{}, false, step, err
}

// searchLowers looks p up in the lower layers from stack start downward,
// stopping at the first layer it is found in. skipFirst skips checking p
// itself in the first layer while still honouring its ancestors.
func (c *Checker) searchLowers(p string, start int, skipFirst bool) (LookupResult, error) {
	cur := p
	for i := start; i < len(c.set.Lowers); i++ {
		st, found, step, err := lookupLayer(c.set.Lowers[i], cur, skipFirst && i == start, i == c.set.Bottom())
		if err != nil {
			return LookupResult{}, err
		}
		if found {
			return LookupResult{Found: true, Path: cur, Stack: i, Stat: st}, nil
		}
		switch step.outcome {
		case ancestorsStop:
			return LookupResult{}, nil
		case ancestorsRedirect:
			cur = step.path
		}
	}
	return LookupResult{}, nil
}

// LookupLower looks for the entry that p in l would merge with or hide: the
// first match strictly below l. For the upper layer the search covers its
// own ancestors and then every lower layer; for a lower layer it starts at
// that layer's ancestors and continues with the layers beneath it.
func (c *Checker) LookupLower(l *layer.Layer, p string) (LookupResult, error) {
	if l.Role != layer.Upper {
		return c.searchLowers(p, l.Stack, true)
	}
	_, _, step, err := lookupLayer(l, p, true, false)
	if err != nil {
		return LookupResult{}, err
	}
	switch step.outcome {
	case ancestorsStop:
		return LookupResult{}, nil
	case ancestorsRedirect:
		p = step.path
	}
	return c.searchLowers(p, 0, false)
}

// Lookup looks p up starting at lower layer start, including that layer
// itself. It resolves redirect targets.
func (c *Checker) Lookup(p string, start int) (LookupResult, error) {
	return c.searchLowers(p, start, false)
}
