package fsck

import (
	"fmt"
	"slices"

	"github.com/containerd/errdefs"

	"github.com/spin-stack/fsck-overlay/internal/layer"
)

// RedirectTarget is a redirect directory that has been checked and found
// valid, together with the lower directory it resolves to.
type RedirectTarget struct {
	RedirectPath  string
	RedirectRole  layer.Role
	RedirectStack int
	OriginPath    string
	OriginStack   int
}

func (t RedirectTarget) redirectLayer() string {
	if t.RedirectRole == layer.Lower {
		return fmt.Sprintf("%s-%d", t.RedirectRole, t.RedirectStack)
	}
	return t.RedirectRole.String()
}

type originKey struct {
	path  string
	stack int
}

// Registry holds the valid redirects seen so far, at most one per origin.
// It keeps insertion order so reports list redirects in scan order.
type Registry struct {
	targets map[originKey]RedirectTarget
	order   []originKey
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[originKey]RedirectTarget)}
}

// Add records t. It fails with errdefs.ErrAlreadyExists when another
// redirect already claims the same origin.
func (r *Registry) Add(t RedirectTarget) error {
	k := originKey{t.OriginPath, t.OriginStack}
	if prev, ok := r.targets[k]; ok {
		return fmt.Errorf("origin %q in lowerdir-%d already claimed by %q in %s: %w",
			t.OriginPath, t.OriginStack, prev.RedirectPath, prev.redirectLayer(), errdefs.ErrAlreadyExists)
	}
	r.targets[k] = t
	r.order = append(r.order, k)
	return nil
}

// Find returns the redirect claiming origin path in lower layer stack.
func (r *Registry) Find(path string, stack int) (RedirectTarget, bool) {
	t, ok := r.targets[originKey{path, stack}]
	return t, ok
}

// Delete forgets the redirect claiming origin path in lower layer stack.
func (r *Registry) Delete(path string, stack int) bool {
	k := originKey{path, stack}
	if _, ok := r.targets[k]; !ok {
		return false
	}
	delete(r.targets, k)
	r.order = slices.DeleteFunc(r.order, func(o originKey) bool { return o == k })
	return true
}

// Len returns the number of recorded redirects.
func (r *Registry) Len() int {
	return len(r.targets)
}

// Entries returns the recorded redirects in insertion order.
func (r *Registry) Entries() []RedirectTarget {
	out := make([]RedirectTarget, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.targets[k])
	}
	return out
}
