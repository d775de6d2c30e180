package fsck

import (
	"context"

	"github.com/spin-stack/fsck-overlay/internal/layer"
)

// Kind identifies a consistency finding.
type Kind string

const (
	KindOrphanWhiteout    Kind = "orphan-whiteout"
	KindInvalidRedirect   Kind = "invalid-redirect"
	KindDuplicateRedirect Kind = "duplicate-redirect"
	KindMissingWhiteout   Kind = "missing-whiteout"
	KindMissingImpure     Kind = "missing-impure"
)

// Finding is a single inconsistency and what was done about it.
type Finding struct {
	Kind     Kind       `json:"kind"`
	Role     layer.Role `json:"role"`
	Stack    int        `json:"stack"`
	Layer    string     `json:"layer"`
	Path     string     `json:"path"`
	Detail   string     `json:"detail,omitempty"`
	Repaired bool       `json:"repaired"`
}

// Recorder receives every finding as it is made.
type Recorder interface {
	Record(ctx context.Context, f Finding) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, f Finding) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, fd Finding) error {
	return f(ctx, fd)
}
