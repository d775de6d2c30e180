//go:build !linux

// Package preflight checks and adjusts process limits before a check runs.
package preflight

import "github.com/containerd/errdefs"

// Check prepares the process for checking an overlay.
// On non-Linux platforms, this returns ErrNotImplemented.
func Check(lowers int) error {
	return errdefs.ErrNotImplemented
}

// RaiseFileLimit makes sure at least need file descriptors can be open.
func RaiseFileLimit(need uint64) error {
	return errdefs.ErrNotImplemented
}

// KernelVersion returns the release of the running kernel.
func KernelVersion() (string, error) {
	return "", errdefs.ErrNotImplemented
}

// Privileged reports whether trusted.* extended attributes are visible.
func Privileged() bool {
	return false
}
