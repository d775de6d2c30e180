// Package preflight checks and adjusts process limits before a check runs.
package preflight

import (
	"fmt"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"
)

// reservedFiles is the number of descriptors kept free beyond one per
// layer, for the standard streams, the journal, the lock file and the
// directories opened while walking.
const reservedFiles = 20

// Check prepares the process for checking an overlay with the given
// number of lower layers. Every layer root stays open for the whole run.
func Check(lowers int) error {
	return RaiseFileLimit(uint64(lowers) + 2 + reservedFiles)
}

// RaiseFileLimit makes sure at least need file descriptors can be open at
// once, raising the soft RLIMIT_NOFILE up to the hard limit when needed.
func RaiseFileLimit(need uint64) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return fmt.Errorf("getrlimit failed: %w", err)
	}
	if rlim.Cur >= need {
		return nil
	}
	if rlim.Max < need {
		return fmt.Errorf("need %d open files but the hard limit is %d: %w", need, rlim.Max, errdefs.ErrResourceExhausted)
	}
	rlim.Cur = need
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return fmt.Errorf("setrlimit failed: %w", err)
	}
	return nil
}

// KernelVersion returns the release of the running kernel (e.g., "6.16.0").
func KernelVersion() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", fmt.Errorf("uname failed: %w", err)
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}

// Privileged reports whether the process can see trusted.* extended
// attributes, which only CAP_SYS_ADMIN holders can.
func Privileged() bool {
	return unix.Geteuid() == 0
}
