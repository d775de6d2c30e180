package testutil

import (
	"testing"

	ctrtestutil "github.com/containerd/containerd/pkg/testutil"
)

// RequiresRoot skips the test unless it runs as root with -test.root set.
// Importing this package registers the -test.root flag.
func RequiresRoot(t testing.TB) {
	t.Helper()
	ctrtestutil.RequiresRoot(t)
}
