package runlock

import (
	"os"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"
)

func TestAcquire(t *testing.T) {
	dir := t.TempDir()
	id := digest.FromString("lowerdir-0=/l0\n")

	unlock, err := Acquire(dir, id)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Acquire(dir, id); !errdefs.IsUnavailable(err) {
		t.Fatalf("second Acquire: expected unavailable, got %v", err)
	}

	other, err := Acquire(dir, digest.FromString("lowerdir-0=/other\n"))
	if err != nil {
		t.Fatalf("lock of another overlay failed: %v", err)
	}
	if err := other(); err != nil {
		t.Fatal(err)
	}

	if err := unlock(); err != nil {
		t.Fatal(err)
	}
	unlock, err = Acquire(dir, id)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireInvalidID(t *testing.T) {
	if _, err := Acquire(t.TempDir(), digest.Digest("nope")); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestLockFileReused(t *testing.T) {
	dir := t.TempDir()
	id := digest.FromString("lowerdir-0=/l0\n")

	for i := 0; i < 3; i++ {
		unlock, err := Acquire(dir, id)
		if err != nil {
			t.Fatalf("Acquire #%d failed: %v", i, err)
		}
		if err := unlock(); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := os.Stat(Path(dir, id)); err != nil {
		t.Fatalf("lock file missing after release: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("lock dir holds %d files, want 1", len(entries))
	}
}
