package fsck

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"

	"github.com/spin-stack/fsck-overlay/internal/layer"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := RedirectTarget{RedirectPath: "a", RedirectRole: layer.Upper, OriginPath: "orig", OriginStack: 0}
	b := RedirectTarget{RedirectPath: "b", RedirectRole: layer.Lower, RedirectStack: 0, OriginPath: "orig", OriginStack: 1}
	dup := RedirectTarget{RedirectPath: "c", RedirectRole: layer.Upper, OriginPath: "orig", OriginStack: 0}

	if err := r.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("same path in another layer must not collide: %v", err)
	}
	if err := r.Add(dup); !errdefs.IsAlreadyExists(err) {
		t.Fatalf("expected already exists, got %v", err)
	}

	got, ok := r.Find("orig", 0)
	if !ok || got != a {
		t.Errorf("Find(orig, 0) = %+v, %v, want %+v", got, ok, a)
	}
	if _, ok := r.Find("orig", 2); ok {
		t.Error("Find(orig, 2) found an entry")
	}

	if diff := cmp.Diff([]RedirectTarget{a, b}, r.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	if !r.Delete("orig", 0) {
		t.Fatal("Delete(orig, 0) found nothing")
	}
	if r.Delete("orig", 0) {
		t.Error("second Delete(orig, 0) succeeded")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if err := r.Add(dup); err != nil {
		t.Errorf("Add after Delete failed: %v", err)
	}
	if diff := cmp.Diff([]RedirectTarget{b, dup}, r.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}
