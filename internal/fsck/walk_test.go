package fsck

import (
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spin-stack/fsck-overlay/internal/testutil"
)

func TestWalk(t *testing.T) {
	fsys := testutil.NewMemFS().
		WriteFile("b/f").
		Mkdir("a/c").
		Whiteout("a/w")
	set := testutil.Overlay(nil, fsys, testutil.NewMemFS())

	var events []string
	v := Visitor{
		Dir: func(e *Entry, parent *DirState) error {
			if (parent == nil) != (e.Path == ".") {
				t.Errorf("%s: parent state nil = %v", e.Path, parent == nil)
			}
			events = append(events, "dir "+e.Path)
			return nil
		},
		DirDone: func(e *Entry, _ *DirState) error {
			events = append(events, "done "+e.Path)
			return nil
		},
		Other: func(e *Entry, parent *DirState) error {
			events = append(events, "other "+e.Path)
			parent.Origins++
			return nil
		},
	}
	if err := Walk(set.Lowers[0], v); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"dir .",
		"dir a",
		"dir a/c",
		"done a/c",
		"other a/w",
		"done a",
		"dir b",
		"other b/f",
		"done b",
		"done .",
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkSeesEntriesCreatedInDir(t *testing.T) {
	fsys := testutil.NewMemFS().Mkdir("d")
	set := testutil.Overlay(nil, fsys, testutil.NewMemFS())

	var seen []string
	err := Walk(set.Lowers[0], Visitor{
		Dir: func(e *Entry, _ *DirState) error {
			if e.Path == "d" {
				return fsys.Mkwhiteout("d/new")
			}
			return nil
		},
		Other: func(e *Entry, _ *DirState) error {
			seen = append(seen, e.Path)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"d/new"}, seen); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkStatError(t *testing.T) {
	fsys := testutil.NewMemFS().WriteFile("f")
	fsys.Fail["lstat:f"] = syscall.EIO
	set := testutil.Overlay(nil, fsys, testutil.NewMemFS())

	err := Walk(set.Lowers[0], Visitor{})
	if !IsErrorCode(err, ErrCodeWalk) {
		t.Fatalf("expected walk error, got %v", err)
	}
}
