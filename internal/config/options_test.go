package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

func TestParseMountOptions(t *testing.T) {
	tests := []struct {
		name string
		opts string
		want Dirs
	}{
		{
			name: "full",
			opts: "lowerdir=/l1:/l2,upperdir=/u,workdir=/w",
			want: Dirs{Lower: []string{"/l1", "/l2"}, Upper: "/u", Work: "/w"},
		},
		{
			name: "lower only",
			opts: "lowerdir=/a:/b",
			want: Dirs{Lower: []string{"/a", "/b"}},
		},
		{
			name: "unknown options and empty fields ignored",
			opts: "rw,,index=on,lowerdir=/a,xino=off",
			want: Dirs{Lower: []string{"/a"}},
		},
		{
			name: "later option wins",
			opts: "upperdir=/u1,upperdir=/u2",
			want: Dirs{Upper: "/u2"},
		},
		{
			name: "escaped comma stays in option",
			opts: `upperdir=/a\,b,workdir=/w`,
			want: Dirs{Upper: `/a\,b`, Work: "/w"},
		},
		{
			name: "escaped colon in lowerdir",
			opts: `lowerdir=/a\:b:/c`,
			want: Dirs{Lower: []string{"/a:b", "/c"}},
		},
		{
			name: "empty",
			opts: "",
			want: Dirs{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseMountOptions(tc.opts)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseMountOptions(%q) mismatch (-want +got):\n%s", tc.opts, diff)
			}
		})
	}
}

func TestSplitLowerDirs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/a", []string{"/a"}},
		{"/a:/b:/c", []string{"/a", "/b", "/c"}},
		{`/a\:x:/b`, []string{"/a:x", "/b"}},
		{`/a\\:/b`, []string{`/a\`, "/b"}},
		{"/a::/b", []string{"/a", "", "/b"}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, SplitLowerDirs(tc.in)); diff != "" {
			t.Errorf("SplitLowerDirs(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"l1", "l2", "u", "w"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(filepath.Join(root, "l2"), filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(Dirs{
		Lower: []string{filepath.Join(root, "l1"), filepath.Join(root, "link")},
		Upper: filepath.Join(root, "u"),
		Work:  filepath.Join(root, "w", "..", "w"),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := Dirs{
		Lower: []string{filepath.Join(realRoot, "l1"), filepath.Join(realRoot, "l2")},
		Upper: filepath.Join(realRoot, "u"),
		Work:  filepath.Join(realRoot, "w"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}

	if _, err := Resolve(Dirs{Lower: []string{filepath.Join(root, "missing")}}); err == nil {
		t.Error("expected error for missing lowerdir")
	}
}

func TestResolveInvalid(t *testing.T) {
	tests := []struct {
		name string
		dirs Dirs
	}{
		{"no lower", Dirs{Upper: "/u", Work: "/w"}},
		{"upper without work", Dirs{Lower: []string{"/"}, Upper: "/"}},
		{"work without upper", Dirs{Lower: []string{"/"}, Work: "/"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Resolve(tc.dirs); !errdefs.IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	got, dropped := Dedup(Dirs{Lower: []string{"/a", "/b", "/a", "/c", "/b"}, Upper: "/u"})
	want := Dirs{Lower: []string{"/a", "/b", "/c"}, Upper: "/u"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dedup mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/a", "/b"}, dropped); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	base := Dirs{Lower: []string{"/l"}, Upper: "/u", Work: "/w"}
	got := base.Merge(Dirs{Upper: "/u2"})
	want := Dirs{Lower: []string{"/l"}, Upper: "/u2", Work: "/w"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	if !(Dirs{}).IsZero() || got.IsZero() {
		t.Error("IsZero wrong")
	}
}
