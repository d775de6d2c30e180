package pathutil

import (
	"slices"
	"testing"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"/usr", "lib", "/usr/lib"},
		{"/usr", ".", "/usr"},
		{"/usr", "..", "/usr/.."},
		{".", "lib", "lib"},
		{"..", "lib", "../lib"},
		{".", ".", "."},
		{"..", "..", "../.."},
		{"", "", "."},
		{"usr/", "/lib", "usr/lib"},
		{"./a", "./b", "a/b"},
		{"a", "//b/c", "a/b/c"},
	}

	for _, tc := range tests {
		if got := Join(tc.dir, tc.name); got != tc.want {
			t.Errorf("Join(%q, %q) = %q, want %q", tc.dir, tc.name, got, tc.want)
		}
	}
}

func TestRel(t *testing.T) {
	tests := []struct {
		path, dir, want string
	}{
		{"/lower/a/b", "/lower", "a/b"},
		{"/lower/a/b", "/lower/", "a/b"},
		{"/lower", "/lower", "."},
		{"a/b/c", "a", "b/c"},
		{"a/b/c", ".", "a/b/c"},
		{"x/y", "a", "x/y"},
	}

	for _, tc := range tests {
		if got := Rel(tc.path, tc.dir); got != tc.want {
			t.Errorf("Rel(%q, %q) = %q, want %q", tc.path, tc.dir, got, tc.want)
		}
	}
}

func TestDirAndBase(t *testing.T) {
	tests := []struct {
		path, dir, base string
	}{
		{"a/b/c", "a/b", "c"},
		{"a", ".", "a"},
		{"a/b/", "a", "b"},
		{"/a", "/", "a"},
	}

	for _, tc := range tests {
		if got := Dir(tc.path); got != tc.dir {
			t.Errorf("Dir(%q) = %q, want %q", tc.path, got, tc.dir)
		}
		if got := Base(tc.path); got != tc.base {
			t.Errorf("Base(%q) = %q, want %q", tc.path, got, tc.base)
		}
	}
}

func TestAncestors(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"a/b/c", []string{"a", "a/b"}},
		{"a", nil},
		{".", nil},
		{"a/b/c/d", []string{"a", "a/b", "a/b/c"}},
	}

	for _, tc := range tests {
		if got := Ancestors(tc.path); !slices.Equal(got, tc.want) {
			t.Errorf("Ancestors(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
