// Package pathutil joins and splits layer-relative paths.
//
// Paths handled here are relative to a layer root and use "." for the root
// itself. None of the functions touch the filesystem.
package pathutil

import "strings"

// Join joins a directory path and a name.
//
// A "." or empty operand yields the other one, and two of them yield ".".
// Leading "./" segments of either operand and leading slashes of name are
// dropped, and a single separator is inserted when needed:
//
//	Join("usr", "lib")   = "usr/lib"
//	Join("usr/", "/lib") = "usr/lib"
//	Join(".", "lib")     = "lib"
//	Join("usr", ".")     = "usr"
//	Join(".", ".")       = "."
func Join(dir, name string) string {
	if dir == "." {
		dir = ""
	}
	if name == "." {
		name = ""
	}
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	for strings.HasPrefix(dir, "./") {
		dir = dir[2:]
	}
	name = strings.TrimLeft(name, "/")

	switch {
	case dir == "" && name == "":
		return "."
	case dir == "":
		return name
	case name == "":
		return dir
	case strings.HasSuffix(dir, "/"):
		return dir + name
	default:
		return dir + "/" + name
	}
}

// Rel returns p relative to dir. If p is not under dir, p is returned
// unchanged. A dir of "." (or anything starting with '.') matches every path,
// and p equal to dir yields ".".
func Rel(p, dir string) string {
	if strings.HasPrefix(dir, ".") {
		dir = ""
	}
	dir = strings.TrimSuffix(dir, "/")
	if !strings.HasPrefix(p, dir) {
		return p
	}
	rest := strings.TrimLeft(p[len(dir):], "/")
	if rest == "" {
		return "."
	}
	return rest
}

// Dir returns all but the last element of p, or "." when p has a single
// element.
func Dir(p string) string {
	p = strings.TrimRight(p, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "."
	}
	if i == 0 {
		return "/"
	}
	return strings.TrimRight(p[:i], "/")
}

// Base returns the last element of p.
func Base(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "."
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Ancestors lists the proper ancestors of p from the root down, excluding
// "." and p itself. Ancestors("a/b/c") is ["a", "a/b"].
func Ancestors(p string) []string {
	var out []string
	for d := Dir(p); d != "." && d != "/"; d = Dir(d) {
		out = append(out, d)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
