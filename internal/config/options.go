// Package config assembles the set of directories to check from mount
// style options, command line flags and an optional TOML file.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
)

// Mount option keys understood by ParseMountOptions.
const (
	optLowerDir = "lowerdir="
	optUpperDir = "upperdir="
	optWorkDir  = "workdir="
)

// Dirs names the directories of one overlay as given by the user. Lower is
// ordered top to bottom, as in the lowerdir= mount option.
type Dirs struct {
	Lower []string `toml:"lowerdir"`
	Upper string   `toml:"upperdir"`
	Work  string   `toml:"workdir"`
}

// IsZero reports whether no directory is set.
func (d Dirs) IsZero() bool {
	return len(d.Lower) == 0 && d.Upper == "" && d.Work == ""
}

// Merge returns d with every directory set in o replacing its own.
func (d Dirs) Merge(o Dirs) Dirs {
	if len(o.Lower) > 0 {
		d.Lower = o.Lower
	}
	if o.Upper != "" {
		d.Upper = o.Upper
	}
	if o.Work != "" {
		d.Work = o.Work
	}
	return d
}

// ParseMountOptions parses overlay mount options such as
// "lowerdir=/l1:/l2,upperdir=/u,workdir=/w". Options are split on commas
// not escaped by a backslash, unknown options are ignored and a later
// occurrence of an option replaces an earlier one. The lowerdir value is
// split with SplitLowerDirs.
func ParseMountOptions(s string) Dirs {
	var d Dirs
	for _, opt := range splitOptions(s) {
		switch {
		case strings.HasPrefix(opt, optLowerDir):
			d.Lower = SplitLowerDirs(opt[len(optLowerDir):])
		case strings.HasPrefix(opt, optUpperDir):
			d.Upper = opt[len(optUpperDir):]
		case strings.HasPrefix(opt, optWorkDir):
			d.Work = opt[len(optWorkDir):]
		}
	}
	return d
}

// splitOptions splits s on commas. A backslash protects the next character
// and is kept in the option.
func splitOptions(s string) []string {
	var (
		opts  []string
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case ',':
			if i > start {
				opts = append(opts, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		opts = append(opts, s[start:])
	}
	return opts
}

// SplitLowerDirs splits a lowerdir value on unescaped colons and drops the
// escaping backslashes. An empty value yields no directories.
func SplitLowerDirs(s string) []string {
	if s == "" {
		return nil
	}
	var (
		dirs []string
		cur  strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			}
		case ':':
			dirs = append(dirs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(dirs, cur.String())
}

// Resolve turns every directory into a canonical absolute path with
// symlinks evaluated. The upper and work directories must be given
// together, and at least one lower directory is required.
func Resolve(d Dirs) (Dirs, error) {
	if len(d.Lower) == 0 {
		return Dirs{}, fmt.Errorf("no lowerdir given: %w", errdefs.ErrInvalidArgument)
	}
	if (d.Upper == "") != (d.Work == "") {
		return Dirs{}, fmt.Errorf("upperdir and workdir must be given together: %w", errdefs.ErrInvalidArgument)
	}

	var (
		out Dirs
		err error
	)
	out.Lower = make([]string, len(d.Lower))
	for i, p := range d.Lower {
		if out.Lower[i], err = resolvePath(p); err != nil {
			return Dirs{}, fmt.Errorf("failed to resolve lowerdir %s: %w", p, err)
		}
	}
	if d.Upper != "" {
		if out.Upper, err = resolvePath(d.Upper); err != nil {
			return Dirs{}, fmt.Errorf("failed to resolve upperdir %s: %w", d.Upper, err)
		}
		if out.Work, err = resolvePath(d.Work); err != nil {
			return Dirs{}, fmt.Errorf("failed to resolve workdir %s: %w", d.Work, err)
		}
	}
	return out, nil
}

// Dedup drops repeated lower directories, keeping the first occurrence.
// It reports the dropped paths.
func Dedup(d Dirs) (Dirs, []string) {
	seen := make(map[string]bool, len(d.Lower))
	var (
		lower   []string
		dropped []string
	)
	for _, p := range d.Lower {
		if seen[p] {
			dropped = append(dropped, p)
			continue
		}
		seen[p] = true
		lower = append(lower, p)
	}
	d.Lower = lower
	return d, dropped
}

func resolvePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path: %w", errdefs.ErrInvalidArgument)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
