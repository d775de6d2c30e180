// Package mountcheck finds out whether overlay layer directories are in use
// by a mounted overlay filesystem.
package mountcheck

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moby/sys/mountinfo"

	"github.com/spin-stack/fsck-overlay/internal/config"
)

const overlayFSType = "overlay"

// Table reports whether layers belong to mounted overlays by reading the
// mount table.
type Table struct {
	mounts  func() ([]*mountinfo.Info, error)
	resolve func(string) (string, error)
}

// New returns a Table reading the mount table of the current process.
func New() *Table {
	return &Table{
		mounts: func() ([]*mountinfo.Info, error) {
			return mountinfo.GetMounts(mountinfo.FSTypeFilter(overlayFSType))
		},
		resolve: filepath.EvalSymlinks,
	}
}

// Mounted reports whether any of paths is a lower, upper or work directory
// of a mounted overlay, and returns the first such path. Any match counts
// since a repair may touch every layer.
//
// Overlays mounted with relative directories cannot be matched and are
// skipped, as are mounts whose directories no longer resolve.
func (t *Table) Mounted(paths []string) (bool, string, error) {
	infos, err := t.mounts()
	if err != nil {
		return false, "", fmt.Errorf("failed to read mount table: %w", err)
	}

	ours := make(map[string]bool, len(paths))
	for _, p := range paths {
		ours[p] = true
	}

	for _, info := range infos {
		if info.FSType != overlayFSType {
			continue
		}
		dirs, ok := t.mountDirs(info)
		if !ok {
			continue
		}
		for _, d := range dirs {
			if ours[d] {
				return true, d, nil
			}
		}
	}
	return false, "", nil
}

// mountDirs returns the resolved directories of an overlay mount.
func (t *Table) mountDirs(info *mountinfo.Info) ([]string, bool) {
	d, err := parseVFSOptions(info.VFSOptions)
	if err != nil {
		return nil, false
	}
	all := append([]string{}, d.Lower...)
	if d.Upper != "" {
		all = append(all, d.Upper)
	}
	if d.Work != "" {
		all = append(all, d.Work)
	}

	out := make([]string, 0, len(all))
	for _, p := range all {
		if !filepath.IsAbs(p) {
			return nil, false
		}
		r, err := t.resolve(p)
		if err != nil {
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}

// parseVFSOptions reads the overlay directories out of the per superblock
// options of a mountinfo line. The kernel writes separators found inside a
// path as octal escapes (\054 for a comma, \072 for a colon, \040 for a
// space), so the options are split first and each path decoded after.
func parseVFSOptions(s string) (config.Dirs, error) {
	var d config.Dirs
	for _, opt := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		switch key {
		case "lowerdir":
			d.Lower = d.Lower[:0]
			for _, p := range splitLowerDirs(val) {
				p, err := unescapeOctal(p)
				if err != nil {
					return config.Dirs{}, err
				}
				d.Lower = append(d.Lower, p)
			}
		case "upperdir", "workdir":
			p, err := unescapeOctal(val)
			if err != nil {
				return config.Dirs{}, err
			}
			if key == "upperdir" {
				d.Upper = p
			} else {
				d.Work = p
			}
		}
	}
	return d, nil
}

// escapedBackslash is a backslash as written in mountinfo. Kernels that
// print lowerdir as given at mount time show an escaped colon "\:" as
// "\134:".
const escapedBackslash = `\134`

// splitLowerDirs splits a mountinfo lowerdir value on colons, keeping a
// colon that follows an escaped backslash as part of the path.
func splitLowerDirs(s string) []string {
	var (
		dirs []string
		cur  strings.Builder
	)
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			cur.WriteByte(s[i])
			continue
		}
		if p := cur.String(); strings.HasSuffix(p, escapedBackslash) {
			cur.Reset()
			cur.WriteString(strings.TrimSuffix(p, escapedBackslash))
			cur.WriteByte(':')
			continue
		}
		dirs = append(dirs, cur.String())
		cur.Reset()
	}
	return append(dirs, cur.String())
}

// unescapeOctal decodes the \ooo sequences the kernel uses in mountinfo.
func unescapeOctal(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for len(s) > 0 {
		if s[0] != '\\' {
			b.WriteByte(s[0])
			s = s[1:]
			continue
		}
		v, multibyte, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			return "", fmt.Errorf("bad escape sequence in %q: %w", s, err)
		}
		if multibyte {
			b.WriteRune(v)
		} else {
			b.WriteByte(byte(v))
		}
		s = tail
	}
	return b.String(), nil
}
