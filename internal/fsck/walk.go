package fsck

import (
	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/pathutil"
)

// Entry is one entry of a layer met during a walk.
type Entry struct {
	Path string // relative to the layer root, "." for the root
	Name string
	Stat layer.Stat
}

// DirState counts the immediate children of a directory that make it
// impure. It only lives while the directory is being walked.
type DirState struct {
	Origins   int
	Redirects int
	MergeDirs int
}

func (d *DirState) impure() bool {
	return d.Origins > 0 || d.Redirects > 0 || d.MergeDirs > 0
}

// Visitor holds the walk callbacks. parent is the state of the enclosing
// directory and is nil for the walk root. Nil callbacks are skipped.
type Visitor struct {
	// Dir is called for a directory before its children.
	Dir func(e *Entry, parent *DirState) error
	// DirDone is called for a directory after its children, with the state
	// its children filled in.
	DirDone func(e *Entry, state *DirState) error
	// Other is called for every non-directory entry.
	Other func(e *Entry, parent *DirState) error
}

// Walk visits every entry of l depth first, starting at the layer root.
// Directories are listed after Dir returns, so entries Dir creates are
// visited too. The first error stops the walk.
func Walk(l *layer.Layer, v Visitor) error {
	st, err := l.FS.Lstat(".")
	if err != nil {
		return scanErr(ErrCodeWalk, l, "stat", ".", err)
	}
	return walkDir(l, &Entry{Path: ".", Name: ".", Stat: st}, nil, v)
}

func walkDir(l *layer.Layer, e *Entry, parent *DirState, v Visitor) error {
	if v.Dir != nil {
		if err := v.Dir(e, parent); err != nil {
			return err
		}
	}

	names, err := l.FS.ReadDir(e.Path)
	if err != nil {
		return scanErr(ErrCodeWalk, l, "readdir", e.Path, err)
	}

	state := &DirState{}
	for _, name := range names {
		p := pathutil.Join(e.Path, name)
		st, err := l.FS.Lstat(p)
		if err != nil {
			return scanErr(ErrCodeWalk, l, "stat", p, err)
		}
		child := &Entry{Path: p, Name: name, Stat: st}
		if st.IsDir() {
			if err := walkDir(l, child, state, v); err != nil {
				return err
			}
			continue
		}
		if v.Other != nil {
			if err := v.Other(child, state); err != nil {
				return err
			}
		}
	}

	if v.DirDone != nil {
		return v.DirDone(e, state)
	}
	return nil
}
