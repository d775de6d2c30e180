package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spin-stack/fsck-overlay/internal/fsck"
)

// printSummary writes the end of run report: per pass counters and layer
// usage when verbose, the inconsistencies left, and the verdict.
func printSummary(w io.Writer, sum summary, verbose bool) {
	rep := sum.rep
	if verbose {
		for p, res := range rep.Passes {
			fmt.Fprintf(w, "Pass %d: %s\n", p+1, fsck.Pass(p))
			fmt.Fprintf(w, "Scan %s\n", res)
		}
		names := make([]string, 0, len(sum.usage))
		for name := range sum.usage {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			u := sum.usage[name]
			fmt.Fprintf(w, "%s: %d inodes, %d bytes\n", name, u.Inodes, u.Size)
		}
	}

	if msg := leftover(rep.Final); msg != "" {
		fmt.Fprintln(w, msg)
	}
	if rep.Status&fsck.StatusInconsistent != 0 {
		fmt.Fprintln(w, "Still have unexpected inconsistency!")
	}
	if rep.Status&fsck.StatusAborted != 0 {
		fmt.Fprintln(w, "Cannot continue, aborting")
	}

	if rep.Status&(fsck.StatusInconsistent|fsck.StatusAborted) != 0 {
		fmt.Fprintln(w, "WARNING: Filesystem check failed, may not clean")
		return
	}
	fmt.Fprintln(w, "Filesystem clean")
}

// leftover names the first kind of inconsistency left in r.
func leftover(r fsck.Result) string {
	switch {
	case r.InvalidWhiteouts > 0:
		return fmt.Sprintf("Invalid whiteouts %d left!", r.InvalidWhiteouts)
	case r.InvalidRedirects > 0:
		return fmt.Sprintf("Invalid redirect directories %d left!", r.InvalidRedirects)
	case r.MissingImpure > 0:
		return fmt.Sprintf("Directories %d missing impure xattr!", r.MissingImpure)
	}
	return ""
}
