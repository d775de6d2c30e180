package fsck

import "fmt"

// Result holds the counters of a scan.
type Result struct {
	Files            int `json:"files"`
	Directories      int `json:"directories"`
	Whiteouts        int `json:"whiteouts"`
	InvalidWhiteouts int `json:"invalid_whiteouts"`
	Redirects        int `json:"redirects"`
	InvalidRedirects int `json:"invalid_redirects"`
	MissingImpure    int `json:"missing_impure"`
}

// Add adds every counter of o to r.
func (r *Result) Add(o Result) {
	r.Files += o.Files
	r.Directories += o.Directories
	r.Whiteouts += o.Whiteouts
	r.InvalidWhiteouts += o.InvalidWhiteouts
	r.Redirects += o.Redirects
	r.InvalidRedirects += o.InvalidRedirects
	r.MissingImpure += o.MissingImpure
}

// Max raises every counter of r to at least the one in o.
func (r *Result) Max(o Result) {
	r.Files = max(r.Files, o.Files)
	r.Directories = max(r.Directories, o.Directories)
	r.Whiteouts = max(r.Whiteouts, o.Whiteouts)
	r.InvalidWhiteouts = max(r.InvalidWhiteouts, o.InvalidWhiteouts)
	r.Redirects = max(r.Redirects, o.Redirects)
	r.InvalidRedirects = max(r.InvalidRedirects, o.InvalidRedirects)
	r.MissingImpure = max(r.MissingImpure, o.MissingImpure)
}

// Inconsistent reports whether any invalid or missing counter is set.
func (r Result) Inconsistent() bool {
	return r.InvalidWhiteouts > 0 || r.InvalidRedirects > 0 || r.MissingImpure > 0
}

func (r Result) String() string {
	return fmt.Sprintf("%d directories, %d files, %d/%d whiteouts, %d/%d redirect dirs, %d missing impure",
		r.Directories, r.Files,
		r.InvalidWhiteouts, r.Whiteouts,
		r.InvalidRedirects, r.Redirects,
		r.MissingImpure)
}

// Status summarizes the outcome of a run.
type Status uint8

const (
	// StatusInconsistent is set when inconsistencies were left unfixed.
	StatusInconsistent Status = 1 << iota
	// StatusAborted is set when the run stopped on an operational error or
	// a live mount.
	StatusAborted
	// StatusModified is set when at least one repair was made.
	StatusModified
)

// Exit codes, as used by fsck(8).
const (
	ExitOK          = 0
	ExitNonDestruct = 1
	ExitUncorrected = 4
	ExitError       = 8
	ExitUsage       = 16
)

// ExitCode maps the status to an fsck exit code.
func (s Status) ExitCode() int {
	code := ExitOK
	if s&StatusModified != 0 {
		code |= ExitNonDestruct
	}
	if s&StatusInconsistent != 0 {
		code |= ExitUncorrected
	}
	if s&StatusAborted != 0 {
		code |= ExitError
	}
	return code
}
