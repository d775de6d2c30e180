package fsck

import (
	"errors"
	"fmt"

	"github.com/spin-stack/fsck-overlay/internal/layer"
)

// ErrorCode classifies operational failures that abort a scan.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unclassified error.
	ErrCodeUnknown ErrorCode = iota
	// ErrCodeStat indicates a stat of a layer entry failed.
	ErrCodeStat
	// ErrCodeXattr indicates reading an extended attribute failed.
	ErrCodeXattr
	// ErrCodeRepair indicates a repair (unlink, mknod, xattr change) failed.
	ErrCodeRepair
	// ErrCodeWalk indicates listing a directory failed.
	ErrCodeWalk
	// ErrCodeRecord indicates a finding could not be recorded.
	ErrCodeRecord
)

// String returns the string representation of an error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeStat:
		return "STAT_FAILED"
	case ErrCodeXattr:
		return "XATTR_FAILED"
	case ErrCodeRepair:
		return "REPAIR_FAILED"
	case ErrCodeWalk:
		return "WALK_FAILED"
	case ErrCodeRecord:
		return "RECORD_FAILED"
	default:
		return "UNKNOWN"
	}
}

// ScanError is an I/O failure met while scanning a layer. It aborts the
// remaining passes.
type ScanError struct {
	Code  ErrorCode
	Layer string // layer name, e.g. "upperdir" or "lowerdir-1"
	Path  string // path relative to the layer root
	Op    string
	Cause error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s %q in %s: %v", e.Op, e.Path, e.Layer, e.Cause)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// IsErrorCode checks if an error is a ScanError with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// scanErr wraps err for path in l. Errors that already are ScanErrors pass
// through unchanged so the innermost operation is reported.
func scanErr(code ErrorCode, l *layer.Layer, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *ScanError
	if errors.As(err, &se) {
		return err
	}
	return &ScanError{Code: code, Layer: l.String(), Path: path, Op: op, Cause: err}
}
