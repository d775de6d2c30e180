// Package stringutil has small helpers for turning raw bytes into log
// friendly strings.
package stringutil

const truncatedSuffix = "... (truncated)"

// TruncateOutput returns b as a string, cut to maxLen bytes with a marker
// appended when it is longer.
func TruncateOutput(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:max(maxLen, 0)]) + truncatedSuffix
}
