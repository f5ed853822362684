//go:build !unix

package utils

// RaiseOpenFileLimit is a no-op where RLIMIT_NOFILE does not exist.
func RaiseOpenFileLimit() (uint64, error) {
	return 0, nil
}
