//go:build unix

package utils

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RaiseOpenFileLimit lifts the soft RLIMIT_NOFILE to the hard limit, since every
// simulated device holds a socket. It returns the resulting soft limit.
func RaiseOpenFileLimit() (uint64, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("failed to read open file limit: %w", err)
	}
	if rlim.Cur >= rlim.Max {
		return uint64(rlim.Cur), nil
	}
	rlim.Cur = rlim.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("failed to raise open file limit: %w", err)
	}
	return uint64(rlim.Cur), nil
}
