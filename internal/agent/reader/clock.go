//go:build linux

package reader

import "golang.org/x/sys/unix"

// monotonicNowNs reads CLOCK_MONOTONIC directly via clock_gettime so the
// computed offset uses the same clock source the kernel probes stamp their
// records with, rather than Go's runtime monotonic reading (which is not
// guaranteed to share an epoch with CLOCK_MONOTONIC across platforms).
func monotonicNowNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}
