// Package clock is a wall-clock independent timestamp source with nanosecond
// resolution, backed by CLOCK_MONOTONIC.
package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// Timestamp is a reading of the monotonic clock, in nanoseconds since an
// arbitrary, boot-relative epoch. The zero value means "never".
type Timestamp int64

// Now reads CLOCK_MONOTONIC. It does not allocate and is safe to call from
// the measurement loops.
func Now() Timestamp {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is mandatory on Linux
		panic(err)
	}
	return Timestamp(ts.Nano())
}

// IsZero reports whether t was never set.
func (t Timestamp) IsZero() bool {
	return t == 0
}

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(t - u)
}

// Elapsed returns the duration from start to end.
func Elapsed(start, end Timestamp) time.Duration {
	return end.Sub(start)
}

// ElapsedSeconds returns the duration from start to end in seconds.
func ElapsedSeconds(start, end Timestamp) float64 {
	return Elapsed(start, end).Seconds()
}
