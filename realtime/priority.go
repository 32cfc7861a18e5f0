package realtime

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPriority is returned for priorities outside [MinPriority, MaxPriority].
var ErrInvalidPriority = errors.New("realtime: priority out of range")

// Priority is a real-time scheduling priority in [1, 99].
type Priority int

const (
	MinPriority Priority = 1
	MaxPriority Priority = 99
)

// Validate reports whether p lies in the platform real-time priority range.
func (p Priority) Validate() error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPriority, p, MinPriority, MaxPriority)
	}
	return nil
}

// mapPriority places p into the [lo, hi] range reported by the kernel for a
// policy. Priority 1 maps to lo; values past the top of the range clamp to hi.
func mapPriority(p Priority, lo, hi int) int {
	v := lo + int(p) - int(MinPriority)
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// CPUBudget bounds, in microseconds, how long a real-time thread may run
// without making a blocking system call before the kernel signals it
// (RLIMIT_RTTIME soft limit).
type CPUBudget uint64

// DefaultCPUBudget is three seconds of uninterrupted real-time CPU.
const DefaultCPUBudget CPUBudget = 3_000_000

// BudgetFromDuration converts d to a CPUBudget, truncating to whole microseconds.
func BudgetFromDuration(d time.Duration) CPUBudget {
	if d <= 0 {
		return 0
	}
	return CPUBudget(d / time.Microsecond)
}

// Duration returns b as a time.Duration.
func (b CPUBudget) Duration() time.Duration {
	return time.Duration(b) * time.Microsecond
}
