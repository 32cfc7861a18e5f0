package realtime

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// ErrSetup wraps every failure to establish the real-time environment.
var ErrSetup = errors.New("realtime: setup failed")

const rlimInfinity = ^uint64(0)

// Faults is a snapshot of the page faults taken by the process so far.
type Faults struct {
	Major int64
	Minor int64
}

// Sub returns the faults taken between u and f.
func (f Faults) Sub(u Faults) Faults {
	return Faults{Major: f.Major - u.Major, Minor: f.Minor - u.Minor}
}

// PageFaults reads the process fault counters.
func PageFaults() (Faults, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Faults{}, fmt.Errorf("getrusage: %w", err)
	}
	return Faults{Major: ru.Majflt, Minor: ru.Minflt}, nil
}

// Initialize locks the entire process address space, current and future
// mappings, into physical memory. It must run before any other setup step.
// The returned Faults are the ones taken up to that point.
func Initialize() (Faults, error) {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return Faults{}, fmt.Errorf("%w: mlockall: %w", ErrSetup, err)
	}
	return PageFaults()
}

// PriorityRange returns the kernel's [min, max] priority range for SCHED_RR.
func PriorityRange() (lo, hi int, err error) {
	r, _, errno := unix.Syscall(unix.SYS_SCHED_GET_PRIORITY_MIN, unix.SCHED_RR, 0, 0)
	if errno != 0 {
		return 0, 0, fmt.Errorf("sched_get_priority_min: %w", errno)
	}
	lo = int(r)
	r, _, errno = unix.Syscall(unix.SYS_SCHED_GET_PRIORITY_MAX, unix.SCHED_RR, 0, 0)
	if errno != 0 {
		return 0, 0, fmt.Errorf("sched_get_priority_max: %w", errno)
	}
	hi = int(r)
	return lo, hi, nil
}

// SetCPULimit sets the RLIMIT_RTTIME soft limit of the process to budget.
// A budget above the hard limit is clamped to it. Zero leaves the limit
// untouched.
func SetCPULimit(budget CPUBudget) error {
	if budget == 0 {
		return nil
	}
	var rl unix.Rlimit
	if err := unix.Prlimit(0, unix.RLIMIT_RTTIME, nil, &rl); err != nil {
		return fmt.Errorf("%w: get RLIMIT_RTTIME: %w", ErrSetup, err)
	}
	rl.Cur = uint64(budget)
	if rl.Max != rlimInfinity && rl.Cur > rl.Max {
		rl.Cur = rl.Max
	}
	if err := unix.Prlimit(0, unix.RLIMIT_RTTIME, &rl, nil); err != nil {
		return fmt.Errorf("%w: set RLIMIT_RTTIME: %w", ErrSetup, err)
	}
	return nil
}

// Scheduling describes the policy and priority of a thread.
type Scheduling struct {
	Policy   uint32
	Priority int
}

// ThreadScheduling returns the scheduling of the calling OS thread.
func ThreadScheduling() (Scheduling, error) {
	attr, err := unix.SchedGetAttr(0, 0)
	if err != nil {
		return Scheduling{}, fmt.Errorf("sched_getattr: %w", err)
	}
	return Scheduling{Policy: attr.Policy, Priority: int(attr.Priority)}, nil
}

// SetThreadPriority first bounds the real-time CPU budget, then moves the
// calling thread to SCHED_RR with p mapped into the kernel's priority range.
// It reads the scheduling back and fails unless it took effect.
//
// The calling goroutine stays locked to its OS thread afterwards.
func SetThreadPriority(p Priority, budget CPUBudget) (Scheduling, error) {
	if err := p.Validate(); err != nil {
		return Scheduling{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	runtime.LockOSThread()

	if err := SetCPULimit(budget); err != nil {
		return Scheduling{}, err
	}

	lo, hi, err := PriorityRange()
	if err != nil {
		return Scheduling{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	want := Scheduling{Policy: unix.SCHED_RR, Priority: mapPriority(p, lo, hi)}

	attr := unix.SchedAttr{
		Policy:   want.Policy,
		Priority: uint32(want.Priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return Scheduling{}, fmt.Errorf("%w: sched_setattr(SCHED_RR, %d): %w", ErrSetup, want.Priority, err)
	}

	got, err := ThreadScheduling()
	if err != nil {
		return Scheduling{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if got != want {
		return got, fmt.Errorf("%w: scheduling is %+v after setting %+v", ErrSetup, got, want)
	}
	return got, nil
}

// PinToCPU restricts the calling thread to the logical core core.
//
// The calling goroutine stays locked to its OS thread afterwards.
func PinToCPU(core int) error {
	if core < 0 {
		return fmt.Errorf("%w: invalid cpu %d", ErrSetup, core)
	}

	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("%w: pin to cpu %d: %w", ErrSetup, core, err)
	}
	return nil
}
