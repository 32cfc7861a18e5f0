package realtime

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// ExitSetupFailure is the process exit code used by the OrDie variants.
const ExitSetupFailure = 2

// for testing purposes
var exit = os.Exit

// ThreadSpec describes how a worker thread is prepared.
type ThreadSpec struct {
	Name      string
	Priority  Priority
	Budget    CPUBudget
	StackSize int // bytes to prefault; 0 uses DefaultStackPrefault
	CPU       int // logical core to pin to; negative leaves affinity alone
}

// Environment is the process and thread setup the run controller depends on.
type Environment interface {
	// Initialize runs once, before anything else.
	Initialize() error
	// PrepareThread runs on each worker goroutine before its loop starts.
	PrepareThread(spec ThreadSpec) error
}

// System is the Environment backed by the Linux real-time scheduler.
type System struct {
	Logger zerolog.Logger
}

var _ Environment = System{}

// Initialize locks memory and logs the SCHED_RR range together with the page
// faults taken during startup.
func (s System) Initialize() error {
	faults, err := Initialize()
	if err != nil {
		return err
	}
	ev := s.Logger.Info().Int64("major_faults", faults.Major).Int64("minor_faults", faults.Minor)
	if lo, hi, err := PriorityRange(); err == nil {
		ev = ev.Int("rr_min", lo).Int("rr_max", hi)
	}
	ev.Msg("memory locked")
	return nil
}

// PrepareThread prefaults the stack, applies budget and priority, then pins
// the thread when spec.CPU is set, in that order. The calling goroutine stays
// locked to its OS thread.
func (s System) PrepareThread(spec ThreadSpec) error {
	before, _ := PageFaults()

	size := spec.StackSize
	if size == 0 {
		size = DefaultStackPrefault
	}
	PrefaultStack(size)

	sched, err := SetThreadPriority(spec.Priority, spec.Budget)
	if err != nil {
		return err
	}
	if spec.CPU >= 0 {
		if err := PinToCPU(spec.CPU); err != nil {
			return err
		}
	}

	after, _ := PageFaults()
	delta := after.Sub(before)
	s.Logger.Debug().
		Str("thread", spec.Name).
		Int("tid", unix.Gettid()).
		Int("priority", sched.Priority).
		Int("cpu", spec.CPU).
		Int64("major_faults", delta.Major).
		Int64("minor_faults", delta.Minor).
		Msg("thread ready")
	return nil
}

func die(err error) {
	log.WithLevel(zerolog.FatalLevel).Err(err).Msg("real-time environment unavailable")
	exit(ExitSetupFailure)
}

// InitializeOrDie is Initialize, terminating the process on failure.
func InitializeOrDie() Faults {
	faults, err := Initialize()
	if err != nil {
		die(err)
	}
	return faults
}

// SetThreadPriorityOrDie is SetThreadPriority, terminating the process on failure.
func SetThreadPriorityOrDie(p Priority, budget CPUBudget) Scheduling {
	sched, err := SetThreadPriority(p, budget)
	if err != nil {
		die(err)
	}
	return sched
}

// PinToCPUOrDie is PinToCPU, terminating the process on failure.
func PinToCPUOrDie(core int) {
	if err := PinToCPU(core); err != nil {
		die(err)
	}
}
