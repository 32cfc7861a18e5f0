package realtime

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// onThread runs fn on a fresh goroutine and waits for it. Anything fn does
// to its OS thread dies with the goroutine.
func onThread(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
}

func skipIfUnprivileged(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOMEM) {
		t.Skipf("real-time scheduling not permitted here: %v", err)
	}
}

func TestPriority_Validate(t *testing.T) {
	for _, p := range []Priority{1, 10, 49, 99} {
		require.NoError(t, p.Validate(), "priority %d", p)
	}
	for _, p := range []Priority{-1, 0, 100, 1000} {
		require.ErrorIs(t, p.Validate(), ErrInvalidPriority, "priority %d", p)
	}
}

func TestMapPriority(t *testing.T) {
	require.Equal(t, 1, mapPriority(1, 1, 99))
	require.Equal(t, 99, mapPriority(99, 1, 99))
	require.Equal(t, 10, mapPriority(10, 1, 99))
	// narrower kernel range clamps
	require.Equal(t, 50, mapPriority(99, 1, 50))
	require.Equal(t, 5, mapPriority(1, 5, 50))
}

func TestCPUBudget(t *testing.T) {
	require.Equal(t, 3*time.Second, DefaultCPUBudget.Duration())
	require.Equal(t, CPUBudget(1500), BudgetFromDuration(1500*time.Microsecond+999))
	require.Zero(t, BudgetFromDuration(-time.Second))
}

func TestPrefaultStack(t *testing.T) {
	before := prefaultSink.Load()
	onThread(func() {
		PrefaultStack(0)
		PrefaultStack(DefaultStackPrefault)
		PrefaultStack(256 * 1024)
	})
	require.NotEqual(t, before, prefaultSink.Load())
}

func TestPriorityRange(t *testing.T) {
	lo, hi, err := PriorityRange()
	require.NoError(t, err)
	require.GreaterOrEqual(t, lo, 1)
	require.GreaterOrEqual(t, hi, lo)
}

func TestSetThreadPriority_InvalidNeverTouchesScheduler(t *testing.T) {
	var (
		before, after     Scheduling
		errBefore, errSet error
		errAfter          error
	)
	onThread(func() {
		before, errBefore = ThreadScheduling()
		_, errSet = SetThreadPriority(0, DefaultCPUBudget)
		after, errAfter = ThreadScheduling()
	})

	require.NoError(t, errBefore)
	require.ErrorIs(t, errSet, ErrSetup)
	require.ErrorIs(t, errSet, ErrInvalidPriority)
	require.NoError(t, errAfter)
	require.Equal(t, before, after)
}

func TestSetThreadPriority_AppliesMappedPriority(t *testing.T) {
	lo, hi, err := PriorityRange()
	require.NoError(t, err)

	for _, p := range []Priority{1, 10, 99} {
		var (
			sched, got     Scheduling
			errSet, errGet error
		)
		onThread(func() {
			sched, errSet = SetThreadPriority(p, DefaultCPUBudget)
			got, errGet = ThreadScheduling()
		})
		if errSet != nil {
			skipIfUnprivileged(t, errSet)
		}
		require.NoError(t, errSet)
		require.NoError(t, errGet)
		require.Equal(t, sched, got)
		require.Equal(t, uint32(unix.SCHED_RR), got.Policy)
		require.Equal(t, mapPriority(p, lo, hi), got.Priority)
	}
}

func TestPinToCPU(t *testing.T) {
	var allowed unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &allowed))
	core := -1
	for i := 0; i < 1024; i++ {
		if allowed.IsSet(i) {
			core = i
			break
		}
	}
	require.GreaterOrEqual(t, core, 0)

	var (
		got            unix.CPUSet
		errPin, errGet error
	)
	onThread(func() {
		if errPin = PinToCPU(core); errPin == nil {
			errGet = unix.SchedGetaffinity(0, &got)
		}
	})
	require.NoError(t, errPin)
	require.NoError(t, errGet)
	require.Equal(t, 1, got.Count())
	require.True(t, got.IsSet(core))

	require.ErrorIs(t, PinToCPU(-1), ErrSetup)
}

func TestInitialize(t *testing.T) {
	faults, err := Initialize()
	if err != nil {
		skipIfUnprivileged(t, err)
		require.ErrorIs(t, err, ErrSetup)
		return
	}
	t.Cleanup(func() { unix.Munlockall() })
	require.GreaterOrEqual(t, faults.Minor, int64(0))
}

func TestOrDie_ExitsWithSetupFailure(t *testing.T) {
	var codes []int
	exit = func(code int) { codes = append(codes, code) }
	t.Cleanup(func() { exit = os.Exit })

	onThread(func() {
		SetThreadPriorityOrDie(0, DefaultCPUBudget)
		PinToCPUOrDie(-1)
	})

	require.Equal(t, []int{ExitSetupFailure, ExitSetupFailure}, codes)
}

func TestSystem_PrepareThread(t *testing.T) {
	sys := System{Logger: zerolog.Nop()}

	var errInvalid error
	onThread(func() {
		errInvalid = sys.PrepareThread(ThreadSpec{Name: "tx", Priority: 0, CPU: -1})
	})
	require.ErrorIs(t, errInvalid, ErrInvalidPriority)

	var (
		got             Scheduling
		errPrep, errGet error
	)
	onThread(func() {
		errPrep = sys.PrepareThread(ThreadSpec{Name: "rx", Priority: 10, Budget: DefaultCPUBudget, CPU: -1})
		got, errGet = ThreadScheduling()
	})
	if errPrep != nil {
		skipIfUnprivileged(t, errPrep)
	}
	require.NoError(t, errPrep)
	require.NoError(t, errGet)
	require.Equal(t, uint32(unix.SCHED_RR), got.Policy)
}
