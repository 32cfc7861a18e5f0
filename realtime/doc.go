// Package realtime prepares a Linux process and its worker threads for
// latency-sensitive measurement.
//
// Each step removes one source of scheduling jitter:
//
//   - Initialize locks all current and future mappings into RAM (mlockall),
//     so nothing is swapped out or faulted in during the timed run.
//   - PrefaultStack touches the pages of a goroutine's stack before it does
//     real work.
//   - SetThreadPriority bounds the thread's real-time CPU consumption with
//     RLIMIT_RTTIME, then moves it to SCHED_RR at the requested priority.
//   - PinToCPU restricts the thread to a single logical core.
//
// The steps are mandatory and ordered: memory lock, stack prefault, priority,
// then the optional pinning. Every failure wraps ErrSetup; the OrDie variants
// log and terminate the process with ExitSetupFailure instead.
//
// SetThreadPriority and PinToCPU act on the calling OS thread, so they wire
// the calling goroutine to its thread with runtime.LockOSThread and never
// unwire it. When the goroutine exits, the runtime destroys the thread and
// the real-time policy goes with it instead of leaking into the scheduler's
// thread pool.
//
// Privileges: mlockall needs CAP_IPC_LOCK or a large enough RLIMIT_MEMLOCK,
// SCHED_RR needs CAP_SYS_NICE or a non-zero RLIMIT_RTPRIO.
package realtime
