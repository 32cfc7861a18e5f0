package realtime

import (
	"sync/atomic"
)

// DefaultStackPrefault is the stack extent guaranteed safe to touch without
// faulting once PrefaultStack has run.
const DefaultStackPrefault = 8 * 1024

const stackFrameBytes = 4096

var prefaultSink atomic.Uint64

// PrefaultStack grows the calling goroutine's stack to at least size bytes
// and writes to every page of it, so the measurement loop that follows never
// takes a first-touch fault on its stack. With MCL_FUTURE in effect the
// pages stay resident.
//
// The garbage collector may later shrink a goroutine stack that uses less
// than a quarter of its size, which hands the prefaulted pages back. Run with
// GODEBUG=gcshrinkstackoff=1 to keep the grown stack for the whole run.
func PrefaultStack(size int) {
	if size <= 0 {
		return
	}
	frames := (size + stackFrameBytes - 1) / stackFrameBytes
	prefaultSink.Add(uint64(touchFrames(frames)))
}

//go:noinline
func touchFrames(n int) byte {
	var frame [stackFrameBytes]byte
	for i := 0; i < len(frame); i += 256 {
		frame[i] = byte(n + i)
	}
	frame[len(frame)-1] = byte(n)
	if n > 1 {
		return frame[n%len(frame)] + touchFrames(n-1)
	}
	return frame[len(frame)-1]
}
