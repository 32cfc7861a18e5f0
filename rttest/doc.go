// Package rttest implements the duplex counter-integrity protocol used to
// stress a serial link, and the controller that runs it on real-time
// threads.
//
// A Transmitter pushes an incrementing 8-bit counter through the transport
// as fast as the transport accepts it. A Receiver on the other end of the
// link tracks the next value it expects; when a byte arrives out of
// sequence it either aborts (MismatchFatal) or logs the discrepancy and
// re-anchors its expectation to the received value (MismatchResync), so a
// single lost byte costs a single mismatch instead of desynchronizing the
// rest of the run.
//
// Both loops busy-poll a non-blocking transport and observe a shared
// cancellation Token once per iteration. Neither ever sleeps: a sleep or a
// blocking read would show up in the numbers being measured.
package rttest
