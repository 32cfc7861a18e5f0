package rttest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeycumines/go-catrate"
	"github.com/luhtfiimanal/go-serial-rttest/clock"
	"github.com/rs/zerolog"
)

// ErrSequenceMismatch is returned by a Receiver under MismatchFatal when a
// byte arrives out of sequence.
var ErrSequenceMismatch = errors.New("rttest: sequence mismatch")

// MismatchError carries the values involved in a fatal mismatch.
type MismatchError struct {
	Expected Sequence
	Received Sequence
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: expected %v got %v", ErrSequenceMismatch, e.Expected, e.Received)
}

func (e *MismatchError) Unwrap() error {
	return ErrSequenceMismatch
}

// MismatchPolicy selects what a Receiver does with an out-of-sequence byte.
type MismatchPolicy int

const (
	// MismatchFatal aborts the run on the first out-of-sequence byte.
	MismatchFatal MismatchPolicy = iota
	// MismatchResync logs the discrepancy, re-anchors the expected value to
	// the received one and keeps going.
	MismatchResync
)

func (p MismatchPolicy) String() string {
	switch p {
	case MismatchFatal:
		return "fatal"
	case MismatchResync:
		return "resync"
	default:
		return fmt.Sprintf("MismatchPolicy(%d)", int(p))
	}
}

// ParseMismatchPolicy parses "fatal" or "resync".
func ParseMismatchPolicy(s string) (MismatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return MismatchFatal, nil
	case "resync":
		return MismatchResync, nil
	default:
		return 0, fmt.Errorf("rttest: unknown mismatch policy %q", s)
	}
}

// Stats is the per-direction tally of a run. It belongs to the loop driving
// its Transmitter or Receiver, and must only be read once that loop returned.
type Stats struct {
	Successes       uint64
	FirstSuccess    clock.Timestamp // zero until the first success
	Mismatches      uint64
	TransportErrors uint64
	SuppressedLogs  uint64
}

func (s *Stats) success() {
	if s.Successes == 0 {
		s.FirstSuccess = clock.Now()
	}
	s.Successes++
}

// Options configures the logging of a Transmitter or Receiver.
type Options struct {
	Logger zerolog.Logger
	// Limiter rate-limits hot-path log lines per category. Nil logs every
	// event.
	Limiter *catrate.Limiter
}

type tester struct {
	transport Transport
	logger    zerolog.Logger
	limiter   *catrate.Limiter
	stats     Stats
}

func newTester(t Transport, opts Options) tester {
	return tester{
		transport: t,
		logger:    opts.Logger,
		limiter:   opts.Limiter,
	}
}

// event returns a log event for category, or nil when the category is
// currently rate limited. Suppressed events are still counted.
func (x *tester) event(category string, level zerolog.Level) *zerolog.Event {
	if _, ok := x.limiter.Allow(category); !ok {
		x.stats.SuppressedLogs++
		return nil
	}
	return x.logger.WithLevel(level)
}

// Stats returns the tally so far.
func (x *tester) Stats() Stats {
	return x.stats
}

// Transmitter sends an incrementing counter, one byte per successful write.
type Transmitter struct {
	tester
	counter Sequence
}

// NewTransmitter returns a Transmitter whose first byte is 0.
func NewTransmitter(t Transport, opts Options) *Transmitter {
	return &Transmitter{tester: newTester(t, opts)}
}

// Counter returns the value the next Send will attempt.
func (x *Transmitter) Counter() Sequence {
	return x.counter
}

// Send attempts to write the current counter value. The counter only
// advances when the byte was accepted; otherwise the same value is retried on
// the next call.
func (x *Transmitter) Send() {
	ok, err := x.transport.TryWriteByte(byte(x.counter))
	if err != nil {
		x.stats.TransportErrors++
		if ev := x.event("tx/write", zerolog.WarnLevel); ev != nil {
			ev.Err(err).Uint64("errors", x.stats.TransportErrors).Msg("write failed")
		}
		return
	}
	if !ok {
		return
	}
	x.stats.success()
	x.counter = x.counter.Next()
}

// Receiver validates the incoming counter stream.
type Receiver struct {
	tester
	policy   MismatchPolicy
	expected Sequence
}

// NewReceiver returns a Receiver expecting 0 as its first byte.
func NewReceiver(t Transport, policy MismatchPolicy, opts Options) *Receiver {
	return &Receiver{tester: newTester(t, opts), policy: policy}
}

// Expected returns the value the next received byte should carry.
func (x *Receiver) Expected() Sequence {
	return x.expected
}

// Receive attempts to read one byte and checks it against the expected
// value. Nothing available is not an event: no counters move and nothing is
// logged. The only error returned is a *MismatchError under MismatchFatal.
func (x *Receiver) Receive() error {
	b, ok, err := x.transport.TryReadByte()
	if err != nil {
		x.stats.TransportErrors++
		if ev := x.event("rx/read", zerolog.WarnLevel); ev != nil {
			ev.Err(err).Uint64("errors", x.stats.TransportErrors).Msg("read failed")
		}
		return nil
	}
	if !ok {
		return nil
	}

	received := Sequence(b)
	if received != x.expected {
		x.stats.Mismatches++
		if x.policy == MismatchFatal {
			return &MismatchError{Expected: x.expected, Received: received}
		}
		if ev := x.event("rx/mismatch", zerolog.ErrorLevel); ev != nil {
			ev.Uint8("expected", uint8(x.expected)).
				Str("expected_hex", fmt.Sprintf("%02x", uint8(x.expected))).
				Uint8("received", uint8(received)).
				Str("received_hex", fmt.Sprintf("%02x", uint8(received))).
				Uint64("mismatches", x.stats.Mismatches).
				Msg("sequence mismatch")
		}
	}

	// Re-anchor on what actually arrived, so one lost byte does not turn
	// every following byte into a mismatch.
	x.expected = received.Next()
	x.stats.success()
	return nil
}
