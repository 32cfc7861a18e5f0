package rttest

import (
	"sync/atomic"
)

// Token is a one-shot cancellation flag shared by the transmit and receive
// loops. It starts clear, is set at most once and is never reset.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns a clear Token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the flag. It reports whether this call was the one that set it;
// any further call is a no-op.
func (t *Token) Cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}
