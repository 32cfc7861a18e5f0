package rttest

// Unlimited disables the packet count limit of a loop.
const Unlimited uint64 = 0

// Transmit calls tx.Send until tok is cancelled or limit bytes were sent.
func Transmit(tok *Token, tx *Transmitter, limit uint64) {
	for !tok.Cancelled() && !reached(tx.stats.Successes, limit) {
		tx.Send()
	}
}

// Receive calls rx.Receive until tok is cancelled, limit bytes were
// received, or a fatal mismatch occurs.
func Receive(tok *Token, rx *Receiver, limit uint64) error {
	for !tok.Cancelled() && !reached(rx.stats.Successes, limit) {
		if err := rx.Receive(); err != nil {
			return err
		}
	}
	return nil
}

func reached(n, limit uint64) bool {
	return limit != Unlimited && n >= limit
}
