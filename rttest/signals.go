package rttest

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
)

// SignalBridge turns termination signals into a Token cancellation, and
// counts SIGXCPU notices from the real-time CPU budget watchdog.
type SignalBridge struct {
	tok      *Token
	logger   zerolog.Logger
	ch       chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
	overruns atomic.Uint64
}

// NotifySignals cancels tok on SIGINT or SIGTERM until Stop is called.
// Repeated signals are harmless.
func NotifySignals(tok *Token, logger zerolog.Logger) *SignalBridge {
	b := &SignalBridge{
		tok:    tok,
		logger: logger,
		ch:     make(chan os.Signal, 4),
		done:   make(chan struct{}),
	}
	signal.Notify(b.ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGXCPU)
	go b.run()
	return b
}

func (b *SignalBridge) run() {
	for {
		select {
		case <-b.done:
			return
		case sig := <-b.ch:
			if sig == syscall.SIGXCPU {
				if n := b.overruns.Add(1); n == 1 {
					b.logger.Warn().Msg("real-time CPU budget exceeded")
				}
				continue
			}
			if b.tok.Cancel() {
				b.logger.Info().Str("signal", sig.String()).Msg("cancellation requested")
			}
		}
	}
}

// Overruns returns the number of SIGXCPU notices received.
func (b *SignalBridge) Overruns() uint64 {
	return b.overruns.Load()
}

// Stop restores default signal handling.
func (b *SignalBridge) Stop() {
	b.stopOnce.Do(func() {
		signal.Stop(b.ch)
		close(b.done)
	})
}
