package rttest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-catrate"
	"github.com/luhtfiimanal/go-serial-rttest/clock"
	"github.com/luhtfiimanal/go-serial-rttest/realtime"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrOpen wraps a failure to open the transport.
var ErrOpen = errors.New("rttest: open transport")

// Config holds the parameters of a run.
type Config struct {
	Priority   realtime.Priority
	Budget     realtime.CPUBudget
	StackSize  int
	TxCPU      int // negative: no pinning
	RxCPU      int // negative: no pinning
	NumPackets uint64
	Policy     MismatchPolicy

	// LogBurst hot-path log lines are allowed per category within
	// LogWindow. Zero disables rate limiting.
	LogBurst  int
	LogWindow time.Duration
}

// Controller runs one transmit and one receive loop against a single port,
// each on its own real-time thread, and reports on both once they stopped.
type Controller struct {
	Env    realtime.Environment
	Open   func() (Port, error)
	Config Config
	Logger zerolog.Logger

	// Token cancels the run. A nil Token is replaced by a fresh one.
	Token *Token
	// RunID tags logs and the report. A nil RunID is replaced by a random one.
	RunID uuid.UUID
}

// Run initializes the environment, opens the port and runs both loops until
// the token is cancelled, ctx is done, the packet limit is reached in both
// directions, or a fatal mismatch occurs. Both loops are always joined and
// the port always closed before Run returns.
//
// The Report is non-nil whenever the loops were started, including when Run
// also returns an error.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	if c.RunID == uuid.Nil {
		c.RunID = uuid.New()
	}
	if c.Token == nil {
		c.Token = NewToken()
	}
	logger := c.Logger.With().Str("run", c.RunID.String()).Logger()

	if err := c.Env.Initialize(); err != nil {
		return nil, err
	}

	port, err := c.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer func() {
		if err := port.Close(); err != nil {
			logger.Warn().Err(err).Msg("close port")
		}
	}()

	stop := context.AfterFunc(ctx, func() { c.Token.Cancel() })
	defer stop()

	if err := port.FlushInput(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	opts := Options{Logger: logger, Limiter: c.limiter()}
	tx := NewTransmitter(port, opts)
	rx := NewReceiver(port, c.Config.Policy, opts)

	logger.Info().
		Int("priority", int(c.Config.Priority)).
		Uint64("num_packets", c.Config.NumPackets).
		Stringer("policy", c.Config.Policy).
		Msg("run started")

	start := clock.Now()

	var g errgroup.Group
	g.Go(func() error {
		return c.thread("tx", c.Config.TxCPU, func() error {
			Transmit(c.Token, tx, c.Config.NumPackets)
			return nil
		})
	})
	g.Go(func() error {
		return c.thread("rx", c.Config.RxCPU, func() error {
			return Receive(c.Token, rx, c.Config.NumPackets)
		})
	})
	err = g.Wait()

	end := clock.Now()

	report := &Report{
		RunID:  c.RunID.String(),
		Policy: c.Config.Policy.String(),
		TX:     NewDirectionReport(start, end, tx.Stats()),
		RX:     NewDirectionReport(start, end, rx.Stats()),
	}

	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
	}
	ev.Uint64("tx", report.TX.Packets).
		Uint64("rx", report.RX.Packets).
		Uint64("mismatches", report.RX.Mismatches).
		Msg("run finished")

	return report, err
}

// thread prepares the calling goroutine's thread and runs loop on it. Any
// failure cancels the token so the sibling loop stops as well.
func (c *Controller) thread(name string, cpu int, loop func() error) error {
	err := c.Env.PrepareThread(realtime.ThreadSpec{
		Name:      name,
		Priority:  c.Config.Priority,
		Budget:    c.Config.Budget,
		StackSize: c.Config.StackSize,
		CPU:       cpu,
	})
	if err != nil {
		c.Token.Cancel()
		return fmt.Errorf("%s thread: %w", name, err)
	}
	if err := loop(); err != nil {
		c.Token.Cancel()
		return fmt.Errorf("%s loop: %w", name, err)
	}
	return nil
}

func (c *Controller) limiter() *catrate.Limiter {
	if c.Config.LogBurst <= 0 || c.Config.LogWindow <= 0 {
		return nil
	}
	return catrate.NewLimiter(map[time.Duration]int{
		c.Config.LogWindow: c.Config.LogBurst,
	})
}
