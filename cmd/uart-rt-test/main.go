// Command uart-rt-test stress-tests the real-time behaviour of a serial
// link. It saturates the port with an incrementing 8-bit counter and reads
// it back as fast as it can, expecting a second instance (or a loopback) at
// the far end of the line, and reports throughput for both directions when
// interrupted or once the packet limit is reached.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	serial "github.com/luhtfiimanal/go-serial-rttest"
	"github.com/luhtfiimanal/go-serial-rttest/config"
	"github.com/luhtfiimanal/go-serial-rttest/logging"
	"github.com/luhtfiimanal/go-serial-rttest/realtime"
	"github.com/luhtfiimanal/go-serial-rttest/rttest"
)

const appName = "uart-rt-test"

const (
	exitOK       = 0
	exitUsage    = 1
	exitRealtime = realtime.ExitSetupFailure
	exitMismatch = 3
	exitOpen     = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return exitUsage
	}

	logger := logging.Configure(appName, logging.ProfileRuntime)

	tok := rttest.NewToken()
	signals := rttest.NotifySignals(tok, logger)
	defer signals.Stop()

	c := &rttest.Controller{
		Env: realtime.System{Logger: logger},
		Open: func() (rttest.Port, error) {
			return serial.Open(cfg.SerialConfig())
		},
		Config: cfg.RunConfig(),
		Logger: logger,
		Token:  tok,
	}

	report, err := c.Run(context.Background())
	if report != nil {
		report.Device = cfg.Device
		report.BaudRate = cfg.BaudRate
		report.BudgetOverruns = signals.Overruns()
		if werr := report.Write(stdout, cfg.ReportFormat); werr != nil {
			logger.Error().Err(werr).Msg("write report")
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, realtime.ErrSetup):
		return exitRealtime
	case errors.Is(err, rttest.ErrSequenceMismatch):
		return exitMismatch
	case errors.Is(err, rttest.ErrOpen):
		return exitOpen
	default:
		return exitUsage
	}
}

// parseArgs builds the run configuration: defaults, then the -config file,
// then explicitly set flags, then the positional device and priority.
func parseArgs(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <device> [priority]\n\n", appName)
		fmt.Fprintf(fs.Output(), "priority is the SCHED_RR priority of both worker threads, 1-99.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	def := config.Default()
	var (
		configPath  = fs.String("config", "", "TOML configuration file")
		baud        = fs.Int("baud", def.BaudRate, "baud rate at which to send/receive")
		numPackets  = fs.Uint64("num-packets", def.NumPackets, "number of packets to read/write per direction, 0 for no limit")
		missedFatal = fs.Bool("missed-packets-fatal", def.MissedFatal, "abort on any missed packet; otherwise log it and resynchronize")
		cpu         = fs.Int("cpu", def.CPU, "pin both worker threads to this core, -1 to leave affinity alone")
		budget      = fs.Duration("cpu-budget", def.CPUBudget, "uninterrupted real-time CPU allowed before the kernel signals the process")
		stack       = fs.Int("stack-prefault", def.StackSize, "bytes of stack to prefault in each worker thread")
		report      = fs.String("report", def.ReportFormat, "report format: text or yaml")
		logBurst    = fs.Int("log-burst", def.LogBurst, "mismatch/error log lines allowed per window, 0 for unlimited")
		logWindow   = fs.Duration("log-window", def.LogWindow, "window for -log-burst")
	)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "baud":
			cfg.BaudRate = *baud
		case "num-packets":
			cfg.NumPackets = *numPackets
		case "missed-packets-fatal":
			cfg.MissedFatal = *missedFatal
		case "cpu":
			cfg.CPU = *cpu
		case "cpu-budget":
			cfg.CPUBudget = *budget
		case "stack-prefault":
			cfg.StackSize = *stack
		case "report":
			cfg.ReportFormat = *report
		case "log-burst":
			cfg.LogBurst = *logBurst
		case "log-window":
			cfg.LogWindow = *logWindow
		}
	})

	switch fs.NArg() {
	case 0:
		if *configPath == "" {
			fs.Usage()
			return config.Config{}, errors.New("device argument is required")
		}
	case 1, 2:
		cfg.Device = fs.Arg(0)
		if fs.NArg() == 2 {
			p, err := strconv.Atoi(fs.Arg(1))
			if err != nil {
				return config.Config{}, fmt.Errorf("invalid priority %q: %w", fs.Arg(1), err)
			}
			cfg.Priority = realtime.Priority(p)
		}
	default:
		fs.Usage()
		return config.Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args()[2:])
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
