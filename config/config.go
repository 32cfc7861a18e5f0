// Package config loads and validates the parameters of a stress run.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	serial "github.com/luhtfiimanal/go-serial-rttest"
	"github.com/luhtfiimanal/go-serial-rttest/realtime"
	"github.com/luhtfiimanal/go-serial-rttest/rttest"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full set of run parameters.
type Config struct {
	Device       string
	BaudRate     int
	Priority     realtime.Priority
	CPU          int // negative: no pinning
	CPUBudget    time.Duration
	StackSize    int
	NumPackets   uint64 // 0: unlimited
	MissedFatal  bool
	ReportFormat string
	LogBurst     int
	LogWindow    time.Duration
}

type fileConfig struct {
	Device       string `toml:"device"`
	BaudRate     int    `toml:"baud_rate"`
	Priority     int    `toml:"priority"`
	CPU          int    `toml:"cpu"`
	CPUBudget    string `toml:"cpu_budget"`
	StackSize    int    `toml:"stack_prefault"`
	NumPackets   uint64 `toml:"num_packets"`
	MissedFatal  bool   `toml:"missed_packets_fatal"`
	ReportFormat string `toml:"report_format"`
	LogBurst     int    `toml:"log_burst"`
	LogWindow    string `toml:"log_window"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Device:       "/dev/ttyS0",
		BaudRate:     115200,
		Priority:     1,
		CPU:          -1,
		CPUBudget:    realtime.DefaultCPUBudget.Duration(),
		StackSize:    realtime.DefaultStackPrefault,
		NumPackets:   0,
		MissedFatal:  true,
		ReportFormat: rttest.FormatText,
		LogBurst:     10,
		LogWindow:    time.Second,
	}
}

// Load overlays the keys defined in the TOML file at path onto Default.
// The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("priority") {
		cfg.Priority = realtime.Priority(raw.Priority)
	}
	if meta.IsDefined("cpu") {
		cfg.CPU = raw.CPU
	}
	if meta.IsDefined("cpu_budget") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CPUBudget))
		if err != nil {
			return Config{}, fmt.Errorf("parse cpu_budget: %w", err)
		}
		cfg.CPUBudget = d
	}
	if meta.IsDefined("stack_prefault") {
		cfg.StackSize = raw.StackSize
	}
	if meta.IsDefined("num_packets") {
		cfg.NumPackets = raw.NumPackets
	}
	if meta.IsDefined("missed_packets_fatal") {
		cfg.MissedFatal = raw.MissedFatal
	}
	if meta.IsDefined("report_format") {
		cfg.ReportFormat = strings.ToLower(strings.TrimSpace(raw.ReportFormat))
	}
	if meta.IsDefined("log_burst") {
		cfg.LogBurst = raw.LogBurst
	}
	if meta.IsDefined("log_window") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.LogWindow))
		if err != nil {
			return Config{}, fmt.Errorf("parse log_window: %w", err)
		}
		cfg.LogWindow = d
	}

	return cfg, nil
}

// Validate checks every field against what the transport and the scheduler
// accept. Invalid values are configuration errors, never runtime faults.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Device) == "" {
		return fmt.Errorf("%w: device is required", ErrInvalid)
	}
	if !serial.SupportedBaudRate(cfg.BaudRate) {
		return fmt.Errorf("%w: unsupported baud rate %d", ErrInvalid, cfg.BaudRate)
	}
	if err := cfg.Priority.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if cfg.CPUBudget <= 0 {
		return fmt.Errorf("%w: cpu_budget must be positive", ErrInvalid)
	}
	if cfg.StackSize <= 0 {
		return fmt.Errorf("%w: stack_prefault must be positive", ErrInvalid)
	}
	switch cfg.ReportFormat {
	case rttest.FormatText, rttest.FormatYAML:
	default:
		return fmt.Errorf("%w: unknown report format %q", ErrInvalid, cfg.ReportFormat)
	}
	if cfg.LogBurst < 0 {
		return fmt.Errorf("%w: log_burst must not be negative", ErrInvalid)
	}
	if cfg.LogBurst > 0 && cfg.LogWindow <= 0 {
		return fmt.Errorf("%w: log_window must be positive when log_burst is set", ErrInvalid)
	}
	return nil
}

// Policy returns the mismatch policy selected by MissedFatal.
func (c Config) Policy() rttest.MismatchPolicy {
	if c.MissedFatal {
		return rttest.MismatchFatal
	}
	return rttest.MismatchResync
}

// RunConfig converts c into the controller's parameters. Both loops share
// the pinning core, if any.
func (c Config) RunConfig() rttest.Config {
	return rttest.Config{
		Priority:   c.Priority,
		Budget:     realtime.BudgetFromDuration(c.CPUBudget),
		StackSize:  c.StackSize,
		TxCPU:      c.CPU,
		RxCPU:      c.CPU,
		NumPackets: c.NumPackets,
		Policy:     c.Policy(),
		LogBurst:   c.LogBurst,
		LogWindow:  c.LogWindow,
	}
}

// SerialConfig returns the transport parameters.
func (c Config) SerialConfig() serial.Config {
	return serial.Config{Device: c.Device, BaudRate: c.BaudRate}
}
