package rttest

import (
	"fmt"
	"io"

	"github.com/luhtfiimanal/go-serial-rttest/clock"
	"gopkg.in/yaml.v3"
)

// Report formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// DirectionReport summarizes one direction of a run.
type DirectionReport struct {
	ElapsedSeconds   float64 `yaml:"elapsed_seconds"`
	Packets          uint64  `yaml:"packets"`
	PacketsPerSecond float64 `yaml:"packets_per_second"`
	MicrosPerPacket  float64 `yaml:"us_per_packet"`
	Mismatches       uint64  `yaml:"mismatches"`
	TransportErrors  uint64  `yaml:"transport_errors"`
	SuppressedLogs   uint64  `yaml:"suppressed_logs"`
}

// NewDirectionReport computes throughput for stats. The elapsed time starts
// at the first successful transfer when there was one, since that is when
// bytes actually started moving, and at start otherwise.
func NewDirectionReport(start, end clock.Timestamp, stats Stats) DirectionReport {
	if stats.Successes > 0 && !stats.FirstSuccess.IsZero() {
		start = stats.FirstSuccess
	}
	r := DirectionReport{
		ElapsedSeconds:  clock.ElapsedSeconds(start, end),
		Packets:         stats.Successes,
		Mismatches:      stats.Mismatches,
		TransportErrors: stats.TransportErrors,
		SuppressedLogs:  stats.SuppressedLogs,
	}
	if r.ElapsedSeconds > 0 && r.Packets > 0 {
		r.PacketsPerSecond = float64(r.Packets) / r.ElapsedSeconds
		r.MicrosPerPacket = 1e6 / r.PacketsPerSecond
	}
	return r
}

// Report is the final result of a run, produced after both loops joined.
type Report struct {
	RunID          string          `yaml:"run_id"`
	Device         string          `yaml:"device,omitempty"`
	BaudRate       int             `yaml:"baud_rate,omitempty"`
	Policy         string          `yaml:"mismatch_policy"`
	BudgetOverruns uint64          `yaml:"budget_overruns"`
	TX             DirectionReport `yaml:"tx"`
	RX             DirectionReport `yaml:"rx"`
}

// Write renders r in format, FormatText or FormatYAML.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", FormatText:
		return r.WriteText(w)
	case FormatYAML:
		return r.WriteYAML(w)
	default:
		return fmt.Errorf("rttest: unknown report format %q", format)
	}
}

// WriteText renders r as two plain-text blocks, TX then RX.
func (r *Report) WriteText(w io.Writer) error {
	for _, d := range []struct {
		title string
		r     DirectionReport
	}{{"TX", r.TX}, {"RX", r.RX}} {
		_, err := fmt.Fprintf(w,
			"==== %s ====\n"+
				"Elapsed time = %.6f\n"+
				"Num packets = %d\n"+
				"Avg packets/s = %.2f\n"+
				"Avg us/packet = %.2f\n"+
				"Mismatches = %d\n"+
				"Transport errors = %d\n",
			d.title, d.r.ElapsedSeconds, d.r.Packets, d.r.PacketsPerSecond,
			d.r.MicrosPerPacket, d.r.Mismatches, d.r.TransportErrors)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML renders r as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}
