package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"line-terminal/pkg/config"
)

// Runner provides a high-level interface to run one terminal session
type Runner struct {
	opts Options
	out  io.Writer
	app  *Application
}

// NewRunner creates a runner printing its banner and summary to out
func NewRunner(opts Options, out io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	return &Runner{opts: opts, out: out}
}

// Run starts the session and blocks until it ends or a signal arrives
func (r *Runner) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.RunContext(ctx)
}

// RunContext is Run with a caller-supplied context
func (r *Runner) RunContext(ctx context.Context) error {
	if err := r.opts.Validate(); err != nil {
		return err
	}
	r.printBanner()

	app, err := NewApplication(r.opts)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	r.app = app

	runErr := app.Run(ctx)
	if err := app.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop application: %w", err)
	}

	if r.opts.TranscriptFile != "" {
		if err := app.Transcript().SaveToFile(r.opts.TranscriptFile, r.opts.TranscriptFormat); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to save transcript: %w", err)
		}
	}

	r.printSessionSummary()
	return runErr
}

func (r *Runner) printBanner() {
	fmt.Fprintf(r.out, "\n=== Line Terminal Session Started ===\n")
	fmt.Fprintf(r.out, "Backend: %s\n", r.opts.Backend)
	if r.opts.Backend == config.BackendSerial {
		s := r.opts.Serial
		fmt.Fprintf(r.out, "Port: %s\n", s.Port)
		fmt.Fprintf(r.out, "Settings: %d %d-%s-%d\n",
			s.BaudRate, s.DataBits, string(s.Parity[0]), s.StopBits)
	}
	fmt.Fprintf(r.out, "Write strategy: %s\n", r.opts.Device.Strategy)
	fmt.Fprintf(r.out, "Press Ctrl+C or type q to exit\n")
	fmt.Fprintf(r.out, "=====================================\n\n")
}

// printSessionSummary prints a summary of the session
func (r *Runner) printSessionSummary() {
	if r.app == nil {
		return
	}

	stats := r.app.Device().Stats()

	fmt.Fprintf(r.out, "\n=== Session Summary ===\n")
	fmt.Fprintf(r.out, "Duration: %v\n", r.app.Duration())
	fmt.Fprintf(r.out, "Lines Read: %d\n", stats.LinesCommitted)
	fmt.Fprintf(r.out, "Bytes Written: %d\n", stats.BytesWritten)
	if stats.ShortWrites > 0 {
		fmt.Fprintf(r.out, "Short Writes: %d\n", stats.ShortWrites)
	}
	if dropped := stats.KeysDropped + stats.CharsDropped + stats.LinesDropped; dropped > 0 {
		fmt.Fprintf(r.out, "Dropped: %d keys, %d chars, %d lines\n",
			stats.KeysDropped, stats.CharsDropped, stats.LinesDropped)
	}
	if t := r.app.Transcript(); t != nil {
		ts := t.Stats()
		fmt.Fprintf(r.out, "Transcript: %d lines in, %d replies out -> %s\n",
			ts.InputEntries, ts.OutputEntries, r.opts.TranscriptFile)
	}
	fmt.Fprintf(r.out, "=====================\n")
}

// App returns the application of the last run
func (r *Runner) App() *Application {
	return r.app
}
