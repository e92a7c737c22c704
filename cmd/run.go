package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"line-terminal/pkg/app"
	"line-terminal/pkg/config"
	"line-terminal/pkg/history"
	"line-terminal/pkg/serial"
)

var (
	runSession, runSessionFlags = newSessionFlags()

	runProfile          string
	runRetries          int
	runTranscript       string
	runTranscriptFormat string
)

// runCmd opens a device and runs the command shell on it
var runCmd = &cobra.Command{
	Use:   "run [port]",
	Short: "Open a terminal session and run the command shell",
	Long: `Open a line discipline device on the chosen backend and run the
command shell on it. Typed characters are echoed; Backspace deletes,
Ctrl+U (or the configured kill key) erases the line and Enter hands it to
the shell.

Shell commands:
  c <index> <rgb>   load palette colour 0 (background) or 1 (foreground)
  d <start> <end>   dump the shell's line buffer between two hex offsets
  e <text>          echo text
  q                 quit

Examples:
  # Full-screen session with default settings
  line-terminal run

  # Use the current terminal, pipe-friendly
  echo "e hello" | line-terminal run --backend stdio

  # Serve the shell on a serial line
  line-terminal run /dev/ttyUSB0 -b 9600

  # Use a saved profile with the mutex write strategy
  line-terminal run --profile lab --strategy mutex`,
	Args:    cobra.MaximumNArgs(1),
	Aliases: []string{"connect", "open"},
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runTerminal(cmd, args))
	},
}

func init() {
	runCmd.Flags().AddFlagSet(runSessionFlags)
	runCmd.Flags().StringVar(&runProfile, "profile", "", "load settings from a saved profile")
	runCmd.Flags().IntVar(&runRetries, "retries", serial.DefaultRetryConfig().MaxRetries, "retries when the serial port is busy")
	runCmd.Flags().StringVar(&runTranscript, "transcript", "", "save the session transcript to this file")
	runCmd.Flags().StringVar(&runTranscriptFormat, "transcript-format", "plain", "transcript format (plain, timestamped, json)")
}

func runTerminal(cmd *cobra.Command, args []string) error {
	opts, err := buildRunOptions(cmd, args)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	opts.Logger = logger

	if verbose {
		printOptions(opts)
	}

	return app.NewRunner(opts, os.Stdout).Run()
}

// buildRunOptions resolves the profile, the positional port and the flags
// into session options
func buildRunOptions(cmd *cobra.Command, args []string) (app.Options, error) {
	profile := config.DefaultProfile("default")
	if runProfile != "" {
		manager, err := profileManager()
		if err != nil {
			return app.Options{}, err
		}
		if profile, err = manager.Load(runProfile); err != nil {
			return app.Options{}, err
		}
	}

	if err := runSession.apply(cmd.Flags(), &profile); err != nil {
		return app.Options{}, err
	}

	if len(args) == 1 {
		if !isSerialPort(args[0]) {
			return app.Options{}, fmt.Errorf("'%s' is not a serial port; use 'line-terminal list' to see available ports", args[0])
		}
		profile.Backend = config.BackendSerial
		profile.Serial.Port = args[0]
	}

	opts := app.OptionsFromProfile(profile)
	opts.Retry.MaxRetries = runRetries

	if runTranscript != "" {
		format, err := history.ParseFormat(runTranscriptFormat)
		if err != nil {
			return app.Options{}, err
		}
		opts.TranscriptFile = runTranscript
		opts.TranscriptFormat = format
	}

	if err := opts.Validate(); err != nil {
		return app.Options{}, err
	}
	return opts, nil
}

func isSerialPort(name string) bool {
	lower := strings.ToLower(name)

	// Windows COM ports
	if strings.HasPrefix(lower, "com") {
		return true
	}

	// Unix-like serial devices
	if strings.HasPrefix(name, "/dev/") {
		return true
	}

	return serial.IsPortAvailable(name)
}

func printOptions(opts app.Options) {
	fmt.Printf("Backend: %s\n", opts.Backend)
	if opts.Backend == config.BackendSerial {
		fmt.Printf("  Port: %s\n", opts.Serial.Port)
		fmt.Printf("  Baud Rate: %d\n", opts.Serial.BaudRate)
		fmt.Printf("  Data Bits: %d\n", opts.Serial.DataBits)
		fmt.Printf("  Stop Bits: %d\n", opts.Serial.StopBits)
		fmt.Printf("  Parity: %s\n", opts.Serial.Parity)
	}
	d := opts.Device
	fmt.Printf("Device: line %d, keys %d, read %d, write %d, strategy %s, kill ^%s, echo %t\n",
		d.LineCapacity, d.KeyBacklog, d.ReadBacklog, d.WriteBacklog, d.Strategy, d.KillKey, d.Echo)
	if opts.TranscriptFile != "" {
		fmt.Printf("Transcript: %s (%s)\n", opts.TranscriptFile, opts.TranscriptFormat)
	}
}
