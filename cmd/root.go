package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"line-terminal/pkg/app"
	"line-terminal/pkg/config"
)

var (
	// Root command flags
	verbose   bool
	debugLog  string
	configDir string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "line-terminal",
		Short: "A line discipline terminal with a command shell",
		Long: `line-terminal edits input a line at a time, echoes it to a console and
hands completed lines to a small command shell. The console can be a
full-screen terminal UI, the current terminal in raw mode, or a serial line.`,
		Version:           "1.0.0",
		Run:               runRoot,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&debugLog, "debug-log", "", "write debug logging to this file")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "profile directory (default ~/.line-terminal)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
}

// runRoot shows help when no subcommand is given
func runRoot(cmd *cobra.Command, args []string) {
	cmd.Help()
}

// exitOnError prints err and exits with status 1
func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func profileManager() (*config.FileProfileManager, error) {
	dir := configDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return config.NewFileProfileManager(dir), nil
}

// newLogger opens the --debug-log file. The returned close function is
// always safe to call.
func newLogger() (app.Logger, func(), error) {
	if debugLog == "" {
		return nil, func() {}, nil
	}
	logger, err := app.NewFileLogger(debugLog)
	if err != nil {
		return nil, func() {}, err
	}
	return logger, func() { logger.Close() }, nil
}
