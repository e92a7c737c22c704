package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"line-terminal/pkg/config"
)

var (
	saveSession, saveSessionFlags = newSessionFlags()

	saveDescription string
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage session profiles",
	Long: `Manage saved session profiles.

A profile names a backend together with its device and serial settings so
a session can be started with 'line-terminal run --profile <name>'.`,
}

// saveCmd saves a profile
var saveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a session profile",
	Long: `Save a profile built from the given flags. Flags that are not given keep
their value from an existing profile of the same name, or the defaults.

Example:
  line-terminal config save lab --backend serial -p /dev/ttyUSB0 -b 9600`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runSaveConfig(cmd, args, os.Stdout))
	},
}

// listConfigCmd lists all profiles
var listConfigCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved profiles",
	Long:  `Display a list of all saved session profiles.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runListConfigs(os.Stdout))
	},
}

// deleteCmd deletes a profile
var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Delete a saved profile",
	Aliases: []string{"rm", "remove"},
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runDeleteConfig(args[0], os.Stdout))
	},
}

// showCmd shows details of a profile
var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details of a saved profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runShowConfig(args[0], os.Stdout))
	},
}

// getCmd prints one profile value
var getCmd = &cobra.Command{
	Use:   "get <name> <path>",
	Short: "Print one value of a saved profile",
	Long: `Print the value at a dotted path of a saved profile.

Example:
  line-terminal config get lab device.strategy`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runGetConfig(args[0], args[1], os.Stdout))
	},
}

// setCmd changes one profile value
var setCmd = &cobra.Command{
	Use:   "set <name> <path> <value>",
	Short: "Change one value of a saved profile",
	Long: `Change the value at a dotted path of a saved profile. The value is taken
as JSON when it parses as JSON and as a string otherwise. The result is
validated before it is saved.

Example:
  line-terminal config set lab device.write_backlog 64
  line-terminal config set lab serial.port /dev/ttyACM0`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runSetConfig(args[0], args[1], args[2], os.Stdout))
	},
}

func init() {
	// Add subcommands to config
	configCmd.AddCommand(saveCmd)
	configCmd.AddCommand(listConfigCmd)
	configCmd.AddCommand(deleteCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(getCmd)
	configCmd.AddCommand(setCmd)

	saveCmd.Flags().AddFlagSet(saveSessionFlags)
	saveCmd.Flags().StringVar(&saveDescription, "description", "", "profile description")
}

func runSaveConfig(cmd *cobra.Command, args []string, out io.Writer) error {
	name := args[0]

	manager, err := profileManager()
	if err != nil {
		return err
	}

	profile := config.DefaultProfile(name)
	if manager.Exists(name) {
		if profile, err = manager.Load(name); err != nil {
			return err
		}
	}
	if err := saveSession.apply(cmd.Flags(), &profile); err != nil {
		return err
	}
	if cmd.Flags().Changed("description") {
		profile.Description = saveDescription
	}

	if err := manager.Save(profile); err != nil {
		return fmt.Errorf("error saving profile: %w", err)
	}

	fmt.Fprintf(out, "Profile '%s' saved successfully.\n", name)
	fmt.Fprintf(out, "  Backend: %s\n", profile.Backend)
	if profile.Backend == config.BackendSerial {
		fmt.Fprintf(out, "  Port: %s\n", profile.Serial.Port)
		fmt.Fprintf(out, "  Baud Rate: %d\n", profile.Serial.BaudRate)
	}
	fmt.Fprintf(out, "  Strategy: %s\n", profile.Device.Strategy)
	return nil
}

func runListConfigs(out io.Writer) error {
	manager, err := profileManager()
	if err != nil {
		return err
	}
	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("error listing profiles: %w", err)
	}

	if len(profiles) == 0 {
		fmt.Fprintln(out, "No saved profiles found.")
		fmt.Fprintln(out, "\nUse 'line-terminal config save <name>' to save a profile.")
		return nil
	}

	fmt.Fprintf(out, "Found %d saved profile(s):\n\n", len(profiles))

	// Create a tabwriter for aligned output
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBACKEND\tPORT\tSTRATEGY\tLAST USED\tCREATED")
	fmt.Fprintln(w, "----\t-------\t----\t--------\t---------\t-------")

	for _, p := range profiles {
		lastUsed := "Never"
		if !p.LastUsedAt.IsZero() {
			lastUsed = p.LastUsedAt.Format("2006-01-02 15:04")
		}
		port := "-"
		if p.Backend == config.BackendSerial {
			port = p.Serial.Port
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name,
			p.Backend,
			port,
			p.Device.Strategy,
			lastUsed,
			p.CreatedAt.Format("2006-01-02 15:04"))
	}

	w.Flush()

	fmt.Fprintln(out, "\nUse 'line-terminal run --profile <name>' to start a session with a profile.")
	fmt.Fprintln(out, "Use 'line-terminal config show <name>' to see full details.")
	return nil
}

func runDeleteConfig(name string, out io.Writer) error {
	manager, err := profileManager()
	if err != nil {
		return err
	}
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("error deleting profile '%s': %w", name, err)
	}

	fmt.Fprintf(out, "Profile '%s' deleted successfully.\n", name)
	return nil
}

func runShowConfig(name string, out io.Writer) error {
	manager, err := profileManager()
	if err != nil {
		return err
	}
	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("error loading profiles: %w", err)
	}

	var found *config.Profile
	for i := range profiles {
		if profiles[i].Name == name {
			found = &profiles[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("profile '%s' not found", name)
	}

	fmt.Fprintf(out, "Profile: %s\n", found.Name)
	fmt.Fprintln(out, strings.Repeat("=", len(found.Name)+9))
	if found.Description != "" {
		fmt.Fprintf(out, "Description:   %s\n", found.Description)
	}
	fmt.Fprintf(out, "Backend:       %s\n", found.Backend)
	fmt.Fprintln(out)

	d := found.Device
	fmt.Fprintf(out, "Line Capacity: %d\n", d.LineCapacity)
	fmt.Fprintf(out, "Key Backlog:   %d\n", d.KeyBacklog)
	fmt.Fprintf(out, "Read Backlog:  %d\n", d.ReadBacklog)
	fmt.Fprintf(out, "Write Backlog: %d\n", d.WriteBacklog)
	fmt.Fprintf(out, "Strategy:      %s\n", d.Strategy)
	fmt.Fprintf(out, "Kill Key:      ^%s\n", d.KillKey)
	fmt.Fprintf(out, "Echo:          %t\n", d.Echo)
	fmt.Fprintln(out)

	s := found.Serial
	fmt.Fprintf(out, "Port:          %s\n", s.Port)
	fmt.Fprintf(out, "Settings:      %d %d-%s-%d\n", s.BaudRate, s.DataBits, parityLetter(s.Parity), s.StopBits)
	fmt.Fprintf(out, "Read Timeout:  %v\n", s.ReadTimeout)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Created:       %s\n", found.CreatedAt.Format(time.RFC3339))
	if !found.LastUsedAt.IsZero() {
		fmt.Fprintf(out, "Last Used:     %s\n", found.LastUsedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(out, "Last Used:     Never\n")
	}
	return nil
}

func runGetConfig(name, path string, out io.Writer) error {
	manager, err := profileManager()
	if err != nil {
		return err
	}
	value, err := manager.Get(name, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, value)
	return nil
}

func runSetConfig(name, path, value string, out io.Writer) error {
	manager, err := profileManager()
	if err != nil {
		return err
	}
	if err := manager.Set(name, path, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "Profile '%s': %s = %s\n", name, path, value)
	return nil
}

func parityLetter(parity string) string {
	if parity == "" {
		return "?"
	}
	return strings.ToUpper(parity[:1])
}
