package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"line-terminal/pkg/serial"
)

var (
	listDetails bool
	listFormat  string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system, for use with the serial
backend. On different platforms:
  - Windows: Lists COM ports
  - Linux: Lists /dev/tty* devices
  - macOS: Lists /dev/cu.* and /dev/tty.* devices`,
	Aliases: []string{"ls", "ports"},
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runList(os.Stdout))
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listDetails, "details", "d", false, "show detailed port information")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, csv, json)")
}

func runList(out io.Writer) error {
	portInfos, err := serial.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("error listing ports: %w", err)
	}

	if len(portInfos) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
		return nil
	}

	return printPorts(out, portInfos, listFormat, listDetails)
}

func printPorts(out io.Writer, portInfos []serial.PortInfo, format string, details bool) error {
	switch format {
	case "csv":
		return printPortsCSV(out, portInfos, details)
	case "json":
		return printPortsJSON(out, portInfos, details)
	case "table":
		printPortsTable(out, portInfos, details)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func printPortsTable(out io.Writer, portInfos []serial.PortInfo, details bool) {
	fmt.Fprintf(out, "Found %d serial port(s):\n", len(portInfos))

	for _, portInfo := range portInfos {
		fmt.Fprintf(out, "  %s", portInfo.Name)

		// Add USB details if available
		if details && portInfo.IsUSB {
			fmt.Fprintf(out, " [USB]")
			if portInfo.VID != "" || portInfo.PID != "" {
				fmt.Fprintf(out, " VID:%s PID:%s", portInfo.VID, portInfo.PID)
			}
			if portInfo.Product != "" {
				fmt.Fprintf(out, " - %s", portInfo.Product)
			}
			if portInfo.SerialNumber != "" {
				fmt.Fprintf(out, " (SN: %s)", portInfo.SerialNumber)
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "\nUse 'line-terminal run <port>' to serve the shell on a port.")
}

func printPortsCSV(out io.Writer, portInfos []serial.PortInfo, details bool) error {
	w := csv.NewWriter(out)
	if details {
		w.Write([]string{"port", "is_usb", "vid", "pid", "product", "serial_number"})
		for _, p := range portInfos {
			w.Write([]string{p.Name, strconv.FormatBool(p.IsUSB), p.VID, p.PID, p.Product, p.SerialNumber})
		}
	} else {
		w.Write([]string{"port"})
		for _, p := range portInfos {
			w.Write([]string{p.Name})
		}
	}
	w.Flush()
	return w.Error()
}

func printPortsJSON(out io.Writer, portInfos []serial.PortInfo, details bool) error {
	var v any = portInfos
	if !details {
		names := make([]string, len(portInfos))
		for i, p := range portInfos {
			names[i] = p.Name
		}
		v = names
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ports: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
