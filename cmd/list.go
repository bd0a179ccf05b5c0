/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/serial"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports the meter could be attached to",
	Long: `List the serial ports that discovery would probe for a 549x meter.

The 549x connects through a USB virtual COM port, so USB serial adapters
(ttyUSB*) and CDC/ACM devices (ttyACM*) are the usual candidates. Standard
and board serial ports are listed too.

Example usage:
  bk549x list
  bk549x list --filter usb --table`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		filtered := filterPorts(ports, filterType)
		if len(filtered) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if tableFormat {
			renderTable(filtered)
		} else {
			renderSimple(filtered)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(ports []string, filterType string) []string {
	if filterType == "" || filterType == "all" {
		return ports
	}

	var filtered []string
	for _, port := range ports {
		name := strings.ToLower(port[strings.LastIndexAny(port, `/\`)+1:])
		switch strings.ToLower(filterType) {
		case "usb":
			if strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") ||
				strings.HasPrefix(name, "cu.usb") {
				filtered = append(filtered, port)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") || strings.HasPrefix(name, "com") {
				filtered = append(filtered, port)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, port)
			}
		}
	}
	return filtered
}

const (
	columnPort    = "port"
	columnType    = "type"
	columnUSB     = "usb"
	columnProduct = "product"
)

// renderTable renders the port list with USB details in a static table
func renderTable(ports []string) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))
	fmt.Println(portTable(ports).View())
}

func portTable(ports []string) table.Model {
	columns := []table.Column{
		table.NewColumn(columnPort, "Port", 18),
		table.NewColumn(columnType, "Type", 18),
		table.NewColumn(columnUSB, "VID:PID", 11),
		table.NewColumn(columnProduct, "Product", 32),
	}

	rows := make([]table.Row, 0, len(ports))
	for _, port := range ports {
		info, err := serial.GetPortInfo(port)
		if err != nil {
			rows = append(rows, table.NewRow(table.RowData{
				columnPort:    port,
				columnType:    "Unknown",
				columnProduct: fmt.Sprintf("Error: %v", err),
			}))
			continue
		}

		usb := ""
		if info.IsUSB {
			usb = info.VendorID + ":" + info.ProductID
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnPort:    info.Name,
			columnType:    info.Description,
			columnUSB:     usb,
			columnProduct: info.Product,
		}))
	}

	return table.New(columns).
		WithRows(rows).
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(lipgloss.Color("240")).Align(lipgloss.Left))
}

// renderSimple renders the port list in simple text format
func renderSimple(ports []string) {
	for _, port := range ports {
		fmt.Println(port)
	}
}
