/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
)

var (
	matchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	noMatchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover [port...]",
	Short: "Probe serial ports for a 549x meter",
	Long: `Probe serial ports with *IDN? and report what each one answered.

Without arguments every listed port is probed. With --first probing stops at
the first port that identifies as a 549x and only its path is printed, which
is handy in scripts.

Example usage:
  bk549x discover
  bk549x discover /dev/ttyUSB0 /dev/ttyUSB1
  bk549x discover --first`,
	Run: func(cmd *cobra.Command, args []string) {
		first, _ := cmd.Flags().GetBool("first")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		loc := serial.NewLocator(scpi.Identify, scpi.IdentitySignature, serial.WithLogger(logger))
		loc.Logger = logger
		loc.FrameLimit = cfg.FrameLimit

		if first {
			t, err := loc.Discover(ctx, args)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				stop()
				os.Exit(1)
			}
			fmt.Println(t.Endpoint().Path)
			t.Close()
			return
		}

		results, err := loc.Survey(ctx, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			stop()
			os.Exit(1)
		}
		if len(results) == 0 {
			fmt.Println("No serial ports found")
			return
		}

		found := 0
		for _, r := range results {
			switch {
			case r.Matched:
				found++
				fmt.Printf("%s %s %s\n", matchStyle.Render("✓"), r.Path, r.Identity)
			case r.Err != nil:
				fmt.Printf("%s %s %v\n", failStyle.Render("✗"), r.Path, r.Err)
			default:
				fmt.Printf("%s %s %s\n", noMatchStyle.Render("-"), r.Path, printableIdentity(r.Identity))
			}
		}
		fmt.Printf("\n%d of %d port(s) answered as a 549x meter\n", found, len(results))
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().Bool("first", false, "stop at the first meter and print its path")
}
