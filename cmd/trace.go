/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/internal/trace"
	"github.com/allbin/bkmeter/internal/tui/components"
)

// traceCmd represents the trace command
var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Print a recorded protocol trace",
	Long: `Print a CBOR protocol trace written with --trace.

Every command, answer, state change and link error is shown on one line, or
as a YAML document with --format yaml.

Example usage:
  bk549x trace session.cbor
  bk549x trace session.cbor --hex
  bk549x trace session.cbor --format yaml > session.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		hex, _ := cmd.Flags().GetBool("hex")

		r, err := trace.OpenReader(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening trace: %v\n", err)
			os.Exit(1)
		}
		defer r.Close()

		events, err := r.ReadAll()
		if err != nil {
			// A trace cut short by a crash still has useful events.
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		switch format {
		case "yaml":
			if err := trace.WriteYAML(os.Stdout, events); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				r.Close()
				os.Exit(1)
			}
		case "text":
			log := components.NewFrameLog(0, 0)
			if hex {
				log.ToggleHex()
			}
			for _, e := range events {
				fmt.Println(log.Format(e))
			}
			fmt.Printf("\n%d event(s)\n", len(events))
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown format %q (text, yaml)\n", format)
			r.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().StringP("format", "f", "text", "output format: text, yaml")
	traceCmd.Flags().Bool("hex", false, "show frame bytes as hex")
}
