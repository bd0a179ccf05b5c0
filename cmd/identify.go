/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
)

// identifyCmd represents the identify command
var identifyCmd = &cobra.Command{
	Use:   "identify <port>",
	Short: "Send *IDN? to a port and show the answer",
	Long: `Open a single port with the meter line settings (9600 8N1), send the
*IDN? identification query and print the answer. The exit status is 0 only
when the answer identifies a 549x meter.

Example usage:
  bk549x identify /dev/ttyUSB0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		t, err := serial.Open(portPath, serial.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening port: %v\n", err)
			os.Exit(1)
		}
		defer t.Close()

		identity, err := t.Identify(scpi.Identify, cfg.FrameLimit)
		if err != nil && !errors.Is(err, serial.ErrBufferExceeded) {
			fmt.Fprintf(os.Stderr, "Error identifying %s: %v\n", portPath, err)
			t.Close()
			os.Exit(1)
		}

		matched := strings.Contains(identity, scpi.IdentitySignature)
		fmt.Printf("%s: %s\n", portPath, printableIdentity(identity))
		if !matched {
			fmt.Fprintf(os.Stderr, "Not a 549x meter (expected %q in the answer)\n", scpi.IdentitySignature)
			t.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func printableIdentity(s string) string {
	if s == "" {
		return "(no answer)"
	}
	return fmt.Sprintf("%q", s)
}
