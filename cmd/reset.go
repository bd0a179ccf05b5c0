/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset [port]",
	Short: "Reset the meter's USB serial adapter",
	Long: `Perform a USB-level reset on the adapter the meter is attached to. This
recovers a link that stopped answering without unplugging the meter.

The adapter re-enumerates after the reset and may get a new path, so the
meter is searched for again with *IDN? and its new path is printed. Use
--serial to pick the adapter by USB serial number.

Requirements:
- usbreset utility must be installed (from usbutils package)
- Root/sudo permissions required for USB operations

Examples:
  sudo bk549x reset /dev/ttyUSB0
  sudo bk549x reset --serial NC7ILXW1`,
	Args: func(cmd *cobra.Command, args []string) error {
		serialFlag, _ := cmd.Flags().GetString("serial")
		if serialFlag != "" && len(args) > 0 {
			return errors.New("cannot specify both port path and --serial flag")
		}
		return cobra.MaximumNArgs(1)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if !serial.IsUSBResetAvailable() {
			fmt.Fprintln(os.Stderr, "Error: usbreset utility not available")
			fmt.Fprintln(os.Stderr, "Install with: sudo apt-get install usbutils")
			os.Exit(1)
		}

		serialFlag, _ := cmd.Flags().GetString("serial")

		var err error
		switch {
		case serialFlag != "":
			fmt.Printf("Resetting USB device with serial: %s\n", serialFlag)
			err = serial.ResetUSBDeviceBySerial(serialFlag)
		default:
			portPath := cfg.Port
			if len(args) == 1 {
				portPath = args[0]
			}
			if portPath == "" {
				fmt.Fprintln(os.Stderr, "Error: requires a port path, --port or --serial")
				os.Exit(1)
			}
			fmt.Printf("Resetting USB device: %s\n", portPath)
			err = serial.ResetUSBDevice(portPath)
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, serial.ErrUSBInfoNotAvailable) {
				fmt.Fprintln(os.Stderr, "This device does not appear to be a USB device")
			}
			os.Exit(1)
		}
		fmt.Println("USB device reset successfully")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		loc := serial.NewLocator(scpi.Identify, scpi.IdentitySignature, serial.WithLogger(logger))
		loc.Logger = logger
		loc.FrameLimit = cfg.FrameLimit
		t, err := loc.Discover(ctx, nil)
		if err != nil {
			fmt.Println("Meter not found after reset; use 'bk549x discover' once it has re-enumerated")
			return
		}
		fmt.Printf("Meter is back on %s\n", t.Endpoint().Path)
		t.Close()
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringP("serial", "s", "", "USB serial number of the adapter")
}
