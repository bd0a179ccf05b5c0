/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
)

var (
	sentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [command...]",
	Short: "Send SCPI commands to the meter",
	Long: `Send SCPI commands to the meter and print the answers to queries.

Commands are taken from the arguments or, when there are none, one per line
from stdin. Commands ending in '?' wait for an answer; others are only sent.
The meter is located with *IDN? unless --port is given.

Example usage:
  bk549x query "*IDN?"
  bk549x query CONF? READ? --port /dev/ttyUSB0
  printf 'SENS:CONT:THR?\nLOC\n' | bk549x query`,
	Run: func(cmd *cobra.Command, args []string) {
		raw, _ := cmd.Flags().GetBool("raw")

		commands := args
		if len(commands) == 0 {
			var err error
			if commands, err = readCommands(os.Stdin); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading from stdin: %v\n", err)
				os.Exit(1)
			}
		}
		if len(commands) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no commands given")
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		t, err := openMeter(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			stop()
			os.Exit(1)
		}
		defer t.Close()

		failed := false
		for _, c := range commands {
			answer, err := exchange(t, serial.Command(c))
			switch {
			case err != nil:
				failed = true
				fmt.Fprintf(os.Stderr, "%s: %v\n", c, err)
				if !serial.IsRecoverable(err) {
					t.Close()
					os.Exit(1)
				}
			case raw:
				if answer != "" {
					fmt.Println(answer)
				}
			case serial.Command(c).IsQuery():
				fmt.Printf("%s %s\n", sentStyle.Render(c), answerStyle.Render(answer))
			default:
				fmt.Printf("%s %s\n", sentStyle.Render(c), "(sent)")
			}
		}
		if failed {
			t.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().Bool("raw", false, "print only the answers, without styling")
}

// readCommands returns the non-empty lines of r.
func readCommands(r io.Reader) ([]string, error) {
	var commands []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			commands = append(commands, line)
		}
	}
	return commands, scanner.Err()
}

// openMeter opens the configured port or the first port answering as a 549x.
func openMeter(ctx context.Context) (*serial.Transport, error) {
	t, err := tracer(logger)
	if err != nil {
		return nil, err
	}
	opts := []serial.TransportOption{serial.WithLogger(logger), serial.WithTrace(t, "")}

	if cfg.Port != "" {
		return serial.Open(cfg.Port, opts...)
	}
	loc := serial.NewLocator(scpi.Identify, scpi.IdentitySignature, opts...)
	loc.Logger = logger
	loc.FrameLimit = cfg.FrameLimit
	return loc.Discover(ctx, nil)
}

// exchange writes c and, for queries, reads the answer.
func exchange(t *serial.Transport, c serial.Command) (string, error) {
	if !c.IsQuery() {
		ok, err := t.Write(c)
		if err == nil && !ok {
			err = fmt.Errorf("%w: writing %q", serial.ErrTransportTimeout, c.String())
		}
		return "", err
	}
	frame, err := t.Query(c, cfg.FrameLimit)
	if errors.Is(err, serial.ErrBufferExceeded) {
		return frame.Text() + "...", nil
	}
	return frame.Text(), err
}
