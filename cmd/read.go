/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/internal/web"
	"github.com/allbin/bkmeter/session"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Print readings to stdout",
	Long: `Poll the meter without the display and print one line per reading.

Readings are printed as text or as JSON lines. With --count the command
stops after that many readings; otherwise it runs until interrupted. The
output file (output.file) is written as well when configured.

Example usage:
  bk549x read --count 1
  bk549x read --mode res --format json
  bk549x read --interval 1s | tee readings.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("count")
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			fmt.Fprintf(os.Stderr, "Error: unknown format %q (text, json)\n", format)
			os.Exit(1)
		}

		if err := runRead(os.Stdout, count, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			closeAll()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().IntP("count", "n", 0, "stop after this many readings (0 runs until interrupted)")
	readCmd.Flags().StringP("format", "f", "text", "output format: text, json")
}

func runRead(w io.Writer, count int, format string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := newSession(logger)
	if err != nil {
		return err
	}
	if err := s.Connect(ctx); err != nil {
		s.Close()
		return err
	}

	sinks, err := outputSinks()
	if err != nil {
		s.Close()
		return err
	}

	printed := 0
	enc := json.NewEncoder(w)
	stdout := session.SinkFunc(func(_ context.Context, c session.Cycle) error {
		var err error
		if format == "json" {
			err = enc.Encode(web.NewReading(c))
		} else {
			_, err = fmt.Fprintln(w, formatCycle(c))
		}
		printed++
		if count > 0 && printed >= count {
			cancel()
		}
		return err
	})

	r := session.NewRunner(s, cfg.PollInterval, append([]session.Sink{stdout}, sinks...)...)
	return r.Run(ctx)
}
