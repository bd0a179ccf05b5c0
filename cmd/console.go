/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
	"github.com/allbin/bkmeter/session"
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive SCPI console",
	Long: `Open an interactive console on the meter.

Lines are sent to the meter as SCPI commands; answers to queries are
printed. Lines starting with a dot are console commands:

  .read         take one reading and decode it
  .mode <name>  select a measurement mode (vdc, vac, res, diode, ...)
  .modes        list measurement modes
  .panel        toggle front panel control
  .beep         sound the beeper
  .help         show this help
  .quit         return the meter to local control and exit

Example usage:
  bk549x console
  bk549x console --port /dev/ttyUSB0`,
	Run: func(cmd *cobra.Command, args []string) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "549x> ",
			InterruptPrompt: "^C",
			EOFPrompt:       ".quit",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create readline: %v\n", err)
			os.Exit(1)
		}
		defer rl.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		s, err := newSession(logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.Connect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			rl.Close()
			os.Exit(1)
		}
		defer s.Close()

		c := &console{session: s, out: rl.Stdout()}
		if ep, ok := s.Endpoint(); ok {
			fmt.Fprintf(c.out, "Connected to %s (%s) %s\n", ep.Path, ep.Config, s.Identity())
		}
		c.printHelp()
		c.run(rl)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

type console struct {
	session *session.Session
	out     io.Writer
}

func (c *console) run(rl *readline.Instance) {
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !c.handle(input) {
			return
		}
		if c.session.State() == session.StateClosed {
			fmt.Fprintln(c.out, "Connection lost")
			return
		}
	}
}

// handle runs one input line and reports whether the console should go on.
func (c *console) handle(input string) bool {
	if !strings.HasPrefix(input, ".") {
		c.cmdSend(input)
		return true
	}

	parts := strings.Fields(input)
	args := parts[1:]
	switch strings.ToLower(parts[0]) {
	case ".help", ".h":
		c.printHelp()
	case ".read", ".r":
		c.cmdRead()
	case ".mode", ".m":
		c.cmdMode(args)
	case ".modes":
		for _, m := range scpi.Modes() {
			fmt.Fprintf(c.out, "  %-8s %s\n", m, m.Label())
		}
	case ".panel", ".p":
		c.cmdPanel()
	case ".beep", ".b":
		if err := c.session.Beep(); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	case ".quit", ".q", ".exit":
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (try .help)\n", parts[0])
	}
	return true
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, "Type SCPI commands, or .read .mode <name> .modes .panel .beep .help .quit")
}

func (c *console) cmdSend(line string) {
	cmd := serial.Command(line)
	answer, err := c.session.Exchange(cmd)
	switch {
	case err != nil:
		fmt.Fprintf(c.out, "Error: %v\n", err)
	case cmd.IsQuery():
		fmt.Fprintln(c.out, answer)
	}
}

func (c *console) cmdRead() {
	cycle, err := c.session.Poll(context.Background())
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, formatCycle(cycle))
}

func (c *console) cmdMode(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Current mode: %s\n", c.session.Mode())
		return
	}
	mode, err := scpi.ParseMode(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.session.RequestMode(mode); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	// The selection is sent with the next poll.
	c.cmdRead()
}

func (c *console) cmdPanel() {
	paused := !c.session.Paused()
	if err := c.session.SetPaused(paused); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if paused {
		fmt.Fprintln(c.out, "Front panel control")
	} else {
		fmt.Fprintln(c.out, "Remote control")
	}
}

// formatCycle renders a cycle on one line.
func formatCycle(c session.Cycle) string {
	var b strings.Builder
	b.WriteString(c.Reading.Value)
	if c.ModeLine != "" {
		b.WriteString("  [" + c.ModeLine + "]")
	}
	if c.Reading.Beep {
		b.WriteString("  BEEP")
	}
	if c.Stale {
		b.WriteString("  (stale)")
	}
	if c.Paused {
		b.WriteString("  (paused)")
	}
	if c.Err != nil {
		b.WriteString("  " + c.Err.Error())
	}
	return b.String()
}
