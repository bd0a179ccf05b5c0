/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/internal/config"
	"github.com/allbin/bkmeter/internal/obs"
	"github.com/allbin/bkmeter/internal/trace"
	"github.com/allbin/bkmeter/internal/tui/colors"
	"github.com/allbin/bkmeter/internal/tui/models"
	"github.com/allbin/bkmeter/session"
)

var (
	cfgFile string
	v       = config.New()
	cfg     config.Config
	logger  = slog.New(slog.DiscardHandler)
	closers []io.Closer
)

// rootCmd runs the meter display
var rootCmd = &cobra.Command{
	Use:   "bk549x",
	Short: "Remote display for BK Precision 549x bench multimeters",
	Long: `Remote display for BK Precision 5490/5491/5492 bench multimeters.

Without a subcommand the meter is located (or opened with --port), put into
remote control and polled continuously. The reading is shown on a two line
display that can be captured by streaming software.

Keys:
  V W A R C D B H T E  select volts DC/AC, amps, ohms, continuity, diode,
                       capacitance, frequency, temperature, period
  p                    hand the front panel back to the user / take it again
  !                    beep
  l                    toggle the frame log
  :                    send a raw SCPI command
  q                    return the meter to local control and quit

Example usage:
  bk549x
  bk549x --port /dev/ttyUSB0 --mode res
  bk549x --trace session.cbor`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeAll()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMeterTUI(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			closeAll()
			os.Exit(1)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./bk549x.yaml or "+config.DefaultPath()+")")
	flags.StringP("port", "p", "", "serial port of the meter, skips discovery")
	flags.String("mode", "", "initial measurement mode (vdc, vac, adc, res, cont, diode, cap, freq, per, temp, ...)")
	flags.Duration("interval", 0, "pause between readings")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("quiet", false, "only log warnings and errors")
	flags.String("trace", "", "write a CBOR protocol trace to this file")

	for key, flag := range map[string]string{
		"port":          "port",
		"initial_mode":  "mode",
		"poll_interval": "interval",
		"debug":         "debug",
		"quiet":         "quiet",
		"trace_file":    "trace",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	l, closer, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	logger = l
	closers = append(closers, closer)
	logger.Debug("configuration loaded", "file", cfg.File)
	return nil
}

func closeAll() {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
	closers = nil
}

// tracer returns the protocol trace destination: the trace file when
// configured, debug records when --debug is set, and any extra loggers.
func tracer(l *slog.Logger, extra ...trace.Logger) (trace.Logger, error) {
	var loggers trace.MultiLogger
	if cfg.TraceFile != "" {
		fl, err := trace.NewFileLogger(cfg.TraceFile)
		if err != nil {
			return nil, err
		}
		closers = append(closers, fl)
		loggers = append(loggers, fl)
	}
	if cfg.Debug {
		loggers = append(loggers, trace.NewSlogAdapter(l))
	}
	loggers = append(loggers, extra...)
	if len(loggers) == 0 {
		return trace.NoopLogger{}, nil
	}
	return loggers, nil
}

// newSession builds a session from the loaded configuration.
func newSession(l *slog.Logger, extra ...trace.Logger) (*session.Session, error) {
	t, err := tracer(l, extra...)
	if err != nil {
		return nil, err
	}
	return session.New(cfg.Session(), session.WithLogger(l), session.WithTracer(t)), nil
}

func runMeterTUI() error {
	// Log records would tear the alt screen; they only go to a log file.
	uiLogger := logger
	if cfg.LogFile == "" {
		uiLogger = slog.New(slog.DiscardHandler)
	}

	tap := models.NewTap(256)
	s, err := newSession(uiLogger, tap)
	if err != nil {
		return err
	}

	sinks, err := outputSinks()
	if err != nil {
		return err
	}

	m := models.NewMeterModel(s, models.Options{
		Interval: cfg.PollInterval,
		Palette:  colors.NewDisplay(mustColor(cfg.Colors.Line1), mustColor(cfg.Colors.Line2), mustColor(cfg.Colors.Background)),
		Tap:      tap,
		Sinks:    sinks,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		_ = s.Close()
		return err
	}
	return m.Err()
}

// outputSinks returns the file sink for output.file, if configured.
func outputSinks() ([]session.Sink, error) {
	if cfg.Output.File == "" {
		return nil, nil
	}
	fs, err := obs.NewFileSink(cfg.Output.File)
	if err != nil {
		return nil, err
	}
	logger.Info("writing readings", "file", fs.Path())
	return []session.Sink{fs}, nil
}

func mustColor(s string) string {
	c, err := config.ParseColor(s)
	if err != nil {
		return ""
	}
	return c
}
