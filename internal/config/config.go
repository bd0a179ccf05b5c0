// Package config loads bk549x settings from a YAML file, BK549X_*
// environment variables and command line flags through viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/session"
)

const (
	// Name is the base name of the configuration file.
	Name = "bk549x"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BK549X"
)

// Config mirrors the configuration file.
type Config struct {
	Port      string `mapstructure:"port"`
	Debug     bool   `mapstructure:"debug"`
	Quiet     bool   `mapstructure:"quiet"`
	LogFile   string `mapstructure:"log_file"`
	TraceFile string `mapstructure:"trace_file"`

	PollInterval     time.Duration `mapstructure:"poll_interval"`
	InitialMode      string        `mapstructure:"initial_mode"`
	FrameLimit       int           `mapstructure:"frame_limit"`
	SystemBeep       bool          `mapstructure:"system_beep"`
	BeepOnModeChange bool          `mapstructure:"beep_on_mode_change"`
	FastReadings     bool          `mapstructure:"fast_readings"`

	ContinuityBeepEnabled   bool    `mapstructure:"continuity_beep_enabled"`
	ContinuityBeepThreshold float64 `mapstructure:"continuity_beep_threshold"`
	DiodeBeepEnabled        bool    `mapstructure:"diode_beep_enabled"`
	DiodeBeepThreshold      float64 `mapstructure:"diode_beep_threshold"`

	Colors Colors `mapstructure:"colors"`
	Output Output `mapstructure:"output"`
	Web    Web    `mapstructure:"web"`
	MQTT   MQTT   `mapstructure:"mqtt"`

	// File is the configuration file that was read or created.
	File string `mapstructure:"-"`
}

// Colors of the overlay display, as "#rrggbb" or "0xrrggbb".
type Colors struct {
	Line1      string `mapstructure:"line1"`
	Line2      string `mapstructure:"line2"`
	Background string `mapstructure:"background"`
}

// Output configures the two-line text file read by streaming overlays.
type Output struct {
	File string `mapstructure:"file"`
}

// Web configures the HTTP reading endpoint.
type Web struct {
	Listen string `mapstructure:"listen"`
}

// MQTT configures reading publication to a broker.
type MQTT struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// SetDefaults registers every key with its default value. Keys without a
// default are invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "")
	v.SetDefault("debug", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log_file", "")
	v.SetDefault("trace_file", "")

	v.SetDefault("poll_interval", session.DefaultInterval.String())
	v.SetDefault("initial_mode", scpi.ModeVoltDC.String())
	v.SetDefault("frame_limit", 256)
	v.SetDefault("system_beep", false)
	v.SetDefault("beep_on_mode_change", true)
	v.SetDefault("fast_readings", true)

	v.SetDefault("continuity_beep_enabled", true)
	v.SetDefault("continuity_beep_threshold", 1.0)
	v.SetDefault("diode_beep_enabled", true)
	v.SetDefault("diode_beep_threshold", 0.05)

	v.SetDefault("colors.line1", "#0ac80a")
	v.SetDefault("colors.line2", "#c8c80a")
	v.SetDefault("colors.background", "#000000")

	v.SetDefault("output.file", "")
	v.SetDefault("web.listen", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "bk549x/reading")
	v.SetDefault("mqtt.client_id", "bk549x")
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultPath is where the configuration file is created when none exists.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return Name + ".yaml"
	}
	return filepath.Join(dir, Name, Name+".yaml")
}

// Load reads path, or searches the working directory and the user config
// directory when path is empty. A missing file is created with the current
// settings.
func Load(v *viper.Viper, path string) (Config, error) {
	file, err := read(v, path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.File = file
	return cfg, cfg.Validate()
}

func read(v *viper.Viper, path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, WriteDefault(v, path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return path, fmt.Errorf("reading %s: %w", path, err)
		}
		return path, nil
	}

	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Dir(DefaultPath()))

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return v.ConfigFileUsed(), nil
	case errors.As(err, &notFound):
		def := DefaultPath()
		return def, WriteDefault(v, def)
	default:
		return "", fmt.Errorf("reading configuration: %w", err)
	}
}

// WriteDefault writes the current settings of v to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("writing default configuration: %w", err)
	}
	return nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	if _, err := scpi.ParseMode(c.InitialMode); err != nil {
		return fmt.Errorf("initial_mode: %w", err)
	}
	if c.FrameLimit < 2 {
		return fmt.Errorf("frame_limit must be at least 2, got %d", c.FrameLimit)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative, got %s", c.PollInterval)
	}
	for key, value := range map[string]string{
		"colors.line1":      c.Colors.Line1,
		"colors.line2":      c.Colors.Line2,
		"colors.background": c.Colors.Background,
	} {
		if _, err := ParseColor(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// Session converts the file settings into session start-up settings.
func (c Config) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.Port = c.Port
	if mode, err := scpi.ParseMode(c.InitialMode); err == nil {
		cfg.InitialMode = mode
	}
	cfg.FrameLimit = c.FrameLimit
	cfg.SystemBeep = c.SystemBeep
	cfg.BeepOnModeChange = c.BeepOnModeChange
	cfg.FastReadings = c.FastReadings
	cfg.Decoder = scpi.Decoder{
		Continuity: scpi.Threshold{Beep: c.ContinuityBeepEnabled, Level: c.ContinuityBeepThreshold},
		Diode:      scpi.Threshold{Beep: c.DiodeBeepEnabled, Level: c.DiodeBeepThreshold},
	}
	return cfg
}

// ParseColor normalizes "#rrggbb", "0xrrggbb" and bare "rrggbb" to "#rrggbb".
func ParseColor(s string) (string, error) {
	hex := strings.TrimSpace(strings.ToLower(s))
	hex = strings.TrimPrefix(hex, "#")
	hex = strings.TrimPrefix(hex, "0x")
	if len(hex) != 6 {
		return "", fmt.Errorf("invalid color %q", s)
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return "", fmt.Errorf("invalid color %q", s)
	}
	return "#" + hex, nil
}

// Level maps the debug and quiet switches to a slog level.
func (c Config) Level() slog.Level {
	switch {
	case c.Debug:
		return slog.LevelDebug
	case c.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger. Records go to log_file when set, to
// stderr otherwise. The returned closer releases the log file.
func (c Config) Logger(stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var (
		w      = stderr
		closer io.Closer = nopCloser{}
	)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
