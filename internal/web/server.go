// Package web serves the latest reading over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/allbin/bkmeter/session"
)

// Reading is the JSON body of GET /reading.
type Reading struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Token     string    `json:"token"`
	Value     string    `json:"value"`
	Range     string    `json:"range"`
	ModeLine  string    `json:"mode_line"`
	Numeric   float64   `json:"numeric"`
	Raw       string    `json:"raw"`
	Overrange bool      `json:"overrange"`
	Beep      bool      `json:"beep"`
	Stale     bool      `json:"stale"`
	Paused    bool      `json:"paused"`
	Error     string    `json:"error,omitempty"`
}

// NewReading converts a cycle for JSON output.
func NewReading(c session.Cycle) Reading {
	r := Reading{
		Seq:       c.Seq,
		Timestamp: c.At,
		Mode:      c.Mode.String(),
		Token:     c.Mode.Token(),
		Value:     c.Reading.Value,
		Range:     c.Reading.Range,
		ModeLine:  c.ModeLine,
		Numeric:   c.Measurement.Value,
		Raw:       c.Measurement.Raw,
		Overrange: c.Reading.Overrange,
		Beep:      c.Reading.Beep,
		Stale:     c.Stale,
		Paused:    c.Paused,
	}
	if c.Err != nil {
		r.Error = c.Err.Error()
	}
	return r
}

// Server holds the most recent cycle and answers HTTP requests about it.
type Server struct {
	app     *fiber.App
	logger  *slog.Logger
	version string
	started time.Time

	mu    sync.RWMutex
	last  session.Cycle
	valid bool
}

// New builds the server and its routes.
func New(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "bk549x",
			DisableStartupMessage: true,
		}),
		logger:  logger,
		version: version,
		started: time.Now(),
	}

	api := s.app.Group("/")
	api.Get("/reading", s.handleReading())
	api.Get("/health", s.handleHealth())
	api.Get("/version", s.handleVersion())
	return s
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Publish implements session.Sink.
func (s *Server) Publish(_ context.Context, c session.Cycle) error {
	s.mu.Lock()
	s.last = c
	s.valid = true
	s.mu.Unlock()
	return nil
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("web server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the listener and waits for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleReading() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		s.logger.Debug("web request reading")

		s.mu.RLock()
		c, ok := s.last, s.valid
		s.mu.RUnlock()

		if !ok {
			return ctx.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "no reading yet",
			})
		}
		return ctx.JSON(NewReading(c))
	}
}

func (s *Server) handleHealth() fiber.Handler {
	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		s.logger.Debug("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		s.mu.RLock()
		stale := !s.valid || s.last.Stale
		s.mu.RUnlock()

		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"NumGoroutines":      runtime.NumGoroutine(),
			"HeapAllocatedBytes": m.Alloc,
			"Uptime":             time.Since(s.started).Round(time.Second).String(),
			"Stale":              stale,
			"Version":            s.version,
			"ProgLang":           runtime.Version(),
			"HostName":           host,
			"Time":               time.Now().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"version":     s.version,
			"description": "bk549x",
		})
	}
}

var _ session.Sink = (*Server)(nil)
