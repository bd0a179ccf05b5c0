package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/allbin/bkmeter/scpi"
)

// DefaultInterval is the pause between two polls.
const DefaultInterval = 100 * time.Millisecond

// Sink receives every cycle produced by a Runner.
type Sink interface {
	Publish(ctx context.Context, c Cycle) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, c Cycle) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, c Cycle) error { return f(ctx, c) }

// Runner drives a connected Session from one goroutine and fans cycles out
// to sinks. Mode and pause requests from other goroutines are queued and
// applied between polls.
type Runner struct {
	session  *Session
	interval time.Duration
	sinks    []Sink
	logger   *slog.Logger

	modes chan scpi.Mode
	pause chan bool
	beep  chan struct{}

	mu   sync.RWMutex
	last Cycle
}

// NewRunner returns a Runner for s. A zero interval means DefaultInterval.
func NewRunner(s *Session, interval time.Duration, sinks ...Sink) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		session:  s,
		interval: interval,
		sinks:    sinks,
		logger:   s.logger,
		modes:    make(chan scpi.Mode, 1),
		pause:    make(chan bool, 1),
		beep:     make(chan struct{}, 1),
		last:     s.Last(),
	}
}

// RequestMode queues a mode change. A newer request replaces an older one
// that was not applied yet.
func (r *Runner) RequestMode(m scpi.Mode) {
	for {
		select {
		case r.modes <- m:
			return
		default:
		}
		select {
		case <-r.modes:
		default:
		}
	}
}

// SetPaused queues a pause or resume.
func (r *Runner) SetPaused(p bool) {
	for {
		select {
		case r.pause <- p:
			return
		default:
		}
		select {
		case <-r.pause:
		default:
		}
	}
}

// Beep queues a beep. Extra requests while one is pending are dropped.
func (r *Runner) Beep() {
	select {
	case r.beep <- struct{}{}:
	default:
	}
}

// Last returns the most recent cycle. Safe for concurrent use.
func (r *Runner) Last() Cycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Run polls until ctx is done or the session fails. The session is closed
// on return.
func (r *Runner) Run(ctx context.Context) error {
	defer r.session.Close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.step(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) step(ctx context.Context) error {
	if err := r.applyRequests(); err != nil {
		return err
	}

	cycle, err := r.session.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	r.mu.Lock()
	r.last = cycle
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, cycle); err != nil {
			r.logger.Warn("sink publish failed", "error", err)
		}
	}
	return nil
}

func (r *Runner) applyRequests() error {
	select {
	case p := <-r.pause:
		if err := r.session.SetPaused(p); err != nil {
			return err
		}
	default:
	}

	select {
	case m := <-r.modes:
		if err := r.session.RequestMode(m); err != nil {
			r.logger.Warn("mode request rejected", "mode", m.String(), "error", err)
		}
	default:
	}

	select {
	case <-r.beep:
		if err := r.session.Beep(); err != nil && IsFatal(err) {
			return err
		}
	default:
	}
	return nil
}
