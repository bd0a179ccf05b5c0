package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultFrameLimit bounds identification and measurement responses.
const DefaultFrameLimit = 256

// Locator probes candidate ports with an identification query and keeps the
// first one whose answer contains Signature.
type Locator struct {
	Probe      Command
	Signature  string
	FrameLimit int

	// Enumerate lists candidates when Discover is given none.
	Enumerate func() ([]string, error)

	// Options are passed to every Open.
	Options []TransportOption

	Logger *slog.Logger
}

// ProbeResult is the outcome of probing one candidate.
type ProbeResult struct {
	Path     string
	Identity string
	Matched  bool
	Err      error
}

// NewLocator returns a Locator enumerating with ListPorts.
func NewLocator(probe Command, signature string, opts ...TransportOption) *Locator {
	return &Locator{
		Probe:      probe,
		Signature:  signature,
		FrameLimit: DefaultFrameLimit,
		Enumerate:  ListPorts,
		Options:    opts,
		Logger:     slog.Default(),
	}
}

// Candidates returns the ports Discover would try without explicit input.
func (l *Locator) Candidates() ([]string, error) {
	if l.Enumerate == nil {
		return ListPorts()
	}
	return l.Enumerate()
}

// Discover tries candidates in order and returns the first matching
// Transport, still open. Every other opened port is closed again. When
// candidates is empty the Enumerate function supplies them. Cancellation is
// checked between candidates only.
func (l *Locator) Discover(ctx context.Context, candidates []string) (*Transport, error) {
	if len(candidates) == 0 {
		var err error
		if candidates, err = l.Candidates(); err != nil {
			return nil, fmt.Errorf("%w: enumerating ports: %w", ErrDeviceNotFound, err)
		}
	}

	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, result := l.probe(path)
		if result.Matched {
			l.logger().Info("instrument found", "port", path, "identity", result.Identity)
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: %d candidate(s) probed", ErrDeviceNotFound, len(candidates))
}

// Survey probes every candidate and closes all of them, reporting what each
// one answered.
func (l *Locator) Survey(ctx context.Context, candidates []string) ([]ProbeResult, error) {
	if len(candidates) == 0 {
		var err error
		if candidates, err = l.Candidates(); err != nil {
			return nil, err
		}
	}

	results := make([]ProbeResult, 0, len(candidates))
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		t, result := l.probe(path)
		if t != nil {
			t.Close()
		}
		results = append(results, result)
	}
	return results, nil
}

// probe returns an open Transport only when the candidate matched.
func (l *Locator) probe(path string) (*Transport, ProbeResult) {
	result := ProbeResult{Path: path}
	log := l.logger().With("port", path)

	t, err := Open(path, l.Options...)
	if err != nil {
		log.Debug("candidate unavailable", "error", err)
		result.Err = err
		return nil, result
	}

	limit := l.FrameLimit
	if limit <= 0 {
		limit = DefaultFrameLimit
	}

	identity, err := t.Identify(l.Probe, limit)
	result.Identity = identity
	if err != nil && !errors.Is(err, ErrBufferExceeded) {
		log.Debug("no identification response", "error", err)
		result.Err = err
		t.Close()
		return nil, result
	}

	if !strings.Contains(identity, l.Signature) {
		log.Debug("identification mismatch", "identity", identity)
		t.Close()
		return nil, result
	}

	result.Matched = true
	return t, result
}

func (l *Locator) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
