// Package mqtt publishes readings to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"

	"github.com/allbin/bkmeter/internal/web"
	"github.com/allbin/bkmeter/session"
)

const (
	// quiesce is the number of milliseconds Disconnect waits for in-flight work.
	quiesce = 250

	// DefaultTimeout bounds connect and publish round trips.
	DefaultTimeout = 2 * time.Second
)

var ErrNotConfigured = errors.New("mqtt broker not configured")

// Options configures a Publisher.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	Qos      byte
	Retained bool
	Timeout  time.Duration
}

// Publisher sends every fresh reading as JSON to one topic.
type Publisher struct {
	client  mqttlib.Client
	opts    Options
	logger  *slog.Logger
	lastSeq uint64
}

// New creates a publisher for opts.Broker. The connection is made by Connect.
func New(opts Options, logger *slog.Logger) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, ErrNotConfigured
	}
	co := mqttlib.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeoutOrDefault(opts.Timeout))
	return NewWithClient(mqttlib.NewClient(co), opts, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client mqttlib.Client, opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.Timeout = timeoutOrDefault(opts.Timeout)
	return &Publisher{client: client, opts: opts, logger: logger}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Connect connects to the broker.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect(), p.opts.Timeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", p.opts.Broker, err)
	}
	p.logger.Info("mqtt connected", "broker", p.opts.Broker, "topic", p.opts.Topic)
	return nil
}

// Publish implements session.Sink. Stale and paused cycles, and cycles
// already sent, are skipped.
func (p *Publisher) Publish(ctx context.Context, c session.Cycle) error {
	if c.Stale || c.Paused || c.Seq == p.lastSeq || p.opts.Topic == "" {
		return nil
	}

	if !p.client.IsConnected() {
		p.logger.Debug("mqtt broker isn't connected, reconnecting")
		if err := p.Connect(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(web.NewReading(c))
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}

	p.logger.Debug("publishing reading", "bytes", len(payload), "topic", p.opts.Topic)
	t := p.client.Publish(p.opts.Topic, p.opts.Qos, p.opts.Retained, payload)
	if err := wait(ctx, t, p.opts.Timeout); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.opts.Topic, err)
	}
	p.lastSeq = c.Seq
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(quiesce)
	}
	return nil
}

func wait(ctx context.Context, t mqttlib.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out")
	}
}

var _ session.Sink = (*Publisher)(nil)
