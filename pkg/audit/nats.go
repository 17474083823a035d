package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures NATSSink.
type NATSConfig struct {
	// URL is the server URL, or a comma separated list.
	URL string

	// SubjectPrefix is prepended to the event type.
	// Default: "warden.audit"
	SubjectPrefix string

	// Name identifies the connection.
	// Default: "warden"
	Name string
}

// NATSSink publishes each event as JSON on <prefix>.<type>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink connects to the configured server.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "warden.audit"
	}
	if cfg.Name == "" {
		cfg.Name = "warden"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return newNATSSinkFromConn(nc, cfg.SubjectPrefix), nil
}

func newNATSSinkFromConn(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix}
}

// Subject returns the subject an event of type t is published on.
func (s *NATSSink) Subject(t Type) string {
	return s.prefix + "." + string(t)
}

// Write publishes e. Delivery is at-most-once.
func (s *NATSSink) Write(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	if err := s.nc.Publish(s.Subject(e.Type), data); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// Close flushes pending publishes and drains the connection.
func (s *NATSSink) Close() error {
	if err := s.nc.FlushTimeout(2 * time.Second); err != nil && s.nc.IsConnected() {
		return fmt.Errorf("failed to flush nats: %w", err)
	}
	return s.nc.Drain()
}
