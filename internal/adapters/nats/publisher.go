package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/egm96/internal/core/domain"
)

const (
	// SubjectGridEvents prefixes grid lifecycle events: geoid.grid.loaded, geoid.grid.failed.
	SubjectGridEvents = "geoid.grid."
	// SubjectReload is a core-NATS broadcast so that every replica reloads.
	SubjectReload = "geoid.control.reload"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      "GEOID_EVENTS",
		Subjects:  []string{SubjectGridEvents + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishGridEvent records a grid load attempt on the GEOID_EVENTS stream.
func (p *Publisher) PublishGridEvent(ctx context.Context, event *domain.GridEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectGridEvents+string(event.Kind), data, nats.Context(ctx))
	return err
}

// PublishReloadRequest asks every running replica to reload its grid.
func (p *Publisher) PublishReloadRequest(ctx context.Context) error {
	if err := p.conn.Publish(SubjectReload, nil); err != nil {
		return err
	}
	return p.conn.FlushWithContext(ctx)
}

// IsConnected reports the connection state for readiness checks.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
