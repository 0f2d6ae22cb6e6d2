package natsadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.EventSubscriber using core NATS.
type Subscriber struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeReloadRequests runs handler for every reload broadcast. Each
// replica has its own plain subscription, so all of them see every request.
func (s *Subscriber) SubscribeReloadRequests(ctx context.Context, handler func(ctx context.Context) error) error {
	sub, err := s.conn.Subscribe(SubjectReload, func(msg *nats.Msg) {
		if err := handler(ctx); err != nil {
			slog.Warn("grid reload request failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
