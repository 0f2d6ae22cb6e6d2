package ports

import (
	"context"

	"github.com/samirrijal/egm96/internal/core/domain"
)

// EventPublisher publishes grid lifecycle events to a message broker.
type EventPublisher interface {
	PublishGridEvent(ctx context.Context, event *domain.GridEvent) error
	PublishReloadRequest(ctx context.Context) error
}

// EventSubscriber delivers reload requests broadcast to every replica.
type EventSubscriber interface {
	SubscribeReloadRequests(ctx context.Context, handler func(ctx context.Context) error) error
}

// CacheService is a byte store with optional expiry.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
