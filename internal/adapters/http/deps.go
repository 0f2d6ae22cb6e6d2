package http

import (
	natsadapter "github.com/samirrijal/egm96/internal/adapters/nats"
	"github.com/samirrijal/egm96/internal/adapters/valkey"
	"github.com/samirrijal/egm96/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
// NATS and Cache are optional and may be nil.
type Dependencies struct {
	Geoid *usecases.GeoidService
	NATS  *natsadapter.Publisher
	Cache *valkey.Cache
}
