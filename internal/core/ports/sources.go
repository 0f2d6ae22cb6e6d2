package ports

import (
	"context"

	"github.com/samirrijal/egm96/internal/pkg/geoid"
)

// GridSource produces a decoded geoid grid from wherever the raw bytes live.
type GridSource interface {
	// Describe names the source for logs and events, e.g. "file:/data/EGM96.dat".
	Describe() string
	LoadGrid(ctx context.Context) (*geoid.Grid, error)
}
