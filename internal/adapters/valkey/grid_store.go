package valkey

import (
	"bytes"
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/egm96/internal/core/ports"
	"github.com/samirrijal/egm96/internal/pkg/geoid"
	"github.com/samirrijal/egm96/internal/pkg/metrics"
	"github.com/samirrijal/egm96/internal/pkg/telemetry"
	"github.com/samirrijal/egm96/internal/pkg/zstdcodec"
)

var tracer = otel.Tracer("github.com/samirrijal/egm96/internal/adapters/valkey")

// GridStore keeps the raw grid file under one key, zstd-compressed, so every
// replica can load the same grid without a shared volume.
// It implements ports.GridSource.
type GridStore struct {
	cache ports.CacheService
	key   string
}

// NewGridStore creates a grid store over cache.
func NewGridStore(cache ports.CacheService, key string) *GridStore {
	return &GridStore{cache: cache, key: key}
}

func (s *GridStore) Describe() string { return "valkey:" + s.key }

// LoadGrid fetches and decodes the stored grid. Uncompressed blobs are accepted too.
func (s *GridStore) LoadGrid(ctx context.Context) (*geoid.Grid, error) {
	ctx, span := tracer.Start(ctx, "GridStore.LoadGrid")
	defer span.End()

	data, err := s.cache.Get(ctx, s.key)
	if err != nil {
		if valkey.IsValkeyNil(err) {
			metrics.CacheMisses.WithLabelValues("grid").Inc()
		} else {
			metrics.CacheErrors.WithLabelValues("grid").Inc()
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, &geoid.LoadError{Source: s.Describe(), Size: -1, Err: fmt.Errorf("%w: %v", geoid.ErrUnreadable, err)}
	}
	metrics.CacheHits.WithLabelValues("grid").Inc()
	span.SetAttributes(attribute.Int(telemetry.AttrGridSizeBytes, len(data)))

	if zstdcodec.IsCompressed(data) {
		data, err = zstdcodec.Decompress(data, geoid.FileSize+1)
		if err != nil {
			return nil, &geoid.LoadError{Source: s.Describe(), Size: -1, Err: fmt.Errorf("%w: %v", geoid.ErrUnreadable, err)}
		}
	}
	return geoid.ReadNamed(s.Describe(), bytes.NewReader(data))
}

// PutGrid validates raw as a grid file and stores it compressed, without expiry.
// It returns the stored grid's stats.
func (s *GridStore) PutGrid(ctx context.Context, raw []byte) (geoid.Stats, error) {
	g, err := geoid.Decode(raw)
	if err != nil {
		return geoid.Stats{}, err
	}

	packed, err := zstdcodec.Compress(raw)
	if err != nil {
		return geoid.Stats{}, fmt.Errorf("compress grid: %w", err)
	}
	if err := s.cache.Set(ctx, s.key, packed, 0); err != nil {
		return geoid.Stats{}, fmt.Errorf("store grid %s: %w", s.key, err)
	}
	return g.Stats(), nil
}

// DeleteGrid removes the stored grid. Replicas keep serving the grid they
// already hold; their next reload fails until a grid is seeded again.
func (s *GridStore) DeleteGrid(ctx context.Context) error {
	if err := s.cache.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete grid %s: %w", s.key, err)
	}
	return nil
}
