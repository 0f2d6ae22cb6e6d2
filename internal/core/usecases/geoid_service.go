package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/egm96/internal/core/domain"
	"github.com/samirrijal/egm96/internal/core/ports"
	"github.com/samirrijal/egm96/internal/pkg/geoid"
	"github.com/samirrijal/egm96/internal/pkg/metrics"
	"github.com/samirrijal/egm96/internal/pkg/telemetry"
)

// MaxBatchPoints caps the number of points accepted by Offsets.
const MaxBatchPoints = 1000

var (
	ErrInvalidHeight = errors.New("height must be a finite number")
	ErrInvalidDatum  = errors.New("datum must be ellipsoidal or orthometric")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d points", MaxBatchPoints)
)

var tracer = otel.Tracer("github.com/samirrijal/egm96/internal/core/usecases")

type activeGrid struct {
	interp *geoid.Interpolator
	info   domain.GridInfo
}

// GeoidService answers geoid offset and height conversion queries.
// The active grid is swapped atomically on reload; queries never lock.
type GeoidService struct {
	source    ports.GridSource
	publisher ports.EventPublisher

	active atomic.Pointer[activeGrid]
	loadMu sync.Mutex // serialises loads, not queries
}

// NewGeoidService creates a GeoidService in degraded mode. Call Load to
// install a grid. publisher may be nil.
func NewGeoidService(source ports.GridSource, publisher ports.EventPublisher) *GeoidService {
	s := &GeoidService{source: source, publisher: publisher}
	s.active.Store(&activeGrid{
		interp: geoid.NewInterpolator(nil),
		info:   domain.GridInfo{Rows: geoid.Rows, Cols: geoid.Cols, IntervalDeg: geoid.Interval},
	})
	return s
}

// Load reads the grid from the configured source and makes it active.
// On failure the previously active grid, if any, keeps serving queries.
func (s *GeoidService) Load(ctx context.Context) (domain.GridInfo, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	desc := s.source.Describe()
	ctx, span := tracer.Start(ctx, "GeoidService.Load")
	span.SetAttributes(attribute.String(telemetry.AttrGridSource, desc))
	defer span.End()

	start := time.Now()
	g, err := s.source.LoadGrid(ctx)
	metrics.GridLoadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GridLoads.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("geoid grid load failed, offsets degrade to zero until a grid loads",
			"source", desc, "error", err, "serving_previous", s.Ready())
		s.publish(ctx, &domain.GridEvent{Kind: domain.GridFailed, Source: desc, Error: err.Error()})
		return s.Info(), fmt.Errorf("load grid from %s: %w", desc, err)
	}

	st := g.Stats()
	loadedAt := time.Now().UTC()
	info := domain.GridInfo{
		Loaded:      true,
		Source:      desc,
		Rows:        geoid.Rows,
		Cols:        geoid.Cols,
		IntervalDeg: geoid.Interval,
		MinCM:       st.MinCM,
		MaxCM:       st.MaxCM,
		Fingerprint: fmt.Sprintf("%016x", st.Fingerprint),
		LoadedAt:    &loadedAt,
	}
	s.active.Store(&activeGrid{interp: geoid.NewInterpolator(g), info: info})

	metrics.GridLoads.WithLabelValues("ok").Inc()
	metrics.GridLoaded.Set(1)
	span.SetAttributes(attribute.String(telemetry.AttrGridFingerprint, info.Fingerprint))
	slog.Info("geoid grid loaded",
		"source", desc,
		"fingerprint", info.Fingerprint,
		"min_cm", info.MinCM,
		"max_cm", info.MaxCM,
		"duration", time.Since(start).String(),
	)
	s.publish(ctx, &domain.GridEvent{Kind: domain.GridLoaded, Source: desc, Fingerprint: info.Fingerprint})

	return info, nil
}

func (s *GeoidService) publish(ctx context.Context, ev *domain.GridEvent) {
	if s.publisher == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = time.Now().UTC()
	if err := s.publisher.PublishGridEvent(ctx, ev); err != nil {
		slog.Warn("publish grid event failed", "kind", ev.Kind, "error", err)
	}
}

// Ready reports whether a grid is loaded.
func (s *GeoidService) Ready() bool {
	return s.active.Load().interp.Loaded()
}

// Info describes the active grid.
func (s *GeoidService) Info() domain.GridInfo {
	return s.active.Load().info
}

// Offset returns the geoid undulation at (lat, lon). It never fails; without a
// grid the undulation is 0 and Degraded is set.
func (s *GeoidService) Offset(lat, lon float64) domain.GeoidOffset {
	return s.offset(s.active.Load().interp, lat, lon)
}

func (s *GeoidService) offset(in *geoid.Interpolator, lat, lon float64) domain.GeoidOffset {
	degraded := !in.Loaded()
	if degraded {
		metrics.GeoidQueries.WithLabelValues("degraded").Inc()
	} else {
		metrics.GeoidQueries.WithLabelValues("interpolated").Inc()
	}
	return domain.GeoidOffset{
		Location:   domain.GeoPoint{Lat: lat, Lon: lon},
		Undulation: in.OffsetAt(lat, lon),
		Degraded:   degraded,
	}
}

// Offsets evaluates a batch of points against a single grid snapshot.
func (s *GeoidService) Offsets(points []domain.GeoPoint) ([]domain.GeoidOffset, error) {
	if len(points) > MaxBatchPoints {
		return nil, ErrBatchTooLarge
	}

	in := s.active.Load().interp
	out := make([]domain.GeoidOffset, len(points))
	for i, p := range points {
		out[i] = s.offset(in, p.Lat, p.Lon)
	}
	return out, nil
}

// ConvertHeight moves height h at (lat, lon) from one datum to the other.
// Orthometric height is H = h - N; ellipsoidal height is h = H + N.
func (s *GeoidService) ConvertHeight(lat, lon, h float64, from domain.Datum) (domain.HeightConversion, error) {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return domain.HeightConversion{}, ErrInvalidHeight
	}
	if !from.Valid() {
		return domain.HeightConversion{}, ErrInvalidDatum
	}

	off := s.Offset(lat, lon)
	conv := domain.HeightConversion{
		Location:   off.Location,
		Height:     h,
		From:       from,
		Undulation: off.Undulation,
		Degraded:   off.Degraded,
	}
	switch from {
	case domain.DatumEllipsoidal:
		conv.To = domain.DatumOrthometric
		conv.Result = h - off.Undulation
	case domain.DatumOrthometric:
		conv.To = domain.DatumEllipsoidal
		conv.Result = h + off.Undulation
	}
	return conv, nil
}
