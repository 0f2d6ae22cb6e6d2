package http

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/egm96/internal/core/domain"
	"github.com/samirrijal/egm96/internal/core/usecases"
)

// HeaderDegraded is set on geoid responses computed without a grid.
const HeaderDegraded = "X-Geoid-Degraded"

// queryFloat parses a required, finite float query parameter.
func queryFloat(c *fiber.Ctx, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a finite number", name)
	}
	return v, nil
}

// queryPoint reads lat and lon and checks their ranges.
func queryPoint(c *fiber.Ctx) (domain.GeoPoint, error) {
	lat, err := queryFloat(c, "lat")
	if err != nil {
		return domain.GeoPoint{}, err
	}
	lon, err := queryFloat(c, "lon")
	if err != nil {
		return domain.GeoPoint{}, err
	}
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return domain.GeoPoint{}, errPointOutOfRange
	}
	return p, nil
}

// markDegraded flags a zero-offset answer so clients and caches can tell it apart.
func markDegraded(c *fiber.Ctx, degraded bool) {
	if degraded {
		c.Set(HeaderDegraded, "true")
		c.Set("Cache-Control", "no-store")
	}
}

// OffsetHandler returns the geoid undulation at a single point.
func OffsetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := queryPoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		off := deps.Geoid.Offset(p.Lat, p.Lon)
		markDegraded(c, off.Degraded)
		return c.JSON(off)
	}
}

type offsetsRequest struct {
	Points []domain.GeoPoint `json:"points"`
}

// OffsetsHandler evaluates a batch of points against one grid snapshot.
func OffsetsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req offsetsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) == 0 {
			return errBadRequest(c, "points must not be empty")
		}
		if len(req.Points) > usecases.MaxBatchPoints {
			return errPayloadTooLarge(c, usecases.ErrBatchTooLarge.Error())
		}
		for i, p := range req.Points {
			if !p.Valid() {
				return errBadRequest(c, fmt.Sprintf("points[%d]: %v", i, errPointOutOfRange))
			}
		}

		offs, err := deps.Geoid.Offsets(req.Points)
		if err != nil {
			if errors.Is(err, usecases.ErrBatchTooLarge) {
				return errPayloadTooLarge(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		markDegraded(c, len(offs) > 0 && offs[0].Degraded)
		return c.JSON(offs)
	}
}

// HeightHandler converts a height between the ellipsoidal and orthometric datums.
func HeightHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := queryPoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		h, err := queryFloat(c, "h")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		from := domain.Datum(c.Query("from", string(domain.DatumEllipsoidal)))

		conv, err := deps.Geoid.ConvertHeight(p.Lat, p.Lon, h, from)
		if err != nil {
			if errors.Is(err, usecases.ErrInvalidDatum) || errors.Is(err, usecases.ErrInvalidHeight) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		markDegraded(c, conv.Degraded)
		return c.JSON(conv)
	}
}

// GridInfoHandler describes the active grid.
func GridInfoHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Geoid.Info())
	}
}

// ReloadGridHandler reloads the grid from its source. With ?all=true the
// request is broadcast over NATS so that every replica reloads.
func ReloadGridHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.QueryBool("all") {
			if deps.NATS == nil {
				return errUnavailable(c, "nats not configured, cannot broadcast reload")
			}
			if err := deps.NATS.PublishReloadRequest(c.UserContext()); err != nil {
				return errBadGateway(c, err.Error())
			}
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "reload broadcast"})
		}

		info, err := deps.Geoid.Load(c.UserContext())
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("grid reload failed", "error", err)
			return errBadGateway(c, err.Error())
		}
		return c.JSON(info)
	}
}
