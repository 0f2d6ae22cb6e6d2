package domain

import "time"

// Datum identifies the vertical reference of a height.
type Datum string

const (
	// DatumEllipsoidal is height above the WGS 84 ellipsoid (GPS height).
	DatumEllipsoidal Datum = "ellipsoidal"
	// DatumOrthometric is height above the EGM96 geoid (mean sea level).
	DatumOrthometric Datum = "orthometric"
)

// Valid reports whether d is a known datum.
func (d Datum) Valid() bool {
	return d == DatumEllipsoidal || d == DatumOrthometric
}

// GeoidOffset is the geoid undulation at a point.
type GeoidOffset struct {
	Location   GeoPoint `json:"location"`
	Undulation float64  `json:"undulation_m"` // geoid minus ellipsoid, metres
	Degraded   bool     `json:"degraded"`     // true when no grid was loaded
}

// HeightConversion is a height moved between the ellipsoidal and orthometric datums.
type HeightConversion struct {
	Location   GeoPoint `json:"location"`
	Height     float64  `json:"height_m"`
	From       Datum    `json:"from"`
	To         Datum    `json:"to"`
	Undulation float64  `json:"undulation_m"`
	Result     float64  `json:"result_m"`
	Degraded   bool     `json:"degraded"`
}

// GridInfo describes the grid currently serving queries.
type GridInfo struct {
	Loaded      bool       `json:"loaded"`
	Source      string     `json:"source,omitempty"`
	Rows        int        `json:"rows"`
	Cols        int        `json:"cols"`
	IntervalDeg float64    `json:"interval_deg"`
	MinCM       int32      `json:"min_cm"`
	MaxCM       int32      `json:"max_cm"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
}

// GridEventKind classifies grid lifecycle events.
type GridEventKind string

const (
	GridLoaded GridEventKind = "loaded"
	GridFailed GridEventKind = "failed"
)

// GridEvent is published whenever a grid load is attempted.
type GridEvent struct {
	ID          string        `json:"id"`
	Kind        GridEventKind `json:"kind"`
	Source      string        `json:"source"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	At          time.Time     `json:"at"`
	Error       string        `json:"error,omitempty"`
}
