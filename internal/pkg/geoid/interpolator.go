package geoid

import "math"

// Interpolator answers geoid offset queries against a shared Grid.
// The zero value and an Interpolator built from a nil Grid return 0 for every
// query.
type Interpolator struct {
	grid *Grid
}

// NewInterpolator returns an Interpolator reading from g. g may be nil.
func NewInterpolator(g *Grid) *Interpolator {
	return &Interpolator{grid: g}
}

// Loaded reports whether a grid backs this interpolator.
func (in *Interpolator) Loaded() bool {
	return in != nil && in.grid != nil
}

// Grid returns the backing grid, or nil in degraded mode.
func (in *Interpolator) Grid() *Grid {
	if in == nil {
		return nil
	}
	return in.grid
}

// OffsetAt returns the geoid undulation in metres at (lat°N, lon°E) by
// bilinear interpolation of the four surrounding grid posts.
// It never fails: without a grid, or for coordinates that do not map onto the
// grid, it returns 0.
func (in *Interpolator) OffsetAt(lat, lon float64) float64 {
	if !in.Loaded() {
		return 0
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return 0
	}

	lat = math.Max(-90, math.Min(90, lat))
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}

	topRow := int(math.Floor((90 - lat) / Interval))
	if lat <= -90 || topRow > Rows-2 {
		topRow = Rows - 2
	}
	bottomRow := topRow + 1

	// Column 0 doubles as the missing 360° column.
	leftCol := int(math.Floor(lon / Interval))
	rightCol := leftCol + 1
	if lon >= 360-Interval {
		leftCol = Cols - 1
		rightCol = 0
	}

	latBottom := 90 - float64(bottomRow)*Interval
	lonLeft := float64(leftCol) * Interval

	ul, ok := in.post(topRow, leftCol)
	if !ok {
		return 0
	}
	ll, ok := in.post(bottomRow, leftCol)
	if !ok {
		return 0
	}
	lr, ok := in.post(bottomRow, rightCol)
	if !ok {
		return 0
	}
	ur, ok := in.post(topRow, rightCol)
	if !ok {
		return 0
	}

	u := (lon - lonLeft) / Interval
	v := (lat - latBottom) / Interval
	wll, wlr, wur, wul := weights(u, v)

	return (wll*ll + wlr*lr + wur*ur + wul*ul) / 100
}

func (in *Interpolator) post(row, col int) (float64, bool) {
	cm, err := in.grid.At(row, col)
	if err != nil {
		return 0, false
	}
	return float64(cm), true
}

// weights returns the bilinear weights for the lower-left, lower-right,
// upper-right and upper-left corners of a cell.
func weights(u, v float64) (ll, lr, ur, ul float64) {
	ll = (1 - u) * (1 - v)
	lr = u * (1 - v)
	ur = u * v
	ul = (1 - u) * v
	return
}
