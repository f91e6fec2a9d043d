package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	// Equatorial radius, as used by orb/geo.
	EarthRadius = 6378137.0
	// Metres per degree of latitude on the sphere above.
	MetresPerDegree = EarthRadius * math.Pi / 180.0
	// Grids whose centre is closer to a pole than this are rejected, the
	// longitude scale factor would blow up.
	MaxLatitude = 89.9
	// Largest number of samples along a side; MaxDim*MaxDim points are
	// laid out in memory before anything is fetched.
	MaxDim = 2001
)

// A GridSpec describes the sampled area: a centre, the half-width of the
// square (Radius) and the distance between samples (Step), both in metres.
type GridSpec struct {
	Lat    float64
	Lon    float64
	Radius float64
	Step   float64
}

// ProjectionError reports a GridSpec that cannot be turned into sample points.
type ProjectionError struct {
	Reason string
}

func (e *ProjectionError) Error() string {
	return "projection: " + e.Reason
}

func perr(ofmt string, params ...interface{}) error {
	return &ProjectionError{Reason: fmt.Sprintf(ofmt, params...)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Dim returns the number of samples along each side of the grid,
// ceil(2*Radius/Step)+1, or 0 when that is not positive or exceeds MaxDim.
func (s GridSpec) Dim() int {
	n := s.dim()
	if !(n >= 1 && n <= MaxDim) {
		return 0
	}
	return int(n)
}

// dim is Dim without the bounds. The ratio is shrunk by a relative
// epsilon so that 1.5/0.1 does not round up to 31 intervals.
func (s GridSpec) dim() float64 {
	if !(s.Radius > 0 && s.Step > 0) {
		return 0
	}
	r := 2 * s.Radius / s.Step
	return math.Ceil(r-r*1e-12) + 1
}

// Validate checks the geometry, before any network traffic is generated.
func (s GridSpec) Validate() error {
	switch {
	case !finite(s.Lat) || !finite(s.Lon):
		return perr("centre %v,%v is not a number", s.Lat, s.Lon)
	case !finite(s.Radius) || s.Radius <= 0:
		return perr("radius must be positive (%v)", s.Radius)
	case !finite(s.Step) || s.Step <= 0:
		return perr("step must be positive (%v)", s.Step)
	case s.Step > 2*s.Radius:
		return perr("step %gm exceeds grid width %gm", s.Step, 2*s.Radius)
	case math.Abs(s.Lat) >= 90:
		return perr("latitude %v is at or beyond a pole", s.Lat)
	case math.Abs(s.Lat) > MaxLatitude:
		return perr("latitude %v is too close to a pole", s.Lat)
	case s.Lon < -180 || s.Lon > 180:
		return perr("longitude %v out of range", s.Lon)
	case s.dim() > MaxDim:
		return perr("grid of %.0f samples a side exceeds %d", s.dim(), MaxDim)
	}
	half := (s.halfSpan() + s.Step/2) / MetresPerDegree
	if math.Abs(s.Lat)+half >= 90 {
		return perr("grid around %v reaches a pole", s.Lat)
	}
	return nil
}

// halfSpan is the distance from the centre to the outermost sample centres.
func (s GridSpec) halfSpan() float64 {
	return float64(s.Dim()-1) * s.Step / 2
}

func (s GridSpec) metresPerLonDegree() float64 {
	return MetresPerDegree * math.Cos(s.Lat*math.Pi/180.0)
}

// CellCentre returns the position of cell (row, col). Row 0 is the
// northernmost row, col 0 the westernmost column.
func (s GridSpec) CellCentre(row, col int) (float64, float64) {
	mid := float64(s.Dim()-1) / 2
	dy := (mid - float64(row)) * s.Step
	dx := (float64(col) - mid) * s.Step
	lat := s.Lat + dy/MetresPerDegree
	lon := NormaliseLon(s.Lon + dx/s.metresPerLonDegree())
	return lat, lon
}

// Bound returns the outer edges of the grid, half a step beyond the
// outermost sample centres.
func (s GridSpec) Bound() orb.Bound {
	half := s.halfSpan() + s.Step/2
	dlat := half / MetresPerDegree
	dlon := half / s.metresPerLonDegree()
	return orb.Bound{
		Min: orb.Point{s.Lon - dlon, s.Lat - dlat},
		Max: orb.Point{s.Lon + dlon, s.Lat + dlat},
	}
}

// Centre returns the centre as an orb point (lon, lat order).
func (s GridSpec) Centre() orb.Point {
	return orb.Point{s.Lon, s.Lat}
}

// NormaliseLon folds a longitude into [-180, 180).
func NormaliseLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
