package geo

import (
	"github.com/paulmach/orb"
)

// A SamplePoint is one location to query, tagged with its grid position.
type SamplePoint struct {
	Row int
	Col int
	Lat float64
	Lon float64
}

// Point returns the sample as an orb point (lon, lat order).
func (p SamplePoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Project returns the N*N sample points of spec in row-major order,
// starting at the north-west corner.
func Project(spec GridSpec) ([]SamplePoint, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	n := spec.Dim()
	pts := make([]SamplePoint, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			lat, lon := spec.CellCentre(row, col)
			pts = append(pts, SamplePoint{Row: row, Col: col, Lat: lat, Lon: lon})
		}
	}
	return pts, nil
}
