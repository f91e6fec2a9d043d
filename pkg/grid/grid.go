// Package grid holds the dense elevation raster assembled from fetched
// samples.
package grid

import (
	"fmt"
	"math"

	"github.com/stronnag/altimap/pkg/geo"
)

// NoData marks a cell whose elevation could not be fetched, wherever a
// grid is persisted. It is below any real elevation and is not 0, which is
// sea level.
const NoData = -99999.0

// A Sample is the fetch outcome for one SamplePoint. OK is false when the
// elevation is unknown.
type Sample struct {
	Point     geo.SamplePoint
	Elevation float64
	OK        bool
}

type Status uint8

const (
	Complete Status = iota
	Partial
	Interrupted
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	case Interrupted:
		return "interrupted"
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{Complete, Partial, Interrupted} {
		if st.String() == s {
			return st, nil
		}
	}
	return Partial, fmt.Errorf("unknown grid status %q", s)
}

// DuplicateCellError means two samples claimed the same cell, which the
// projector never produces.
type DuplicateCellError struct {
	Row, Col int
}

func (e *DuplicateCellError) Error() string {
	return fmt.Sprintf("duplicate sample for cell (%d,%d)", e.Row, e.Col)
}

// CellRangeError is a sample whose cell lies outside the grid.
type CellRangeError struct {
	Row, Col, Dim int
}

func (e *CellRangeError) Error() string {
	return fmt.Sprintf("cell (%d,%d) outside %dx%d grid", e.Row, e.Col, e.Dim, e.Dim)
}

// A Grid is an N*N array of optional elevations. Cells start unknown and
// are filled by Place until the grid is frozen.
type Grid struct {
	Spec        geo.GridSpec
	n           int
	vals        []float64
	ok          []bool
	placed      []bool
	frozen      bool
	interrupted bool
}

func New(spec geo.GridSpec) (*Grid, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	n := spec.Dim()
	return &Grid{
		Spec:   spec,
		n:      n,
		vals:   make([]float64, n*n),
		ok:     make([]bool, n*n),
		placed: make([]bool, n*n),
	}, nil
}

func (g *Grid) Dim() int {
	return g.n
}

func (g *Grid) Frozen() bool {
	return g.frozen
}

// Freeze stops any further mutation.
func (g *Grid) Freeze() {
	g.frozen = true
}

// MarkInterrupted flags the grid as the product of a cancelled run. It is
// allowed on a frozen grid; it only ever weakens the status.
func (g *Grid) MarkInterrupted() {
	g.interrupted = true
}

// Place stores one sample in its own (row, col) cell.
func (g *Grid) Place(s Sample) error {
	if g.frozen {
		return fmt.Errorf("grid is frozen")
	}
	r, c := s.Point.Row, s.Point.Col
	if r < 0 || r >= g.n || c < 0 || c >= g.n {
		return &CellRangeError{Row: r, Col: c, Dim: g.n}
	}
	i := r*g.n + c
	if g.placed[i] {
		return &DuplicateCellError{Row: r, Col: c}
	}
	g.placed[i] = true
	if s.OK && !math.IsNaN(s.Elevation) {
		g.vals[i] = s.Elevation
		g.ok[i] = true
	}
	return nil
}

// Assemble builds a frozen grid from samples in any order.
func Assemble(spec geo.GridSpec, samples []Sample) (*Grid, error) {
	g, err := New(spec)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		if err := g.Place(s); err != nil {
			return nil, err
		}
	}
	g.Freeze()
	return g, nil
}

// At returns the elevation of (row, col) and whether it is known.
func (g *Grid) At(row, col int) (float64, bool) {
	if row < 0 || row >= g.n || col < 0 || col >= g.n {
		return 0, false
	}
	i := row*g.n + col
	return g.vals[i], g.ok[i]
}

// Values returns the cells in row-major order with NoData for unknown cells.
func (g *Grid) Values() []float64 {
	out := make([]float64, len(g.vals))
	for i, v := range g.vals {
		if g.ok[i] {
			out[i] = v
		} else {
			out[i] = NoData
		}
	}
	return out
}

func (g *Grid) Missing() int {
	m := 0
	for _, ok := range g.ok {
		if !ok {
			m++
		}
	}
	return m
}

func (g *Grid) Cells() int {
	return g.n * g.n
}

// Coverage is the fraction of cells holding an elevation.
func (g *Grid) Coverage() float64 {
	if g.n == 0 {
		return 0
	}
	return float64(g.Cells()-g.Missing()) / float64(g.Cells())
}

func (g *Grid) Status() Status {
	switch {
	case g.interrupted:
		return Interrupted
	case g.Missing() > 0:
		return Partial
	}
	return Complete
}

// Range returns the lowest and highest known elevations. ok is false when
// no cell is known.
func (g *Grid) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i, v := range g.vals {
		if !g.ok[i] {
			continue
		}
		ok = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}
