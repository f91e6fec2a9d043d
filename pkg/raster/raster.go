// Package raster persists assembled grids and reads them back.
package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/grid"
)

var (
	// ErrNotFrozen is returned for a grid that may still change.
	ErrNotFrozen = errors.New("grid is still being assembled")
	// ErrInterrupted is returned when exporting to a format that cannot
	// mark a grid as cut short.
	ErrInterrupted = errors.New("grid is interrupted")
)

// WriteError is any failure to persist a grid.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Meta is the provenance stored alongside a grid.
type Meta struct {
	RunID   string
	Service string
	Created time.Time
	Attrs   map[string]string
}

// A Raster is a grid read back from a container, with the stored position
// of every cell.
type Raster struct {
	Spec     geo.GridSpec
	Grid     *grid.Grid
	Status   grid.Status
	Coverage float64
	NoData   float64
	Meta     Meta
	lats     []float64
	lons     []float64
}

// Cell returns the stored position and elevation of (row, col).
func (r *Raster) Cell(row, col int) (lat, lon, elev float64, ok bool) {
	n := r.Grid.Dim()
	if row < 0 || row >= n || col < 0 || col >= n {
		return 0, 0, 0, false
	}
	i := row*n + col
	elev, ok = r.Grid.At(row, col)
	return r.lats[i], r.lons[i], elev, ok
}

type Format uint8

const (
	FormatSQLite Format = iota
	FormatASCII
)

// FormatFor chooses the container from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		return FormatASCII
	}
	return FormatSQLite
}

// ContainerPath is where Save puts the SQLite container for path: path
// itself, or for an Esri grid the same name with a .db extension.
func ContainerPath(path string) string {
	if FormatFor(path) == FormatASCII {
		return strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
	}
	return path
}

// Save always writes the SQLite container, at ContainerPath(path). A .asc
// path also gets the Esri grid export, which is refused for an interrupted
// grid after the container has been written.
func Save(g *grid.Grid, path string, meta Meta) error {
	if err := Write(g, ContainerPath(path), meta); err != nil {
		return err
	}
	if FormatFor(path) == FormatASCII {
		return WriteASCII(g, path)
	}
	return nil
}

// replaceFile runs write against a temporary file next to path and moves
// it into place only if write succeeds.
func replaceFile(path string, write func(tmp string) error) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	f.Close()
	if err = write(tmp); err == nil {
		os.Chmod(tmp, 0644)
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}
