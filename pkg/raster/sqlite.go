package raster

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/grid"
)

const (
	containerFormat  = "altimap"
	containerVersion = 1
)

const SCHEMA = `CREATE TABLE gridspec (id integer NOT NULL PRIMARY KEY, format text, version integer,
 lat double precision, lon double precision, radius double precision, step double precision,
 dim integer, nodata double precision,
 north double precision, south double precision, east double precision, west double precision,
 status text, coverage double precision, missing integer,
 runid text, service text, created text);
CREATE TABLE attrs (key text NOT NULL PRIMARY KEY, value text);
CREATE TABLE heights (row_idx integer NOT NULL, col_idx integer NOT NULL,
 lat double precision, lon double precision, elevation double precision,
 PRIMARY KEY (row_idx, col_idx))`

const ISPEC = `insert into gridspec (id,format,version,lat,lon,radius,step,dim,nodata,north,south,east,west,status,coverage,missing,runid,service,created) values (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
const IATTR = `insert into attrs (key, value) values ($1,$2)`
const IHEIGHT = `insert into heights (row_idx,col_idx,lat,lon,elevation) values ($1,$2,$3,$4,$5)`

// Write stores a frozen grid as an SQLite container: the grid spec and its
// bounds, free-form attributes and one row per cell with its position and
// elevation (NoData when unknown).
func Write(g *grid.Grid, path string, meta Meta) error {
	if !g.Frozen() {
		return &WriteError{Path: path, Err: ErrNotFrozen}
	}
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.Created.IsZero() {
		meta.Created = time.Now()
	}
	err := replaceFile(path, func(tmp string) error {
		// CreateTemp left an empty file, which sqlite happily adopts
		db, err := sql.Open("sqlite", tmp)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := writeDB(db, g, meta); err != nil {
			return err
		}
		return db.Close()
	})
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func writeDB(db *sql.DB, g *grid.Grid, meta Meta) error {
	if _, err := db.Exec(SCHEMA); err != nil {
		return fmt.Errorf("tables: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := g.Spec
	b := s.Bound()
	if _, err := tx.Exec(ISPEC, containerFormat, containerVersion,
		s.Lat, s.Lon, s.Radius, s.Step, g.Dim(), grid.NoData,
		b.Top(), b.Bottom(), b.Right(), b.Left(),
		g.Status().String(), g.Coverage(), g.Missing(),
		meta.RunID, meta.Service, meta.Created.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("gridspec: %w", err)
	}
	for k, v := range meta.Attrs {
		if _, err := tx.Exec(IATTR, k, v); err != nil {
			return fmt.Errorf("attrs: %w", err)
		}
	}

	stmt, err := tx.Prepare(IHEIGHT)
	if err != nil {
		return err
	}
	defer stmt.Close()
	n := g.Dim()
	vals := g.Values()
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			lat, lon := s.CellCentre(row, col)
			if _, err := stmt.Exec(row, col, lat, lon, vals[row*n+col]); err != nil {
				return fmt.Errorf("heights: %w", err)
			}
		}
	}
	return tx.Commit()
}

type specRow struct {
	Format   string  `db:"format"`
	Version  int     `db:"version"`
	Lat      float64 `db:"lat"`
	Lon      float64 `db:"lon"`
	Radius   float64 `db:"radius"`
	Step     float64 `db:"step"`
	Dim      int     `db:"dim"`
	NoData   float64 `db:"nodata"`
	Status   string  `db:"status"`
	Coverage float64 `db:"coverage"`
	RunID    string  `db:"runid"`
	Service  string  `db:"service"`
	Created  string  `db:"created"`
}

type heightRow struct {
	Row       int     `db:"row_idx"`
	Col       int     `db:"col_idx"`
	Lat       float64 `db:"lat"`
	Lon       float64 `db:"lon"`
	Elevation float64 `db:"elevation"`
}

type attrRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Read opens a container written by Write.
func Read(path string) (*Raster, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var sr specRow
	if err := db.Get(&sr, `SELECT format, version, lat, lon, radius, step, dim, nodata, status, coverage, runid, service, created FROM gridspec WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("%s: not an altimap raster: %w", path, err)
	}
	if sr.Format != containerFormat || sr.Version > containerVersion {
		return nil, fmt.Errorf("%s: unsupported container %s v%d", path, sr.Format, sr.Version)
	}
	spec := geo.GridSpec{Lat: sr.Lat, Lon: sr.Lon, Radius: sr.Radius, Step: sr.Step}
	if spec.Dim() != sr.Dim {
		return nil, fmt.Errorf("%s: dimension %d does not match grid spec (%d)", path, sr.Dim, spec.Dim())
	}
	status, err := grid.ParseStatus(sr.Status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []heightRow
	if err := db.Select(&rows, `SELECT row_idx, col_idx, lat, lon, elevation FROM heights ORDER BY row_idx, col_idx`); err != nil {
		return nil, fmt.Errorf("%s: heights: %w", path, err)
	}
	n := sr.Dim
	r := &Raster{
		Spec:     spec,
		Status:   status,
		Coverage: sr.Coverage,
		NoData:   sr.NoData,
		Meta:     Meta{RunID: sr.RunID, Service: sr.Service, Attrs: map[string]string{}},
		lats:     make([]float64, n*n),
		lons:     make([]float64, n*n),
	}
	r.Meta.Created, _ = time.Parse(time.RFC3339Nano, sr.Created)

	samples := make([]grid.Sample, 0, len(rows))
	for _, h := range rows {
		samples = append(samples, grid.Sample{
			Point:     geo.SamplePoint{Row: h.Row, Col: h.Col, Lat: h.Lat, Lon: h.Lon},
			Elevation: h.Elevation,
			OK:        h.Elevation != sr.NoData,
		})
		if h.Row >= 0 && h.Row < n && h.Col >= 0 && h.Col < n {
			r.lats[h.Row*n+h.Col] = h.Lat
			r.lons[h.Row*n+h.Col] = h.Lon
		}
	}
	if r.Grid, err = grid.Assemble(spec, samples); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if status == grid.Interrupted {
		r.Grid.MarkInterrupted()
	}

	var attrs []attrRow
	if err := db.Select(&attrs, `SELECT key, value FROM attrs`); err != nil {
		return nil, fmt.Errorf("%s: attrs: %w", path, err)
	}
	for _, a := range attrs {
		r.Meta.Attrs[a.Key] = a.Value
	}
	return r, nil
}
