package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stronnag/altimap/pkg/elev"
	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/grid"
	"github.com/stronnag/altimap/pkg/options"
	"github.com/stronnag/altimap/pkg/raster"
	"github.com/stronnag/altimap/pkg/render"
)

func height(lat, lon float64) float64 {
	return 1500 + (lat-44.9)*1e4 - (lon-6.25)*5e3
}

// altiServer mimics the IGN service; requests including badLon fail.
func altiServer(t *testing.T, badLon string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lons := strings.Split(q.Get("lon"), "|")
		lats := strings.Split(q.Get("lat"), "|")
		z := make([]float64, len(lons))
		for i := range lons {
			if badLon != "" && lons[i] == badLon {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			lon, _ := strconv.ParseFloat(lons[i], 64)
			lat, _ := strconv.ParseFloat(lats[i], 64)
			z[i] = height(lat, lon)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"elevations": z})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func settings(t *testing.T, endpoint string) options.Settings {
	dir := t.TempDir()
	s := options.Defaults()
	s.Lat, s.Lon = 44.9, 6.25
	s.Radius, s.Step = 100, 50
	s.Endpoint = endpoint
	s.Batch = 5
	s.Delay = time.Millisecond
	s.Retries = 0
	s.Output = filepath.Join(dir, "heights.db")
	s.Image = filepath.Join(dir, "heights.png")
	s.Overlay = true
	return s
}

func TestRunComplete(t *testing.T) {
	srv := altiServer(t, "")
	cfg := settings(t, srv.URL)
	var calls int
	p := &Pipeline{
		Settings: cfg,
		Service:  elev.NewIGN(srv.URL, ""),
		Progress: func(done, total int) { calls++ },
	}
	rep, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Failed())
	assert.Equal(t, 25, rep.Cells)
	assert.Equal(t, 0, rep.Missing)
	assert.Equal(t, 1.0, rep.Coverage)
	assert.Equal(t, grid.Complete, rep.Status)
	assert.Equal(t, 5, calls)
	assert.True(t, rep.HasStats)
	assert.Equal(t, cfg.Output, rep.Raster)
	assert.Equal(t, cfg.Image, rep.Image)
	assert.Equal(t, strings.TrimSuffix(cfg.Image, ".png")+".kmz", rep.Overlay)
	assert.FileExists(t, rep.Image)
	assert.FileExists(t, rep.Overlay)

	r, err := raster.Read(rep.Raster)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, r.Meta.RunID)
	assert.Equal(t, "ign", r.Meta.Service)
	assert.Equal(t, "5", r.Meta.Attrs["requests"])
	assert.Equal(t, srv.URL, r.Meta.Attrs["endpoint"])
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			lat, lon, z, ok := r.Cell(row, col)
			require.True(t, ok)
			assert.InDelta(t, height(lat, lon), z, 0.01)
		}
	}

	keys := []string{}
	for _, kv := range rep.Summary() {
		keys = append(keys, kv[0])
	}
	assert.Equal(t, []string{"Centre", "Area", "Grid", "Service", "Coverage", "Status", "Height", "Raster", "Image", "Overlay", "Elapsed"}, keys)
}

func colLon(col int) string {
	spec := geo.GridSpec{Lat: 44.9, Lon: 6.25, Radius: 100, Step: 50}
	_, lon := spec.CellCentre(0, col)
	return strconv.FormatFloat(lon, 'f', 7, 64)
}

func TestRunNothingFetched(t *testing.T) {
	srv := altiServer(t, colLon(2))
	cfg := settings(t, srv.URL)

	rep, err := Run(context.Background(), cfg, elev.NewIGN(srv.URL, ""))
	require.NoError(t, err)
	// column 2 is in every row-major batch of 5
	assert.Equal(t, 25, rep.Missing)
	assert.Len(t, rep.FetchErrors, 5)
	assert.Equal(t, grid.Partial, rep.Status)
	assert.False(t, rep.HasStats)
	assert.ErrorIs(t, rep.ImageErr, render.ErrNoData)
	assert.NoError(t, rep.RasterErr)
	assert.FileExists(t, cfg.Output)
}

func TestRunPartial(t *testing.T) {
	srv := altiServer(t, colLon(4))
	cfg := settings(t, srv.URL)
	cfg.Batch = 1

	rep, err := Run(context.Background(), cfg, elev.NewIGN(srv.URL, ""))
	require.NoError(t, err)
	// one column fails, once per row
	assert.Equal(t, 5, rep.Missing)
	assert.Equal(t, grid.Partial, rep.Status)
	assert.InDelta(t, 0.8, rep.Coverage, 1e-12)
	assert.False(t, rep.Failed())

	r, err := raster.Read(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, grid.Partial, r.Status)
	_, ok := r.Grid.At(3, 4)
	assert.False(t, ok)
	v := r.Grid.Values()
	assert.Equal(t, grid.NoData, v[3*5+4])
}

func TestRunCancelled(t *testing.T) {
	srv := altiServer(t, "")
	cfg := settings(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Run(ctx, cfg, elev.NewIGN(srv.URL, ""))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, grid.Interrupted, rep.Status)
	assert.ErrorIs(t, rep.ImageErr, ErrSkipped)
	assert.NoFileExists(t, cfg.Image)
	assert.Empty(t, rep.Overlay)

	r, err := raster.Read(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, grid.Interrupted, r.Status)
	assert.Equal(t, rep.Coverage, r.Coverage)
}

func TestRunASCIIExport(t *testing.T) {
	srv := altiServer(t, "")
	cfg := settings(t, srv.URL)
	cfg.Output = strings.TrimSuffix(cfg.Output, ".db") + ".asc"

	rep, err := Run(context.Background(), cfg, elev.NewIGN(srv.URL, ""))
	require.NoError(t, err)
	assert.False(t, rep.Failed())
	assert.Equal(t, raster.ContainerPath(cfg.Output), rep.Raster)
	assert.Equal(t, cfg.Output, rep.Export)
	assert.FileExists(t, rep.Export)

	r, err := raster.Read(rep.Raster)
	require.NoError(t, err)
	assert.Equal(t, cfg.GridSpec(), r.Spec)
	assert.Equal(t, grid.Complete, r.Status)
}

func TestRunCancelledASCII(t *testing.T) {
	srv := altiServer(t, "")
	cfg := settings(t, srv.URL)
	cfg.Output = strings.TrimSuffix(cfg.Output, ".db") + ".asc"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &Pipeline{
		Settings: cfg,
		Service:  elev.NewIGN(srv.URL, ""),
		Progress: func(done, total int) {
			if done == 2 {
				cancel()
			}
		},
	}
	p.Settings.Workers = 1
	rep, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, grid.Interrupted, rep.Status)
	assert.ErrorIs(t, rep.ExportErr, ErrSkipped)
	assert.Empty(t, rep.Export)
	assert.NoFileExists(t, cfg.Output)

	r, err := raster.Read(rep.Raster)
	require.NoError(t, err)
	assert.Equal(t, grid.Interrupted, r.Status)
	assert.Equal(t, cfg.GridSpec(), r.Spec)
}

func TestRunOutputsIndependent(t *testing.T) {
	srv := altiServer(t, "")

	cfg := settings(t, srv.URL)
	cfg.Output = filepath.Join(t.TempDir(), "missing", "heights.db")
	rep, err := Run(context.Background(), cfg, elev.NewIGN(srv.URL, ""))
	require.NoError(t, err)
	var we *raster.WriteError
	assert.ErrorAs(t, rep.RasterErr, &we)
	assert.FileExists(t, cfg.Image)
	assert.True(t, rep.Failed())

	cfg = settings(t, srv.URL)
	cfg.Image = filepath.Join(t.TempDir(), "missing", "heights.png")
	rep, err = Run(context.Background(), cfg, elev.NewIGN(srv.URL, ""))
	require.NoError(t, err)
	assert.Error(t, rep.ImageErr)
	assert.Empty(t, rep.Overlay)
	assert.FileExists(t, cfg.Output)
	assert.True(t, rep.Failed())
}

func TestRunBadGrid(t *testing.T) {
	cfg := settings(t, "http://127.0.0.1:1")
	cfg.Radius = 0
	rep, err := Run(context.Background(), cfg, elev.NewIGN(cfg.Endpoint, ""))
	var pe *geo.ProjectionError
	assert.ErrorAs(t, err, &pe)
	assert.Nil(t, rep)
	_, serr := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(serr))
}
