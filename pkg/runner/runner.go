// Package runner drives a fetch from the grid layout to the written files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/stronnag/altimap/pkg/elev"
	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/grid"
	"github.com/stronnag/altimap/pkg/kmlgen"
	"github.com/stronnag/altimap/pkg/options"
	"github.com/stronnag/altimap/pkg/raster"
	"github.com/stronnag/altimap/pkg/render"
)

// ErrSkipped marks an output not attempted because the run was cancelled.
var ErrSkipped = errors.New("skipped, run interrupted")

type Report struct {
	Spec     geo.GridSpec
	Dms      bool
	Service  string
	RunID    string
	Cells    int
	Missing  int
	Coverage float64
	Status   grid.Status
	Stats    grid.Stats
	HasStats bool
	// One per batch that produced nothing.
	FetchErrors []*elev.FetchError
	Elapsed     time.Duration

	// Files written, empty if not requested or not written.
	Raster  string
	Export  string
	Image   string
	Overlay string

	RasterErr  error
	ExportErr  error
	ImageErr   error
	OverlayErr error
}

// Failed reports whether any requested output could not be written.
func (r *Report) Failed() bool {
	return r.RasterErr != nil || r.ExportErr != nil || r.ImageErr != nil || r.OverlayErr != nil
}

func outline(path string, err error) string {
	if errors.Is(err, ErrSkipped) {
		return err.Error()
	}
	if err != nil {
		return "failed: " + err.Error()
	}
	return path
}

// Summary is a list of key, value pairs in display order.
func (r *Report) Summary() [][2]string {
	n := r.Spec.Dim()
	s := [][2]string{
		{"Centre", geo.PositionFormat(r.Spec.Lat, r.Spec.Lon, r.Dms)},
		{"Area", fmt.Sprintf("radius %.0fm, step %.0fm", r.Spec.Radius, r.Spec.Step)},
		{"Grid", fmt.Sprintf("%d x %d (%s cells)", n, n, humanize.Comma(int64(r.Cells)))},
		{"Service", r.Service},
		{"Coverage", fmt.Sprintf("%.1f%% (%s missing)", 100*r.Coverage, humanize.Comma(int64(r.Missing)))},
		{"Status", r.Status.String()},
	}
	if r.HasStats {
		s = append(s, [2]string{"Height", fmt.Sprintf("%.1f - %.1f m, median %.1f m", r.Stats.Min, r.Stats.Max, r.Stats.P50)})
	}
	if len(r.FetchErrors) > 0 {
		s = append(s, [2]string{"Failures", strconv.Itoa(len(r.FetchErrors)) + " request(s)"})
	}
	if r.Raster != "" || r.RasterErr != nil {
		s = append(s, [2]string{"Raster", outline(r.Raster, r.RasterErr)})
	}
	if r.Export != "" || r.ExportErr != nil {
		s = append(s, [2]string{"Export", outline(r.Export, r.ExportErr)})
	}
	if r.Image != "" || r.ImageErr != nil {
		s = append(s, [2]string{"Image", outline(r.Image, r.ImageErr)})
	}
	if r.Overlay != "" || r.OverlayErr != nil {
		s = append(s, [2]string{"Overlay", outline(r.Overlay, r.OverlayErr)})
	}
	s = append(s, [2]string{"Elapsed", r.Elapsed.Round(time.Millisecond).String()})
	return s
}

// Pipeline carries what a run needs beyond the settings.
type Pipeline struct {
	Settings options.Settings
	Service  elev.Service
	// nil means the real clock.
	Clock elev.Clock
	// Called after each request completes.
	Progress func(done, total int)
}

// Run fetches the grid described by cfg from svc and writes the outputs.
func Run(ctx context.Context, cfg options.Settings, svc elev.Service) (*Report, error) {
	p := &Pipeline{Settings: cfg, Service: svc}
	return p.Run(ctx)
}

// Run returns an error, with no report, for a grid that cannot be laid
// out or assembled. The SQLite raster is always written; an .asc output is
// exported beside it. A cancelled run still writes the raster, marked
// interrupted, and returns the report together with the context's error.
// Output failures are recorded in the report only.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	cfg := p.Settings
	start := time.Now()
	spec := cfg.GridSpec()

	pts, err := geo.Project(spec)
	if err != nil {
		return nil, err
	}
	options.Vlog(0, "grid %dx%d, %d points", spec.Dim(), spec.Dim(), len(pts))

	client := elev.NewClient(p.Service, cfg.ClientConfig(), p.Clock)
	client.Progress = p.Progress
	res, ferr := client.Fetch(ctx, pts)
	if ferr != nil && !errors.Is(ferr, context.Canceled) && !errors.Is(ferr, context.DeadlineExceeded) {
		return nil, ferr
	}

	g, err := grid.Assemble(spec, res.Samples)
	if err != nil {
		return nil, err
	}
	if ferr != nil {
		g.MarkInterrupted()
	}

	rep := &Report{
		Spec:        spec,
		Dms:         cfg.Dms,
		Service:     p.Service.Name(),
		RunID:       uuid.NewString(),
		Cells:       g.Cells(),
		Missing:     g.Missing(),
		Coverage:    g.Coverage(),
		Status:      g.Status(),
		FetchErrors: res.Errors,
	}
	rep.Stats, rep.HasStats = g.Summarise()
	for _, fe := range res.Errors {
		options.Vlog(0, "%v", fe)
	}

	meta := raster.Meta{
		RunID:   rep.RunID,
		Service: rep.Service,
		Created: time.Now().UTC(),
		Attrs: map[string]string{
			"batch":    strconv.Itoa(client.BatchSize()),
			"workers":  strconv.Itoa(cfg.Workers),
			"requests": strconv.Itoa(requests(len(pts), client.BatchSize())),
			"failures": strconv.Itoa(len(res.Errors)),
		},
	}
	if cfg.Endpoint != "" {
		meta.Attrs["endpoint"] = cfg.Endpoint
	}
	if cfg.Dataset != "" {
		meta.Attrs["dataset"] = cfg.Dataset
	}

	container := raster.ContainerPath(cfg.Output)
	if err := raster.Write(g, container, meta); err != nil {
		rep.RasterErr = err
	} else {
		rep.Raster = container
	}

	interrupted := g.Status() == grid.Interrupted
	if raster.FormatFor(cfg.Output) == raster.FormatASCII {
		if interrupted {
			rep.ExportErr = ErrSkipped
		} else if err := raster.WriteASCII(g, cfg.Output); err != nil {
			rep.ExportErr = err
		} else {
			rep.Export = cfg.Output
		}
	}

	if cfg.Image != "" {
		if interrupted {
			rep.ImageErr = ErrSkipped
		} else {
			p.writeImage(g, rep, meta)
		}
	}
	rep.Elapsed = time.Since(start)
	return rep, ferr
}

func (p *Pipeline) writeImage(g *grid.Grid, rep *Report, meta raster.Meta) {
	cfg := p.Settings
	img, err := render.Render(g, cfg.RenderOptions())
	if err == nil {
		err = render.WritePNG(img, cfg.Image)
	}
	if err != nil {
		rep.ImageErr = err
		return
	}
	rep.Image = cfg.Image
	if cfg.Overlay {
		fn := kmlgen.GenKmlName(cfg.Image, cfg.Kml)
		if err := kmlgen.GenerateOverlay(g, cfg.Image, fn, meta); err != nil {
			rep.OverlayErr = err
		} else {
			rep.Overlay = fn
		}
	}
}

func requests(npts, size int) int {
	if size < 1 {
		return 0
	}
	return (npts + size - 1) / size
}
