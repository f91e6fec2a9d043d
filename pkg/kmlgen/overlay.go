// Package kmlgen writes a KML/KMZ ground overlay of a rendered heightmap.
package kmlgen

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	kml "github.com/twpayne/go-kml"
	kmz "github.com/twpayne/go-kmz"
	"github.com/yookoala/realpath"

	geo "github.com/stronnag/altimap/pkg/geo"
	grid "github.com/stronnag/altimap/pkg/grid"
	options "github.com/stronnag/altimap/pkg/options"
	raster "github.com/stronnag/altimap/pkg/raster"
	styles "github.com/stronnag/altimap/pkg/styles"
)

func row(sb *strings.Builder, k, v string) {
	sb.WriteString(fmt.Sprintf("<tr><td><b>%s</b></td><td>%s</td></tr>", k, v))
}

func describe(g *grid.Grid, st grid.Stats, hasStats bool) string {
	s := g.Spec
	var sb strings.Builder
	sb.WriteString(`<table style="border="1px" silver; border="1" silver; rules="all";;">`)
	row(&sb, "Centre", geo.PositionFormat(s.Lat, s.Lon, options.Config.Dms))
	row(&sb, "Radius", fmt.Sprintf("%.0f m", s.Radius))
	row(&sb, "Step", fmt.Sprintf("%.0f m", s.Step))
	row(&sb, "Grid", fmt.Sprintf("%d x %d", g.Dim(), g.Dim()))
	row(&sb, "Coverage", fmt.Sprintf("%.1f %%", 100*g.Coverage()))
	if hasStats {
		row(&sb, "Lowest", fmt.Sprintf("%.1f m", st.Min))
		row(&sb, "Highest", fmt.Sprintf("%.1f m", st.Max))
		row(&sb, "Median", fmt.Sprintf("%.1f m", st.P50))
	}
	sb.WriteString("</table>")
	return sb.String()
}

func extended(g *grid.Grid, st grid.Stats, hasStats bool, meta raster.Meta) kml.Element {
	s := g.Spec
	e := kml.ExtendedData(
		kml.Data(kml.Name("Centre"), kml.Value(geo.PositionFormat(s.Lat, s.Lon, false))),
		kml.Data(kml.Name("Radius"), kml.Value(fmt.Sprintf("%g", s.Radius))),
		kml.Data(kml.Name("Step"), kml.Value(fmt.Sprintf("%g", s.Step))),
		kml.Data(kml.Name("Dim"), kml.Value(fmt.Sprintf("%d", g.Dim()))),
		kml.Data(kml.Name("Status"), kml.Value(g.Status().String())),
		kml.Data(kml.Name("Coverage"), kml.Value(fmt.Sprintf("%.4f", g.Coverage()))),
	)
	if hasStats {
		for _, kv := range []struct {
			k string
			v float64
		}{{"Min", st.Min}, {"Max", st.Max}, {"P05", st.P05}, {"P50", st.P50}, {"P95", st.P95}} {
			e.Add(kml.Data(kml.Name(kv.k), kml.Value(fmt.Sprintf("%.1f", kv.v))))
		}
	}
	if meta.Service != "" {
		e.Add(kml.Data(kml.Name("Service"), kml.Value(meta.Service)))
	}
	if meta.RunID != "" {
		e.Add(kml.Data(kml.Name("RunID"), kml.Value(meta.RunID)))
	}
	return e
}

// Overlay builds the document: the image stretched over the sampled area,
// its outline and a placemark at the requested centre.
func Overlay(g *grid.Grid, href string, meta raster.Meta) kml.Element {
	north, south, east, west := latLonBox(g.Spec)
	st, hasStats := g.Summarise()
	name := fmt.Sprintf("Elevation %s", geo.PositionFormat(g.Spec.Lat, g.Spec.Lon, options.Config.Dms))

	ov := kml.GroundOverlay(
		kml.Name("Heightmap"),
		kml.Color(color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xc0}),
		kml.Icon(kml.Href(href)),
		kml.LatLonBox(
			kml.North(north),
			kml.South(south),
			kml.East(east),
			kml.West(west),
		),
	)

	outline := kml.Placemark(
		kml.Name("Sampled area"),
		kml.StyleURL("#styleBounds"),
		kml.LineString(
			kml.Tessellate(true),
			kml.Coordinates(
				kml.Coordinate{Lon: west, Lat: north},
				kml.Coordinate{Lon: east, Lat: north},
				kml.Coordinate{Lon: east, Lat: south},
				kml.Coordinate{Lon: west, Lat: south},
				kml.Coordinate{Lon: west, Lat: north},
			),
		),
	)

	centre := kml.Placemark(
		kml.Name("Centre"),
		kml.Description(describe(g, st, hasStats)),
		kml.StyleURL("#styleCentre"),
		kml.Point(
			kml.AltitudeMode(kml.AltitudeModeClampToGround),
			kml.Coordinates(kml.Coordinate{Lon: g.Spec.Lon, Lat: g.Spec.Lat}),
		),
	)

	d := kml.Folder(kml.Name(name)).Add(kml.Open(true))
	d.Add(styles.Get_overlay_styles()...)
	d.Add(extended(g, st, hasStats, meta))
	d.Add(ov, outline, centre)
	return d
}

// latLonBox returns the edges of the grid, latitudes clamped to the poles
// and longitudes folded into [-180, 180). Across the antimeridian west is
// greater than east.
func latLonBox(spec geo.GridSpec) (north, south, east, west float64) {
	b := spec.Bound()
	north = math.Min(b.Top(), 90)
	south = math.Max(b.Bottom(), -90)
	east = geo.NormaliseLon(b.Right())
	west = geo.NormaliseLon(b.Left())
	return
}

// GenerateOverlay writes the overlay for imagePath to outfn. A .kmz carries
// the image itself under its base name; plain KML refers to the image by
// its absolute path.
func GenerateOverlay(g *grid.Grid, imagePath, outfn string, meta raster.Meta) error {
	var write func(io.Writer) error
	if strings.HasSuffix(strings.ToLower(outfn), ".kmz") {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("overlay image: %w", err)
		}
		name := filepath.Base(imagePath)
		z := kmz.NewKMZ(Overlay(g, name, meta))
		z.AddFile(name, data)
		write = func(w io.Writer) error {
			return z.WriteIndent(w, "", "  ")
		}
	} else {
		href, err := realpath.Realpath(imagePath)
		if err != nil {
			return fmt.Errorf("overlay image: %w", err)
		}
		d := Overlay(g, href, meta)
		write = func(w io.Writer) error {
			return kml.KML(d).WriteIndent(w, "", "  ")
		}
	}
	if err := writeFile(outfn, write); err != nil {
		return fmt.Errorf("overlay %s: %w", outfn, err)
	}
	return nil
}
