// Package render draws a grid as a heightmap image.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/stronnag/altimap/pkg/grid"
)

var (
	Magenta     = color.NRGBA{R: 0xff, G: 0, B: 0xff, A: 0xff}
	Transparent = color.NRGBA{}
)

// ErrNoData is returned for a grid without a single known elevation.
var ErrNoData = errors.New("no cell has an elevation")

// RenderError is any failure to produce or save an image.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("render: %v", e.Err)
	}
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Palette name, see Gradients.
	Gradient string
	// Colour of cells without elevation.
	NoData color.NRGBA
	// Pixels per cell along each axis.
	Scale int
}

func DefaultOptions() Options {
	return Options{Gradient: "gray", NoData: Magenta, Scale: 1}
}

// Render maps elevations linearly between the grid's lowest and highest
// known values onto the palette. North is up.
func Render(g *grid.Grid, opts Options) (*image.NRGBA, error) {
	lo, hi, ok := g.Range()
	if !ok {
		return nil, &RenderError{Err: ErrNoData}
	}
	pal, err := NewPalette(opts.Gradient)
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	pal.avoid(opts.NoData)
	scale := max(opts.Scale, 1)

	n := g.Dim()
	img := image.NewNRGBA(image.Rect(0, 0, n*scale, n*scale))
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			c := opts.NoData
			if v, ok := g.At(row, col); ok {
				c = pal[level(v, lo, hi)]
			}
			for y := row * scale; y < (row+1)*scale; y++ {
				for x := col * scale; x < (col+1)*scale; x++ {
					img.SetNRGBA(x, y, c)
				}
			}
		}
	}
	return img, nil
}

// level normalises v into a palette index. A flat grid sits mid-palette.
func level(v, lo, hi float64) int {
	if hi <= lo {
		return NUM_GRAD / 2
	}
	i := int(math.Round((v - lo) / (hi - lo) * (NUM_GRAD - 1)))
	return min(max(i, 0), NUM_GRAD-1)
}

// WritePNG saves img, replacing path only once the image is complete.
func WritePNG(img image.Image, path string) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return &RenderError{Path: path, Err: err}
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	err = enc.Encode(f, img)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		os.Chmod(f.Name(), 0644)
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		os.Remove(f.Name())
		return &RenderError{Path: path, Err: err}
	}
	return nil
}
