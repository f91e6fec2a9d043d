package render

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"github.com/mazznoer/colorgrad"
)

const NUM_GRAD = 256

// A Palette maps normalised heights 0..255 to colours, low to high.
type Palette [NUM_GRAD]color.NRGBA

var gradients = map[string]func() colorgrad.Gradient{
	"viridis":  colorgrad.Viridis,
	"turbo":    colorgrad.Turbo,
	"cividis":  colorgrad.Cividis,
	"inferno":  colorgrad.Inferno,
	"spectral": colorgrad.Spectral,
	"rdylgn":   colorgrad.RdYlGn,
	"ylorrd":   colorgrad.YlOrRd,
	"reds":     colorgrad.Reds,
}

// Hypsometric tints, sea to snow.
var terrainColours = []string{"#2b6a8f", "#6fae5b", "#d9d38c", "#a9825a", "#8a7a6e", "#ffffff"}

// These start at red; reversed, low ground is green/blue and summits red.
var reversed = map[string]bool{
	"spectral": true,
	"rdylgn":   true,
}

// Gradients lists the accepted palette names.
func Gradients() []string {
	names := []string{"gray", "terrain"}
	for k := range gradients {
		names = append(names, k)
	}
	sort.Strings(names[2:])
	return names
}

// NewPalette samples the named gradient. "gray" (the default) is a plain
// black to white ramp.
func NewPalette(name string) (*Palette, error) {
	name = strings.ToLower(name)
	var p Palette
	switch name {
	case "", "gray", "grey":
		for i := range p {
			p[i] = color.NRGBA{R: uint8(i), G: uint8(i), B: uint8(i), A: 0xff}
		}
		return &p, nil
	case "terrain":
		grad, err := colorgrad.NewGradient().HtmlColors(terrainColours...).Build()
		if err != nil {
			return nil, err
		}
		fill(&p, grad, false)
		return &p, nil
	}
	gf, ok := gradients[name]
	if !ok {
		return nil, fmt.Errorf("unknown gradient %q (%s)", name, strings.Join(Gradients(), ", "))
	}
	fill(&p, gf(), reversed[name])
	return &p, nil
}

func fill(p *Palette, grad colorgrad.Gradient, rev bool) {
	for i := range p {
		k := i
		if rev {
			k = NUM_GRAD - 1 - i
		}
		r, g, b, _ := grad.At(float64(k) / float64(NUM_GRAD-1)).RGBA()
		p[i] = color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff}
	}
}

// avoid nudges any entry equal to c, so that c stays unique to no-data.
func (p *Palette) avoid(c color.NRGBA) {
	for i, e := range p {
		if e == c {
			if e.G < 0xff {
				e.G++
			} else {
				e.G--
			}
			p[i] = e
		}
	}
}
