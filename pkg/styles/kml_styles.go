package styles

import (
	"image/color"

	kml "github.com/twpayne/go-kml"
	"github.com/twpayne/go-kml/icon"
)

var balloon = kml.BalloonStyle(kml.BgColor(color.RGBA{R: 0xde, G: 0xde, B: 0xde, A: 0x40}),
	kml.Text(`<b><font size="+2">$[name]</font></b><br/><br/>$[description]<br/>`))

// Get_overlay_styles are shared by the elevation overlay document.
func Get_overlay_styles() []kml.Element {
	return []kml.Element{
		kml.SharedStyle(
			"styleCentre",
			kml.IconStyle(
				kml.Scale(0.8),
				kml.Icon(
					kml.Href(icon.PaddleHref("red-stars")),
				),
			),
			balloon,
		),
		kml.SharedStyle(
			"styleBounds",
			kml.LineStyle(
				kml.Width(2.0),
				kml.Color(color.RGBA{R: 0xfc, G: 0xac, B: 0x64, A: 0xa0}),
			),
			kml.PolyStyle(
				kml.Color(color.RGBA{R: 0xfc, G: 0xac, B: 0x64, A: 0}),
			),
		),
	}
}
