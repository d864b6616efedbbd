package report

import (
	"image/color"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Style is how a curve is stroked.
type Style struct {
	Color  color.Color
	Width  vg.Length
	Dashes []vg.Length
}

var (
	blue   = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	green  = color.NRGBA{R: 0, G: 160, B: 0, A: 255}
	violet = color.NRGBA{R: 148, G: 0, B: 211, A: 255}
	purple = color.NRGBA{R: 128, G: 0, B: 128, A: 255}
	gray   = color.NRGBA{R: 110, G: 110, B: 110, A: 255}
)

var (
	dashed       = []vg.Length{vg.Points(6), vg.Points(4)}
	dashDot      = []vg.Length{vg.Points(6), vg.Points(3), vg.Points(1.5), vg.Points(3)}
	dashDotDot   = []vg.Length{vg.Points(6), vg.Points(3), vg.Points(1.5), vg.Points(3), vg.Points(1.5), vg.Points(3)}
	defaultWidth = vg.Points(1.5)
)

// Predefined curve styles.
var (
	StyleModel = Style{Color: blue, Width: defaultWidth}
	StyleBkg   = Style{Color: green, Width: defaultWidth, Dashes: dashDot}
	StyleSig1  = Style{Color: violet, Width: defaultWidth, Dashes: dashed}
	StyleSig2  = Style{Color: purple, Width: defaultWidth, Dashes: dashDotDot}
)

// DefaultComponents are the component overlays drawn on the main frame.
var DefaultComponents = []string{"bkg", "sig1", "sig2"}

var componentStyles = map[string]Style{
	"bkg":  StyleBkg,
	"sig1": StyleSig1,
	"sig2": StyleSig2,
}

var fallbackStyles = []Style{
	{Color: color.NRGBA{R: 230, G: 120, B: 0, A: 255}, Width: defaultWidth, Dashes: dashed},
	{Color: color.NRGBA{R: 0, G: 150, B: 170, A: 255}, Width: defaultWidth, Dashes: dashDot},
	{Color: color.NRGBA{R: 200, G: 0, B: 90, A: 255}, Width: defaultWidth, Dashes: dashDotDot},
}

// ComponentStyle returns the overlay style of a named component. Names
// without a predefined style cycle through a fallback palette by position.
func ComponentStyle(name string, i int) Style {
	if s, ok := componentStyles[name]; ok {
		return s
	}
	return fallbackStyles[i%len(fallbackStyles)]
}

func (s Style) line() draw.LineStyle {
	return draw.LineStyle{Color: s.Color, Width: s.Width, Dashes: s.Dashes}
}
