// Package report draws fit frames and writes the composed figure.
package report

import (
	"fmt"
	"math"
	"slices"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/verte-zerg/massfit/internal/fit"
	"github.com/verte-zerg/massfit/internal/pdf"
	"github.com/verte-zerg/massfit/internal/stats"
)

const (
	curveSamples = 600
	pullRange    = 5
)

// Frame is a plot over the observable range holding overlays in the order
// they were added.
type Frame struct {
	Obs    *pdf.Observable
	Title  string
	YLabel string

	bins     int
	yRange   *[2]float64
	overlays []any
	data     []*Points
	curves   []*Curve
}

// Points are binned values drawn as markers with error bars.
type Points struct {
	Name string
	hist *hbook.H1D
	xys  plotter.XYs
	xerr plotter.XErrors
	yerr plotter.YErrors
}

// Curve is a smooth function drawn as a line. It also carries the expected
// event count per interval, for goodness of fit against the frame's data.
type Curve struct {
	Name     string
	Style    Style
	eval     func(float64) float64
	expected stats.Expectation
}

// HLine is a horizontal reference line across the observable range.
type HLine struct {
	Y     float64
	Style Style
}

type paramBox struct {
	lines []string
}

// NewFrame returns an empty frame with bins of equal width over obs.
func NewFrame(obs *pdf.Observable, bins int) *Frame {
	return &Frame{
		Obs:    obs,
		Title:  obs.Title,
		YLabel: fmt.Sprintf("Events / (%.3g %s)", obs.Width()/float64(bins), obs.Unit),
		bins:   bins,
	}
}

// SetYRange fixes the vertical range.
func (f *Frame) SetYRange(lo, hi float64) {
	f.yRange = &[2]float64{lo, hi}
}

// AddData overlays a histogram as points with sqrt(sumw2) vertical errors.
// Empty bins are drawn at zero without an error bar.
func (f *Frame) AddData(name string, h *hbook.H1D) *Points {
	p := &Points{Name: name, hist: h}
	for _, b := range h.Binning.Bins {
		e := math.Sqrt(b.SumW2())
		p.xys = append(p.xys, plotter.XY{X: b.XMid(), Y: b.SumW()})
		p.xerr = append(p.xerr, struct{ Low, High float64 }{b.XWidth() / 2, b.XWidth() / 2})
		p.yerr = append(p.yerr, struct{ Low, High float64 }{e, e})
	}
	f.overlays = append(f.overlays, p)
	f.data = append(f.data, p)
	return p
}

// AddModel overlays the model scaled to events per bin. With components named,
// only the terms below them are drawn.
func (f *Frame) AddModel(m *pdf.Model, name string, style Style, components ...string) *Curve {
	terms := m.Terms()
	if len(components) > 0 {
		terms = pdf.Project(terms, components...)
	}
	density := pdf.Compile(terms)
	scale := m.ExpectedEvents() * f.Obs.Width() / float64(f.bins)
	return f.AddCurve(&Curve{
		Name:     name,
		Style:    style,
		eval:     func(x float64) float64 { return scale * density(x) },
		expected: stats.ModelExpectation(m, components...),
	})
}

// AddCurve overlays c.
func (f *Frame) AddCurve(c *Curve) *Curve {
	f.overlays = append(f.overlays, c)
	f.curves = append(f.curves, c)
	return c
}

// AddHLine overlays a horizontal line at y.
func (f *Frame) AddHLine(y float64, style Style) {
	f.overlays = append(f.overlays, HLine{Y: y, Style: style})
}

// AddParamBox lists the fitted values and errors of res. With names given only
// those parameters are listed.
func (f *Frame) AddParamBox(res *fit.Result, names ...string) {
	var box paramBox
	for _, p := range res.Params {
		if len(names) > 0 && !slices.Contains(names, p.Name) {
			continue
		}
		box.lines = append(box.lines, fmt.Sprintf("%s = %.5g ± %.2g", p.Name, p.Value, p.Error))
	}
	f.overlays = append(f.overlays, box)
}

// ChiSquare compares the last data added with the last curve added.
func (f *Frame) ChiSquare(nFloat int) (stats.GoodnessOfFit, error) {
	pts, c, err := f.lastPair()
	if err != nil {
		return stats.GoodnessOfFit{}, err
	}
	return stats.ChiSquare(pts.hist, c.expected, nFloat)
}

// PullFrame returns a frame of (data - curve)/error for the last data and
// curve added, with a [-5, 5] range and a line at zero.
func (f *Frame) PullFrame() (*Frame, error) {
	pts, c, err := f.lastPair()
	if err != nil {
		return nil, err
	}
	out := &Frame{Obs: f.Obs, YLabel: "Pull", bins: f.bins}
	p := &Points{Name: "pull"}
	for _, pull := range stats.Pulls(pts.hist, c.expected) {
		p.xys = append(p.xys, plotter.XY{X: pull.X, Y: pull.Value})
		p.xerr = append(p.xerr, struct{ Low, High float64 }{pull.Width / 2, pull.Width / 2})
		p.yerr = append(p.yerr, struct{ Low, High float64 }{1, 1})
	}
	out.overlays = append(out.overlays, p)
	out.AddHLine(0, Style{Color: gray, Width: vg.Points(1)})
	out.SetYRange(-pullRange, pullRange)
	return out, nil
}

func (f *Frame) lastPair() (*Points, *Curve, error) {
	if len(f.data) == 0 || f.data[len(f.data)-1].hist == nil {
		return nil, nil, fmt.Errorf("frame has no data")
	}
	if len(f.curves) == 0 {
		return nil, nil, fmt.Errorf("frame has no curve")
	}
	return f.data[len(f.data)-1], f.curves[len(f.curves)-1], nil
}

// Plot renders the frame's overlays into a plot.
func (f *Frame) Plot() (*hplot.Plot, error) {
	p := hplot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.Obs.Label()
	p.Y.Label.Text = f.YLabel
	p.X.Min, p.X.Max = f.Obs.Min, f.Obs.Max
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(hplot.NewGrid())

	lo, hi := f.verticalRange()
	p.Y.Min, p.Y.Max = lo, hi

	for _, o := range f.overlays {
		switch v := o.(type) {
		case *Points:
			if err := addPoints(p.Plot, v); err != nil {
				return nil, err
			}
		case *Curve:
			line, err := plotter.NewLine(f.sample(v.eval))
			if err != nil {
				return nil, fmt.Errorf("curve %s: %w", v.Name, err)
			}
			line.LineStyle = v.Style.line()
			p.Add(line)
			p.Legend.Add(v.Name, line)
		case HLine:
			line, err := plotter.NewLine(plotter.XYs{{X: f.Obs.Min, Y: v.Y}, {X: f.Obs.Max, Y: v.Y}})
			if err != nil {
				return nil, err
			}
			line.LineStyle = v.Style.line()
			p.Add(line)
		case paramBox:
			if len(v.lines) == 0 {
				continue
			}
			xys := make(plotter.XYs, len(v.lines))
			for i := range v.lines {
				xys[i] = plotter.XY{
					X: f.Obs.Min + 0.66*f.Obs.Width(),
					Y: hi - (hi-lo)*(0.06+0.055*float64(i)),
				}
			}
			labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: v.lines})
			if err != nil {
				return nil, err
			}
			p.Add(labels)
		}
	}
	return p, nil
}

func addPoints(p *plot.Plot, pts *Points) error {
	if len(pts.xys) == 0 {
		return nil
	}
	yb, xb, sc, err := pointPlotters(pts)
	if err != nil {
		return fmt.Errorf("points %s: %w", pts.Name, err)
	}
	p.Add(yb, xb, sc)
	p.Legend.Add(pts.Name, sc)
	return nil
}

// pointPlotters returns capless error bars and round markers for pts.
func pointPlotters(pts *Points) (*plotter.YErrorBars, *plotter.XErrorBars, *plotter.Scatter, error) {
	bars := errorPoints{XYs: pts.xys, XErrors: pts.xerr, YErrors: pts.yerr}
	yb, err := plotter.NewYErrorBars(bars)
	if err != nil {
		return nil, nil, nil, err
	}
	xb, err := plotter.NewXErrorBars(bars)
	if err != nil {
		return nil, nil, nil, err
	}
	sc, err := plotter.NewScatter(pts.xys)
	if err != nil {
		return nil, nil, nil, err
	}
	sc.GlyphStyle = draw.GlyphStyle{Shape: draw.CircleGlyph{}, Radius: vg.Points(1.4)}
	yb.CapWidth, xb.CapWidth = 0, 0
	return yb, xb, sc, nil
}

type errorPoints struct {
	plotter.XYs
	plotter.XErrors
	plotter.YErrors
}

func (f *Frame) sample(fn func(float64) float64) plotter.XYs {
	xys := make(plotter.XYs, curveSamples)
	step := f.Obs.Width() / float64(curveSamples-1)
	for i := range xys {
		x := f.Obs.Min + float64(i)*step
		xys[i] = plotter.XY{X: x, Y: fn(x)}
	}
	return xys
}

// verticalRange returns the fixed range, or zero up to the highest overlay
// with headroom for the legend and parameter box.
func (f *Frame) verticalRange() (float64, float64) {
	if f.yRange != nil {
		return f.yRange[0], f.yRange[1]
	}
	top := 0.0
	for _, pts := range f.data {
		for i, xy := range pts.xys {
			top = math.Max(top, xy.Y+pts.yerr[i].High)
		}
	}
	for _, c := range f.curves {
		for _, xy := range f.sample(c.eval) {
			top = math.Max(top, xy.Y)
		}
	}
	if top <= 0 {
		top = 1
	}
	return 0, 1.3 * top
}
