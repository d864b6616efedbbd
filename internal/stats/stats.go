// Package stats contains goodness-of-fit calculations and text reporting.
package stats

import (
	"fmt"
	"math"
	"strings"

	moremath "github.com/aclements/go-moremath/stats"
	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/verte-zerg/massfit/internal/pdf"
)

const sparkChars = " .:-=+*#%@"

// Expectation returns the expected event count in [lo, hi].
type Expectation func(lo, hi float64) float64

// ModelExpectation returns the model's expected counts, scaled to its total
// yield. With components named, only the terms below them contribute.
func ModelExpectation(m *pdf.Model, components ...string) Expectation {
	terms := m.Terms()
	if len(components) > 0 {
		terms = pdf.Project(terms, components...)
	}
	nu := m.ExpectedEvents()
	return func(lo, hi float64) float64 {
		return nu * pdf.TermsIntegral(terms, lo, hi)
	}
}

// GoodnessOfFit is a binned chi-square comparison of data with a model.
type GoodnessOfFit struct {
	Chi2 float64
	NDOF int
	// Bins is every bin in range; Filled is the bins that entered the sum.
	Bins   int
	Filled int
	PValue float64
}

// Ratio returns chi2/ndof.
func (g GoodnessOfFit) Ratio() float64 {
	if g.NDOF <= 0 {
		return math.NaN()
	}
	return g.Chi2 / float64(g.NDOF)
}

// ChiSquare compares h with expected. Empty bins are left out of the sum but
// still count toward the degrees of freedom, which are all bins minus nFloat.
// Each bin's error is the square root of its sum of squared weights.
func ChiSquare(h *hbook.H1D, expected Expectation, nFloat int) (GoodnessOfFit, error) {
	var g GoodnessOfFit
	for _, b := range h.Binning.Bins {
		g.Bins++
		y := b.SumW()
		sigma := math.Sqrt(b.SumW2())
		if y == 0 || sigma == 0 {
			continue
		}
		mu := expected(b.XMin(), b.XMax())
		d := (y - mu) / sigma
		g.Chi2 += d * d
		g.Filled++
	}
	g.NDOF = g.Bins - nFloat
	if g.NDOF <= 0 {
		return g, fmt.Errorf("chi-square: %d bins for %d floated parameters", g.Bins, nFloat)
	}
	g.PValue = distuv.ChiSquared{K: float64(g.NDOF)}.Survival(g.Chi2)
	return g, nil
}

// Pull is the normalized residual of one bin.
type Pull struct {
	X     float64
	Width float64
	Value float64
}

// Pulls returns (observed - expected)/error for every bin with a non-zero
// error.
func Pulls(h *hbook.H1D, expected Expectation) []Pull {
	out := make([]Pull, 0, len(h.Binning.Bins))
	for _, b := range h.Binning.Bins {
		sigma := math.Sqrt(b.SumW2())
		if sigma == 0 {
			continue
		}
		mu := expected(b.XMin(), b.XMax())
		out = append(out, Pull{X: b.XMid(), Width: b.XWidth(), Value: (b.SumW() - mu) / sigma})
	}
	return out
}

// PullSummary returns the mean and standard deviation of the pulls. For a
// good fit they are close to 0 and 1.
func PullSummary(pulls []Pull) (mean, stddev float64) {
	if len(pulls) == 0 {
		return 0, 0
	}
	s := moremath.Sample{Xs: make([]float64, len(pulls))}
	for i, p := range pulls {
		s.Xs[i] = p.Value
	}
	return s.Mean(), s.StdDev()
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMaxSingle(values)
	if math.Abs(maxVal-minVal) < 1e-9*math.Max(1, math.Abs(maxVal)) {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}
