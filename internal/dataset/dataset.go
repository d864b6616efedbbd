// Package dataset holds generated samples of the observable.
package dataset

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/hbook"

	"github.com/verte-zerg/massfit/internal/pdf"
)

// DefaultBins is the binning used for plotting and goodness of fit.
const DefaultBins = 100

// Dataset is an immutable, unweighted sample of one observable.
type Dataset struct {
	obs    *pdf.Observable
	values []float64
}

// New returns a dataset holding a copy of values. Every value must lie inside
// the observable range.
func New(obs *pdf.Observable, values []float64) (*Dataset, error) {
	if obs == nil {
		return nil, fmt.Errorf("dataset without observable")
	}
	out := make([]float64, len(values))
	for i, x := range values {
		if math.IsNaN(x) || !obs.Contains(x) {
			return nil, fmt.Errorf("value %d (%g) outside %s range [%g, %g]", i, x, obs.Name, obs.Min, obs.Max)
		}
		out[i] = x
	}
	return &Dataset{obs: obs, values: out}, nil
}

// wrap takes ownership of values without checking them.
func wrap(obs *pdf.Observable, values []float64) *Dataset {
	return &Dataset{obs: obs, values: values}
}

// Observable returns the observable the values belong to.
func (d *Dataset) Observable() *pdf.Observable { return d.obs }

// Len returns the number of events.
func (d *Dataset) Len() int { return len(d.values) }

// At returns event i.
func (d *Dataset) At(i int) float64 { return d.values[i] }

// Values returns a copy of the events.
func (d *Dataset) Values() []float64 {
	out := make([]float64, len(d.values))
	copy(out, d.values)
	return out
}

// Histogram bins the events uniformly over the observable range. An event
// sitting exactly on the upper edge is counted in the last bin.
func (d *Dataset) Histogram(bins int) *hbook.H1D {
	if bins <= 0 {
		bins = DefaultBins
	}
	h := hbook.NewH1D(bins, d.obs.Min, d.obs.Max)
	top := math.Nextafter(d.obs.Max, d.obs.Min)
	for _, x := range d.values {
		if x >= d.obs.Max {
			x = top
		}
		h.Fill(x, 1)
	}
	return h
}
