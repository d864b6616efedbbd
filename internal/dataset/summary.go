package dataset

import (
	"fmt"
	"io"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/aclements/go-moremath/stats"
)

// Quantiles reported by Summary.
var Quantiles = []float64{0.05, 0.25, 0.5, 0.75, 0.95}

// Summary describes a dataset without binning it.
type Summary struct {
	Count     int
	Mean      float64
	StdDev    float64
	Min       float64
	Max       float64
	Quantiles []float64
}

// Summary computes moments exactly and quantiles from a 1% relative-accuracy
// sketch.
func (d *Dataset) Summary() (Summary, error) {
	s := Summary{Count: d.Len()}
	if s.Count == 0 {
		return s, nil
	}
	sample := stats.Sample{Xs: d.values}
	s.Mean = sample.Mean()
	s.StdDev = sample.StdDev()
	s.Min, s.Max = sample.Bounds()

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return s, err
	}
	for _, x := range d.values {
		if err := sketch.Add(x); err != nil {
			return s, fmt.Errorf("sketch value %g: %w", x, err)
		}
	}
	s.Quantiles, err = sketch.GetValuesAtQuantiles(Quantiles)
	if err != nil {
		return s, err
	}
	return s, nil
}

// Write prints the summary as aligned lines.
func (s Summary) Write(w io.Writer, unit string) error {
	if _, err := fmt.Fprintf(w, "events   %d\n", s.Count); err != nil {
		return err
	}
	if s.Count == 0 {
		return nil
	}
	lines := []struct {
		label string
		value float64
	}{
		{"mean", s.Mean},
		{"std-dev", s.StdDev},
		{"min", s.Min},
		{"max", s.Max},
	}
	for i, q := range Quantiles {
		if i < len(s.Quantiles) {
			lines = append(lines, struct {
				label string
				value float64
			}{fmt.Sprintf("p%02.0f", q*100), s.Quantiles[i]})
		}
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-8s %.3f %s\n", l.label, l.value, unit); err != nil {
			return err
		}
	}
	return nil
}
