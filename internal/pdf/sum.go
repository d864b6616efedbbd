package pdf

import (
	"fmt"
	"math"
	"slices"

	"github.com/verte-zerg/massfit/internal/model"
)

// Sum is a weighted sum of densities, normalized over the observable range.
//
// With one coefficient fewer than components the coefficients are fractions
// and the last component takes the complement. With one coefficient per
// component the coefficients are yields and the sum is extended: its expected
// event count is the total yield.
type Sum struct {
	name     string
	obs      *Observable
	comps    []Density
	coefs    []Real
	extended bool
}

// NewSum returns a composite density.
func NewSum(name string, obs *Observable, comps []Density, coefs []Real) (*Sum, error) {
	if len(comps) == 0 {
		return nil, fmt.Errorf("sum %s: no components", name)
	}
	var extended bool
	switch len(coefs) {
	case len(comps):
		extended = true
	case len(comps) - 1:
		extended = false
	default:
		return nil, fmt.Errorf("sum %s: %d coefficients for %d components", name, len(coefs), len(comps))
	}
	return &Sum{name: name, obs: obs, comps: comps, coefs: coefs, extended: extended}, nil
}

func (s *Sum) Name() string            { return s.name }
func (s *Sum) Servers() []Real         { return s.coefs }
func (s *Sum) Components() []Density   { return s.comps }
func (s *Sum) Coefficients() []Real    { return s.coefs }
func (s *Sum) Observable() *Observable { return s.obs }

// Extended reports whether the coefficients are yields.
func (s *Sum) Extended() bool { return s.extended }

// ExpectedEvents returns the total yield, or 0 for a fraction sum.
func (s *Sum) ExpectedEvents() float64 {
	if !s.extended {
		return 0
	}
	total := 0.0
	for _, c := range s.coefs {
		total += c.Value()
	}
	return total
}

// Weights returns the normalized weight of each component.
func (s *Sum) Weights() []float64 {
	w := make([]float64, len(s.comps))
	if s.extended {
		total := s.ExpectedEvents()
		for i, c := range s.coefs {
			w[i] = c.Value() / total
		}
		return w
	}
	rest := 1.0
	for i, c := range s.coefs {
		w[i] = c.Value()
		rest -= w[i]
	}
	w[len(w)-1] = rest
	return w
}

// Func returns the normalized mixture at the current parameter values.
func (s *Sum) Func() func(float64) float64 {
	return Compile(Flatten(s, s.obs.Min, s.obs.Max))
}

// Integral returns the integral of the normalized mixture over [lo, hi].
func (s *Sum) Integral(lo, hi float64) float64 {
	return TermsIntegral(Flatten(s, s.obs.Min, s.obs.Max), lo, hi)
}

// Term is one primitive shape of a flattened density tree.
type Term struct {
	Density Density
	// Weight is the product of normalized coefficients from the root down.
	Weight float64
	// Norm is the integral of Density over the normalization range.
	Norm float64
	// Path names the enclosing densities from the root down to Density.
	Path []string
}

// Flatten resolves d into weighted primitive terms normalized over [lo, hi].
func Flatten(d Density, lo, hi float64) []Term {
	s, ok := d.(*Sum)
	if !ok {
		return []Term{{Density: d, Weight: 1, Norm: d.Integral(lo, hi), Path: []string{d.Name()}}}
	}
	var out []Term
	weights := s.Weights()
	for i, comp := range s.comps {
		for _, t := range Flatten(comp, lo, hi) {
			t.Weight *= weights[i]
			t.Path = append([]string{s.name}, t.Path...)
			out = append(out, t)
		}
	}
	return out
}

// Project keeps the terms that have any of names on their path.
func Project(terms []Term, names ...string) []Term {
	var out []Term
	for _, t := range terms {
		for _, name := range names {
			if slices.Contains(t.Path, name) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Compile returns the weighted, normalized sum of terms as a function of x.
func Compile(terms []Term) func(float64) float64 {
	fns := make([]func(float64) float64, 0, len(terms))
	coefs := make([]float64, 0, len(terms))
	for _, t := range terms {
		if t.Weight == 0 {
			continue
		}
		fns = append(fns, t.Density.Func())
		coefs = append(coefs, t.Weight/t.Norm)
	}
	return func(x float64) float64 {
		s := 0.0
		for i, f := range fns {
			s += coefs[i] * f(x)
		}
		return s
	}
}

// TermsIntegral integrates the weighted, normalized terms over [lo, hi].
func TermsIntegral(terms []Term, lo, hi float64) float64 {
	s := 0.0
	for _, t := range terms {
		if t.Weight == 0 {
			continue
		}
		s += t.Weight * t.Density.Integral(lo, hi) / t.Norm
	}
	return s
}

// CheckTerms verifies every contributing term has a finite, non-negative
// weight and a finite, positive normalization.
func CheckTerms(terms []Term) error {
	if len(terms) == 0 {
		return fmt.Errorf("%w: no terms", model.ErrNotNormal)
	}
	total := 0.0
	for _, t := range terms {
		if math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) || t.Weight < 0 {
			return fmt.Errorf("%w: %s has weight %g", model.ErrNotNormal, t.Density.Name(), t.Weight)
		}
		if t.Weight == 0 {
			continue
		}
		if math.IsNaN(t.Norm) || math.IsInf(t.Norm, 0) || t.Norm <= 0 {
			return fmt.Errorf("%w: %s has integral %g", model.ErrNotNormal, t.Density.Name(), t.Norm)
		}
		total += t.Weight
	}
	if total <= 0 {
		return fmt.Errorf("%w: total weight %g", model.ErrNotNormal, total)
	}
	return nil
}
