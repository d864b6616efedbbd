// Package builder assembles mass models from explicit declarations, checking
// that every name is declared before it is referenced.
package builder

import (
	"fmt"
	"math"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

// Builder declares parameters and densities one at a time. The first failure
// is kept and every later call becomes a no-op; Build reports it.
type Builder struct {
	obs       *pdf.Observable
	vars      []*pdf.Var
	derived   []*pdf.Derived
	densities []pdf.Density
	names     map[string]any
	err       error
}

// New returns a builder for densities over obs.
func New(obs *pdf.Observable) *Builder {
	return &Builder{
		obs:   obs,
		names: map[string]any{obs.Name: obs},
	}
}

// Err returns the first declaration failure, if any.
func (b *Builder) Err() error {
	return b.err
}

// Param declares a floating primary parameter with closed bounds.
func (b *Builder) Param(name string, value, min, max float64) *Builder {
	if !b.claim(name) {
		return b
	}
	switch {
	case math.IsNaN(value) || math.IsNaN(min) || math.IsNaN(max):
		b.fail(name, fmt.Errorf("%w: NaN in value or bounds", model.ErrBounds))
		return b
	case min > max:
		b.fail(name, fmt.Errorf("%w: min %g > max %g", model.ErrBounds, min, max))
		return b
	case value < min || value > max:
		b.fail(name, fmt.Errorf("%w: initial value %g outside [%g, %g]", model.ErrBounds, value, min, max))
		return b
	}
	v := pdf.NewVar(name, value, min, max)
	if min == max {
		v.SetConstant(true)
	}
	b.addVar(v)
	return b
}

// Const declares a fixed primary parameter.
func (b *Builder) Const(name string, value float64) *Builder {
	if !b.claim(name) {
		return b
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		b.fail(name, fmt.Errorf("%w: constant %g", model.ErrBounds, value))
		return b
	}
	b.addVar(pdf.NewConst(name, value))
	return b
}

// Product declares a derived parameter equal to the product of factors.
func (b *Builder) Product(name string, factors ...string) *Builder {
	return b.derive(name, pdf.OpProduct, factors)
}

// SumOf declares a derived parameter equal to the sum of terms.
func (b *Builder) SumOf(name string, terms ...string) *Builder {
	return b.derive(name, pdf.OpSum, terms)
}

func (b *Builder) derive(name string, op pdf.Op, args []string) *Builder {
	if len(args) == 0 {
		b.fail(name, fmt.Errorf("%s needs at least one term", op))
		return b
	}
	reals, ok := b.reals(name, args)
	if !ok || !b.claim(name) {
		return b
	}
	var d *pdf.Derived
	if op == pdf.OpSum {
		d = pdf.NewAddition(name, reals...)
	} else {
		d = pdf.NewProduct(name, reals...)
	}
	b.derived = append(b.derived, d)
	b.names[name] = d
	return b
}

// Gaussian declares a symmetric peak.
func (b *Builder) Gaussian(name, mean, sigma string) *Builder {
	r, ok := b.reals(name, []string{mean, sigma})
	if !ok {
		return b
	}
	return b.addDensity(pdf.NewGaussian(name, r[0], r[1]))
}

// CrystalBall declares an asymmetric peak with a power-law tail.
func (b *Builder) CrystalBall(name, mean, sigma, alpha, n string) *Builder {
	r, ok := b.reals(name, []string{mean, sigma, alpha, n})
	if !ok {
		return b
	}
	return b.addDensity(pdf.NewCrystalBall(name, r[0], r[1], r[2], r[3]))
}

// Chebychev declares a Chebychev polynomial background.
func (b *Builder) Chebychev(name string, coefs ...string) *Builder {
	r, ok := b.reals(name, coefs)
	if !ok {
		return b
	}
	return b.addDensity(pdf.NewChebychev(name, b.obs, r...))
}

// Polynomial declares a power-series background.
func (b *Builder) Polynomial(name string, coefs ...string) *Builder {
	r, ok := b.reals(name, coefs)
	if !ok {
		return b
	}
	return b.addDensity(pdf.NewPolynomial(name, r...))
}

// Johnson declares a Johnson SU peak.
func (b *Builder) Johnson(name, mu, lambda, gamma, delta string) *Builder {
	r, ok := b.reals(name, []string{mu, lambda, gamma, delta})
	if !ok {
		return b
	}
	return b.addDensity(pdf.NewJohnson(name, r[0], r[1], r[2], r[3]))
}

// Add declares a composite density. Pass one coefficient fewer than
// components for fractions, or one per component for extended yields.
func (b *Builder) Add(name string, comps, coefs []string) *Builder {
	if b.err != nil {
		return b
	}
	densities := make([]pdf.Density, 0, len(comps))
	for _, c := range comps {
		d, ok := b.names[c].(pdf.Density)
		if !ok {
			b.fail(name, b.missing(c, "density"))
			return b
		}
		densities = append(densities, d)
	}
	reals, ok := b.reals(name, coefs)
	if !ok {
		return b
	}
	sum, err := pdf.NewSum(name, b.obs, densities, reals)
	if err != nil {
		b.fail(name, err)
		return b
	}
	return b.addDensity(sum)
}

// Build returns the model rooted at the named extended composite.
func (b *Builder) Build(root string) (*pdf.Model, error) {
	if b.err != nil {
		return nil, model.ConfigurationError("build model", b.err)
	}
	d, ok := b.names[root].(pdf.Density)
	if !ok {
		return nil, model.ConfigurationError("build model", b.missing(root, "root density"))
	}
	sum, ok := d.(*pdf.Sum)
	if !ok || !sum.Extended() {
		return nil, model.ConfigurationError("build model", fmt.Errorf("root density %s must be an extended sum of yields", root))
	}
	if err := pdf.CheckTerms(pdf.Flatten(sum, b.obs.Min, b.obs.Max)); err != nil {
		return nil, model.ConfigurationError("build model", fmt.Errorf("root density %s: %w", root, err))
	}
	m, err := pdf.NewModel(b.obs, sum, b.vars, b.derived, b.densities)
	if err != nil {
		return nil, model.ConfigurationError("build model", err)
	}
	return m, nil
}

func (b *Builder) claim(name string) bool {
	if b.err != nil {
		return false
	}
	if name == "" {
		b.err = fmt.Errorf("declaration without a name")
		return false
	}
	if _, exists := b.names[name]; exists {
		b.fail(name, fmt.Errorf("%w: %s", model.ErrDuplicate, name))
		return false
	}
	return true
}

func (b *Builder) reals(owner string, names []string) ([]pdf.Real, bool) {
	if b.err != nil {
		return nil, false
	}
	out := make([]pdf.Real, 0, len(names))
	for _, n := range names {
		r, ok := b.names[n].(pdf.Real)
		if !ok {
			b.fail(owner, b.missing(n, "parameter"))
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}

func (b *Builder) missing(name, what string) error {
	if name == b.obs.Name {
		return fmt.Errorf("%s is the observable, not a %s", name, what)
	}
	if _, declared := b.names[name]; declared {
		return fmt.Errorf("%s is not a %s", name, what)
	}
	return fmt.Errorf("%w: %s %s", model.ErrUndeclared, what, name)
}

func (b *Builder) addVar(v *pdf.Var) {
	b.vars = append(b.vars, v)
	b.names[v.Name()] = v
}

func (b *Builder) addDensity(d pdf.Density) *Builder {
	if !b.claim(d.Name()) {
		return b
	}
	b.densities = append(b.densities, d)
	b.names[d.Name()] = d
	return b
}

func (b *Builder) fail(name string, err error) {
	if b.err == nil {
		b.err = fmt.Errorf("declare %s: %w", name, err)
	}
}
