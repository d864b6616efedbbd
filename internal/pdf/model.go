package pdf

import "fmt"

// Model is the top-level extended density together with everything it owns.
// Only parameter values change after construction.
type Model struct {
	Observable *Observable
	Root       *Sum

	vars      []*Var
	derived   []*Derived
	densities []Density
	byName    map[string]any
}

// NewModel assembles a model. Slices are kept in declaration order.
func NewModel(obs *Observable, root *Sum, vars []*Var, derived []*Derived, densities []Density) (*Model, error) {
	if root == nil {
		return nil, fmt.Errorf("model has no root density")
	}
	if !root.Extended() {
		return nil, fmt.Errorf("root density %s is not extended", root.Name())
	}
	m := &Model{
		Observable: obs,
		Root:       root,
		vars:       vars,
		derived:    derived,
		densities:  densities,
		byName:     make(map[string]any, len(vars)+len(derived)+len(densities)),
	}
	for _, v := range vars {
		m.byName[v.Name()] = v
	}
	for _, d := range derived {
		m.byName[d.Name()] = d
	}
	for _, d := range densities {
		m.byName[d.Name()] = d
	}
	return m, nil
}

// Vars returns the primary parameters in declaration order.
func (m *Model) Vars() []*Var { return m.vars }

// Derived returns the derived parameters in declaration order.
func (m *Model) Derived() []*Derived { return m.derived }

// Densities returns every density in declaration order.
func (m *Model) Densities() []Density { return m.densities }

// FreeParams returns the primary parameters a fit adjusts.
func (m *Model) FreeParams() []*Var {
	var out []*Var
	for _, v := range m.vars {
		if v.Float() {
			out = append(out, v)
		}
	}
	return out
}

// Var looks up a primary parameter.
func (m *Model) Var(name string) (*Var, bool) {
	v, ok := m.byName[name].(*Var)
	return v, ok
}

// Real looks up a primary or derived parameter.
func (m *Model) Real(name string) (Real, bool) {
	r, ok := m.byName[name].(Real)
	return r, ok
}

// Density looks up a density.
func (m *Model) Density(name string) (Density, bool) {
	d, ok := m.byName[name].(Density)
	return d, ok
}

// Terms flattens the root density over the observable range.
func (m *Model) Terms() []Term {
	return Flatten(m.Root, m.Observable.Min, m.Observable.Max)
}

// Normalized returns the root density normalized over the observable range.
func (m *Model) Normalized() func(float64) float64 {
	return Compile(m.Terms())
}

// ExpectedEvents returns the total yield of the root density.
func (m *Model) ExpectedEvents() float64 {
	return m.Root.ExpectedEvents()
}

// Reset restores every primary parameter to its declared initial value.
func (m *Model) Reset() {
	for _, v := range m.vars {
		v.Reset()
	}
}

// Values returns the current value of every primary and derived parameter.
func (m *Model) Values() map[string]float64 {
	out := make(map[string]float64, len(m.vars)+len(m.derived))
	for _, v := range m.vars {
		out[v.Name()] = v.Value()
	}
	for _, d := range m.derived {
		out[d.Name()] = d.Value()
	}
	return out
}
