package pdf

import "math"

// Real is a named real value a density depends on.
type Real interface {
	Name() string
	Value() float64
}

// Var is a primary parameter. Non-constant vars are the only values a fit adjusts.
type Var struct {
	name     string
	value    float64
	initial  float64
	min      float64
	max      float64
	err      float64
	constant bool
}

// NewVar returns a floating parameter with initial value and closed bounds.
// Either bound may be infinite.
func NewVar(name string, value, min, max float64) *Var {
	return &Var{name: name, value: value, initial: value, min: min, max: max}
}

// NewConst returns a parameter fixed at value.
func NewConst(name string, value float64) *Var {
	return &Var{name: name, value: value, initial: value, min: value, max: value, constant: true}
}

// Name returns the parameter name.
func (v *Var) Name() string { return v.name }

// Value returns the current value.
func (v *Var) Value() float64 { return v.value }

// SetValue changes the current value.
func (v *Var) SetValue(x float64) { v.value = x }

// Initial returns the declared initial value.
func (v *Var) Initial() float64 { return v.initial }

// Bounds returns the declared interval.
func (v *Var) Bounds() (float64, float64) { return v.min, v.max }

// Error returns the uncertainty set by the last fit.
func (v *Var) Error() float64 { return v.err }

// SetError records the uncertainty of the current value.
func (v *Var) SetError(e float64) { v.err = e }

// Constant reports whether the parameter is fixed.
func (v *Var) Constant() bool { return v.constant }

// SetConstant fixes or releases the parameter.
func (v *Var) SetConstant(c bool) { v.constant = c }

// Float reports whether a fit adjusts the parameter.
func (v *Var) Float() bool { return !v.constant }

// Reset restores the declared initial value and clears the error.
func (v *Var) Reset() {
	v.value = v.initial
	v.err = 0
}

// InRange reports whether x lies within the bounds.
func (v *Var) InRange(x float64) bool {
	return x >= v.min && x <= v.max
}

// HasMin reports whether the parameter has a finite lower bound.
func (v *Var) HasMin() bool { return !math.IsInf(v.min, -1) }

// HasMax reports whether the parameter has a finite upper bound.
func (v *Var) HasMax() bool { return !math.IsInf(v.max, 1) }

// Op is the operation a derived parameter applies to its terms.
type Op int

const (
	OpProduct Op = iota
	OpSum
)

func (o Op) String() string {
	switch o {
	case OpProduct:
		return "prod"
	case OpSum:
		return "sum"
	default:
		return "unknown"
	}
}

// Derived is a deterministic function of already-declared values.
type Derived struct {
	name  string
	op    Op
	terms []Real
}

// NewProduct returns a derived value equal to the product of terms.
func NewProduct(name string, terms ...Real) *Derived {
	return &Derived{name: name, op: OpProduct, terms: terms}
}

// NewAddition returns a derived value equal to the sum of terms.
func NewAddition(name string, terms ...Real) *Derived {
	return &Derived{name: name, op: OpSum, terms: terms}
}

// Name returns the derived value name.
func (d *Derived) Name() string { return d.name }

// Op returns the combining operation.
func (d *Derived) Op() Op { return d.op }

// Servers returns the values d is computed from.
func (d *Derived) Servers() []Real { return d.terms }

// Value evaluates the expression at the current parameter values.
func (d *Derived) Value() float64 {
	switch d.op {
	case OpSum:
		s := 0.0
		for _, t := range d.terms {
			s += t.Value()
		}
		return s
	default:
		p := 1.0
		for _, t := range d.terms {
			p *= t.Value()
		}
		return p
	}
}
