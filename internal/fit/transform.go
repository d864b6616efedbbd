package fit

import "math"

// bound maps one bounded parameter to an unbounded internal coordinate so the
// minimizer never leaves the allowed range.
type bound struct {
	min, max float64
	lower    bool
	upper    bool
}

func newBound(min, max float64) bound {
	return bound{min: min, max: max, lower: !math.IsInf(min, -1), upper: !math.IsInf(max, 1)}
}

// toExternal maps an internal coordinate to the parameter value.
func (b bound) toExternal(p float64) float64 {
	switch {
	case b.lower && b.upper:
		return b.min + 0.5*(b.max-b.min)*(math.Sin(p)+1)
	case b.lower:
		return b.min - 1 + math.Sqrt(p*p+1)
	case b.upper:
		return b.max + 1 - math.Sqrt(p*p+1)
	}
	return p
}

// toInternal is the inverse of toExternal. Values outside the range are
// clamped to the nearest bound.
func (b bound) toInternal(x float64) float64 {
	switch {
	case b.lower && b.upper:
		s := 2*(x-b.min)/(b.max-b.min) - 1
		return math.Asin(math.Max(-1, math.Min(1, s)))
	case b.lower:
		d := math.Max(x-b.min, 0) + 1
		return math.Sqrt(d*d - 1)
	case b.upper:
		d := math.Max(b.max-x, 0) + 1
		return math.Sqrt(d*d - 1)
	}
	return x
}

// derivative returns d(external)/d(internal) at p.
func (b bound) derivative(p float64) float64 {
	switch {
	case b.lower && b.upper:
		return 0.5 * (b.max - b.min) * math.Cos(p)
	case b.lower:
		return p / math.Sqrt(p*p+1)
	case b.upper:
		return -p / math.Sqrt(p*p+1)
	}
	return 1
}

// atLimit reports whether x sits on one of its bounds.
func (b bound) atLimit(x float64) bool {
	tol := 1e-6
	if b.lower && b.upper {
		tol = 1e-4 * (b.max - b.min)
	}
	return (b.lower && x-b.min <= tol) || (b.upper && b.max-x <= tol)
}
