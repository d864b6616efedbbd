package fit

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/massfit/internal/model"
)

// Param is the outcome for one floated parameter.
type Param struct {
	Name    string
	Initial float64
	Value   float64
	Error   float64
	Min     float64
	Max     float64
	AtLimit bool
}

// Result describes a finished minimization. Warnings mark a result as suspect
// but never make it an error.
type Result struct {
	Params      []Param
	Covariance  *mat.SymDense
	Correlation *mat.SymDense
	MinNLL      float64
	// EDM is the estimated distance to the minimum, 0.5 gᵀCg.
	EDM         float64
	Status      string
	Converged   bool
	Iterations  int
	Evaluations int
	Elapsed     time.Duration
	Warnings    []model.ConvergenceWarning
}

// NFloat returns the number of floated parameters.
func (r *Result) NFloat() int { return len(r.Params) }

// Param looks up a parameter by name.
func (r *Result) Param(name string) (Param, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Corr returns the correlation between two parameters, or 0 when unknown.
func (r *Result) Corr(a, b string) float64 {
	if r.Correlation == nil {
		return 0
	}
	i, j := r.index(a), r.index(b)
	if i < 0 || j < 0 {
		return 0
	}
	return r.Correlation.At(i, j)
}

func (r *Result) index(name string) int {
	for i, p := range r.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// HasWarning reports whether any warning of kind was raised.
func (r *Result) HasWarning(kind model.WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
