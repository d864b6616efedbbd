// Package fit performs maximum-likelihood fits of mass models to datasets.
package fit

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

// Options control a fit.
type Options struct {
	// Extended adds the Poisson term for the total yield.
	Extended bool
	// Binned fits a histogram with this many bins; 0 fits every event.
	Binned int
	// MaxIterations caps the minimizer's major iterations.
	MaxIterations int
	// Tolerance is the NLL change under which the minimum is accepted.
	Tolerance float64
	// Hesse computes the covariance from the numerical Hessian.
	Hesse bool
}

// edmTolerance is the estimated distance to the minimum under which a fit
// with a valid covariance is accepted as converged.
const edmTolerance = 1e-3

// gradientStep returns the central-difference step for an NLL summed over n
// events. The roundoff of the sum grows with n, so the step does too.
func gradientStep(n int) float64 {
	step := fd.Central.Step * math.Max(1, math.Sqrt(float64(n)/1e4))
	return math.Min(step, 1e-3)
}

// DefaultOptions returns an extended, unbinned fit with HESSE errors.
func DefaultOptions() Options {
	return Options{
		Extended:      true,
		MaxIterations: 1000,
		Tolerance:     1e-4,
		Hesse:         true,
	}
}

// Fit minimizes the negative log-likelihood of d under m over the model's
// free parameters, starting from their declared initial values. The best
// values and their errors are written back into the parameters.
func Fit(m *pdf.Model, d *dataset.Dataset, opts Options) (*Result, error) {
	if d == nil || d.Len() == 0 {
		return nil, model.ConfigurationError("fit", fmt.Errorf("dataset is empty"))
	}
	if obs := d.Observable(); obs.Name != m.Observable.Name || obs.Min != m.Observable.Min || obs.Max != m.Observable.Max {
		return nil, model.ConfigurationError("fit", fmt.Errorf("dataset observable %s does not match model observable %s", obs.Name, m.Observable.Name))
	}
	vars := m.FreeParams()
	if len(vars) == 0 {
		return nil, model.ConfigurationError("fit", fmt.Errorf("model has no free parameters"))
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions().Tolerance
	}

	start := time.Now()
	nll := newLikelihood(m, d, vars, opts.Extended, opts.Binned)
	bounds := make([]bound, len(vars))
	x0 := make([]float64, len(vars))
	for i, v := range vars {
		bounds[i] = newBound(v.Bounds())
		x0[i] = bounds[i].toInternal(v.Initial())
	}
	ext := make([]float64, len(vars))
	external := func(p []float64) []float64 {
		for i, b := range bounds {
			ext[i] = b.toExternal(p[i])
		}
		return ext
	}
	objective := func(p []float64) float64 {
		return nll.value(external(p))
	}
	nll.setOffset(external(x0))

	gradSettings := &fd.Settings{Formula: fd.Central, Step: gradientStep(d.Len())}
	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, p []float64) {
			fd.Gradient(grad, objective, p, gradSettings)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Iterations: 10,
		},
	}
	res, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if res == nil {
		nll.set(external(x0))
		return nil, fmt.Errorf("minimize: %w", err)
	}

	r := &Result{
		MinNLL:      res.F + nll.offset,
		Status:      res.Status.String(),
		Iterations:  res.MajorIterations,
		Evaluations: nll.evals,
	}
	statusOK := err == nil && !res.Status.Early()
	if res.F >= invalidNLL {
		r.MinNLL = res.F
		r.Warnings = append(r.Warnings, model.ConvergenceWarning{Kind: model.WarnInvalidRegion, Message: "no valid point found"})
	}

	best := append([]float64(nil), external(res.X)...)
	var cov *mat.SymDense
	covOK := false
	if opts.Hesse && res.F < invalidNLL {
		cov, covOK = hesse(objective, res.X, bounds, gradSettings.Step, r)
	}
	nll.set(best)

	switch {
	case res.F >= invalidNLL:
		r.Converged = false
	case covOK:
		r.Converged = r.EDM < edmTolerance
	default:
		r.Converged = statusOK
	}
	if !r.Converged && res.F < invalidNLL {
		msg := fmt.Sprintf("minimizer stopped with status %s", res.Status)
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		if covOK {
			msg = fmt.Sprintf("%s; EDM %.3g above %g", msg, r.EDM, edmTolerance)
		}
		r.Warnings = append(r.Warnings, model.ConvergenceWarning{Kind: model.WarnNotConverged, Message: msg})
	}

	r.Params = make([]Param, len(vars))
	for i, v := range vars {
		lo, hi := v.Bounds()
		p := Param{
			Name:    v.Name(),
			Initial: v.Initial(),
			Value:   best[i],
			Min:     lo,
			Max:     hi,
			AtLimit: bounds[i].atLimit(best[i]),
		}
		if cov != nil {
			p.Error = math.Sqrt(math.Max(cov.At(i, i), 0))
		}
		v.SetError(p.Error)
		if p.AtLimit {
			r.Warnings = append(r.Warnings, model.ConvergenceWarning{
				Kind:    model.WarnAtLimit,
				Param:   v.Name(),
				Message: fmt.Sprintf("value %g is at its limit [%g, %g]", best[i], lo, hi),
			})
		}
		r.Params[i] = p
	}
	if cov != nil {
		r.Covariance = cov
		r.Correlation = correlation(cov)
	}
	if nll.invalid > 0 && res.F < invalidNLL {
		r.Warnings = append(r.Warnings, model.ConvergenceWarning{
			Kind:    model.WarnInvalidRegion,
			Message: fmt.Sprintf("%d evaluations hit an invalid region", nll.invalid),
		})
	}
	r.Evaluations = nll.evals
	r.Elapsed = time.Since(start)
	return r, nil
}

// hesse returns the external covariance from the numerical Hessian at the
// internal minimum p and whether the Hessian was positive definite. It
// records the estimated distance to the minimum and any covariance warning
// on r.
func hesse(objective func([]float64) float64, p []float64, bounds []bound, gradStep float64, r *Result) (*mat.SymDense, bool) {
	n := len(p)
	var h mat.SymDense
	fd.Hessian(&h, objective, p, &fd.Settings{Formula: fd.Central})

	covInt := mat.NewSymDense(n, nil)
	var chol mat.Cholesky
	ok := chol.Factorize(&h) && chol.InverseTo(covInt) == nil
	if !ok {
		r.Warnings = append(r.Warnings, model.ConvergenceWarning{
			Kind:    model.WarnCovariance,
			Message: "Hessian is not positive definite; errors use the diagonal only",
		})
		for i := 0; i < n; i++ {
			if d := h.At(i, i); d > 0 {
				covInt.SetSym(i, i, 1/d)
			}
		}
	}

	grad := fd.Gradient(nil, objective, p, &fd.Settings{Formula: fd.Central, Step: gradStep})
	g := mat.NewVecDense(n, grad)
	r.EDM = 0.5 * mat.Inner(g, covInt, g)

	jac := make([]float64, n)
	for i, b := range bounds {
		jac[i] = b.derivative(p[i])
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, jac[i]*covInt.At(i, j)*jac[j])
		}
	}
	return cov, ok
}

func correlation(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			den := math.Sqrt(cov.At(i, i) * cov.At(j, j))
			if den > 0 {
				out.SetSym(i, j, cov.At(i, j)/den)
			}
		}
	}
	return out
}
