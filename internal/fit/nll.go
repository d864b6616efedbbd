package fit

import (
	"math"

	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/pdf"
)

// invalidNLL is returned wherever the model cannot be normalized or evaluates
// to a non-positive density at some event.
const invalidNLL = 1e30

// likelihood evaluates the negative log-likelihood of a dataset as a function
// of the model's free parameters.
type likelihood struct {
	model    *pdf.Model
	vars     []*pdf.Var
	data     *dataset.Dataset
	extended bool

	// binned mode
	edges  []float64
	counts []float64

	// offset is subtracted from every valid evaluation.
	offset float64

	evals   int
	invalid int
}

func newLikelihood(m *pdf.Model, d *dataset.Dataset, vars []*pdf.Var, extended bool, bins int) *likelihood {
	l := &likelihood{model: m, vars: vars, data: d, extended: extended}
	if bins > 0 {
		h := d.Histogram(bins)
		l.edges = make([]float64, 0, bins+1)
		l.counts = make([]float64, 0, bins)
		for i, b := range h.Binning.Bins {
			if i == 0 {
				l.edges = append(l.edges, b.XMin())
			}
			l.edges = append(l.edges, b.XMax())
			l.counts = append(l.counts, b.SumW())
		}
	}
	return l
}

// set writes external values into the model parameters.
func (l *likelihood) set(x []float64) {
	for i, v := range l.vars {
		v.SetValue(x[i])
	}
}

// value returns the NLL at external parameter values x.
func (l *likelihood) value(x []float64) float64 {
	l.evals++
	l.set(x)
	terms := l.model.Terms()
	if pdf.CheckTerms(terms) != nil {
		l.invalid++
		return invalidNLL
	}
	var nll float64
	var ok bool
	if l.counts != nil {
		nll, ok = l.binned(terms)
	} else {
		nll, ok = l.unbinned(terms)
	}
	if !ok || math.IsNaN(nll) || math.IsInf(nll, 0) {
		l.invalid++
		return invalidNLL
	}
	return nll - l.offset
}

// setOffset makes the NLL at external values x the zero point of later
// evaluations. An invalid start leaves the offset at zero.
func (l *likelihood) setOffset(x []float64) {
	l.offset = 0
	if v := l.value(x); v < invalidNLL {
		l.offset = v
	}
}

// kahan is a compensated (Neumaier) summation accumulator.
type kahan struct {
	sum, c float64
}

func (k *kahan) add(v float64) {
	t := k.sum + v
	if math.Abs(k.sum) >= math.Abs(v) {
		k.c += (k.sum - t) + v
	} else {
		k.c += (v - t) + k.sum
	}
	k.sum = t
}

func (k *kahan) total() float64 { return k.sum + k.c }

func (l *likelihood) unbinned(terms []pdf.Term) (float64, bool) {
	f := pdf.Compile(terms)
	n := l.data.Len()
	var sum kahan
	for i := 0; i < n; i++ {
		p := f(l.data.At(i))
		if !(p > 0) {
			return 0, false
		}
		sum.add(-math.Log(p))
	}
	if l.extended {
		nu := l.model.ExpectedEvents()
		if !(nu > 0) {
			return 0, false
		}
		sum.add(nu)
		sum.add(-float64(n) * math.Log(nu))
	}
	return sum.total(), true
}

func (l *likelihood) binned(terms []pdf.Term) (float64, bool) {
	total := float64(l.data.Len())
	if l.extended {
		total = l.model.ExpectedEvents()
		if !(total > 0) {
			return 0, false
		}
	}
	var sum kahan
	for i, n := range l.counts {
		mu := total * pdf.TermsIntegral(terms, l.edges[i], l.edges[i+1])
		if n > 0 {
			if !(mu > 0) {
				return 0, false
			}
			sum.add(-n * math.Log(mu))
		}
		if l.extended {
			sum.add(mu)
		}
	}
	return sum.total(), true
}
