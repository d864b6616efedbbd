// Package generator draws toy datasets from a mass model.
package generator

import (
	"fmt"
	"io"
	"math"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

const (
	envelopeScan   = 2000
	envelopeMargin = 1.2
	// Below this acceptance a Gaussian is sampled by accept/reject instead of
	// redrawing from the untruncated normal.
	minTruncatedAcceptance = 0.05
	progressChunk          = 1 << 16
)

// Generator produces toy events. It is not safe for concurrent use.
type Generator struct {
	src rand.Source
	rnd *rand.Rand
	// Progress, if set, receives a progress bar while events are drawn.
	Progress io.Writer
}

// New returns a Generator with a deterministic seed.
func New(seed uint64) *Generator {
	src := rand.NewSource(seed)
	return &Generator{src: src, rnd: rand.New(src)}
}

// Generate draws exactly n events from the model's normalized density at its
// current parameter values. The model is not modified.
func (g *Generator) Generate(m *pdf.Model, n int) (*dataset.Dataset, error) {
	if n <= 0 {
		return nil, model.GenerationError("generate", fmt.Errorf("event count must be > 0, got %d", n))
	}
	terms := m.Terms()
	if err := pdf.CheckTerms(terms); err != nil {
		return nil, model.GenerationError("generate", err)
	}
	obs := m.Observable

	weights := make([]float64, len(terms))
	samplers := make([]sampler, len(terms))
	for i, t := range terms {
		weights[i] = t.Weight
		if t.Weight == 0 {
			continue
		}
		s, err := g.newSampler(t, obs.Min, obs.Max)
		if err != nil {
			return nil, model.GenerationError("generate", err)
		}
		samplers[i] = s
	}
	pick := distuv.NewCategorical(weights, g.src)

	var bar *pb.ProgressBar
	if g.Progress != nil {
		bar = pb.New(n).SetWriter(g.Progress).Start()
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = samplers[int(pick.Rand())].sample()
		if bar != nil && (i+1)%progressChunk == 0 {
			bar.Add(progressChunk)
		}
	}
	if bar != nil {
		bar.SetCurrent(int64(n))
		bar.Finish()
	}
	return dataset.New(obs, values)
}

// GenerateExtended draws a Poisson-distributed number of events with mean
// equal to the model's expected event count.
func (g *Generator) GenerateExtended(m *pdf.Model) (*dataset.Dataset, error) {
	mu := m.ExpectedEvents()
	if !(mu > 0) || math.IsInf(mu, 0) {
		return nil, model.GenerationError("generate extended", fmt.Errorf("expected events must be finite and > 0, got %g", mu))
	}
	n := int(distuv.Poisson{Lambda: mu, Src: g.src}.Rand())
	if n == 0 {
		return nil, model.GenerationError("generate extended", fmt.Errorf("poisson draw with mean %g gave no events", mu))
	}
	return g.Generate(m, n)
}

type sampler interface {
	sample() float64
}

func (g *Generator) newSampler(t pdf.Term, lo, hi float64) (sampler, error) {
	if gauss, ok := t.Density.(*pdf.Gaussian); ok {
		mu, sigma := gauss.Mean().Value(), math.Abs(gauss.Sigma().Value())
		if sigma > 0 && t.Norm/(sigma*math.Sqrt(2*math.Pi)) >= minTruncatedAcceptance {
			return &truncatedNormal{
				dist: distuv.Normal{Mu: mu, Sigma: sigma, Src: g.src},
				lo:   lo,
				hi:   hi,
			}, nil
		}
	}
	f := t.Density.Func()
	fmax := envelope(f, t.Density, lo, hi)
	if !(fmax > 0) || math.IsInf(fmax, 0) {
		return nil, fmt.Errorf("%s: %w: envelope %g", t.Density.Name(), model.ErrNotNormal, fmax)
	}
	return &acceptReject{
		f:    f,
		x:    distuv.Uniform{Min: lo, Max: hi, Src: g.src},
		rnd:  g.rnd,
		fmax: fmax * envelopeMargin,
	}, nil
}

// envelope scans f over [lo, hi] for its maximum.
func envelope(f func(float64) float64, d pdf.Density, lo, hi float64) float64 {
	fmax := math.Max(f(lo), f(hi))
	step := (hi - lo) / envelopeScan
	for i := 1; i < envelopeScan; i++ {
		fmax = math.Max(fmax, f(lo+float64(i)*step))
	}
	if p, ok := d.(pdf.Peaker); ok {
		if x := p.Peak(); x >= lo && x <= hi {
			fmax = math.Max(fmax, f(x))
		}
	}
	return fmax
}

type truncatedNormal struct {
	dist   distuv.Normal
	lo, hi float64
}

func (s *truncatedNormal) sample() float64 {
	for {
		x := s.dist.Rand()
		if x >= s.lo && x <= s.hi {
			return x
		}
	}
}

type acceptReject struct {
	f    func(float64) float64
	x    distuv.Uniform
	rnd  *rand.Rand
	fmax float64
}

func (s *acceptReject) sample() float64 {
	for {
		x := s.x.Rand()
		fx := s.f(x)
		if fx > s.fmax {
			// The scan missed a narrow maximum; raise the envelope and
			// keep going.
			s.fmax = fx * envelopeMargin
		}
		if s.rnd.Float64()*s.fmax <= fx {
			return x
		}
	}
}
