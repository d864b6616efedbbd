package pdf

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	sqrt2       = math.Sqrt2
	sqrtPiOver2 = 1.2533141373155003
	sqrt2Pi     = 2.5066282746310002
)

// Density is a probability density over the observable, possibly unnormalized.
type Density interface {
	Name() string
	// Servers returns the parameters the density depends on directly.
	Servers() []Real
	// Func returns the unnormalized shape frozen at the current parameter values.
	Func() func(x float64) float64
	// Integral returns the unnormalized integral over [lo, hi] at the current
	// parameter values.
	Integral(lo, hi float64) float64
}

// Peaker is implemented by shapes whose maximum is found near a known location.
type Peaker interface {
	Peak() float64
}

// Gaussian is a symmetric peak.
type Gaussian struct {
	name  string
	mean  Real
	sigma Real
}

// NewGaussian returns a Gaussian shape with location mean and width sigma.
func NewGaussian(name string, mean, sigma Real) *Gaussian {
	return &Gaussian{name: name, mean: mean, sigma: sigma}
}

func (g *Gaussian) Name() string    { return g.name }
func (g *Gaussian) Servers() []Real { return []Real{g.mean, g.sigma} }
func (g *Gaussian) Mean() Real      { return g.mean }
func (g *Gaussian) Sigma() Real     { return g.sigma }
func (g *Gaussian) Peak() float64   { return g.mean.Value() }

func (g *Gaussian) Func() func(float64) float64 {
	mu, sigma := g.mean.Value(), g.sigma.Value()
	return func(x float64) float64 {
		t := (x - mu) / sigma
		return math.Exp(-0.5 * t * t)
	}
}

func (g *Gaussian) Integral(lo, hi float64) float64 {
	mu, sigma := g.mean.Value(), math.Abs(g.sigma.Value())
	return sigma * sqrtPiOver2 * (math.Erf((hi-mu)/(sigma*sqrt2)) - math.Erf((lo-mu)/(sigma*sqrt2)))
}

// CrystalBall is an asymmetric peak: a Gaussian core joined to a power-law
// tail at |alpha| widths below the mean. A negative alpha puts the tail above.
type CrystalBall struct {
	name  string
	mean  Real
	sigma Real
	alpha Real
	n     Real
}

// NewCrystalBall returns a Crystal Ball shape.
func NewCrystalBall(name string, mean, sigma, alpha, n Real) *CrystalBall {
	return &CrystalBall{name: name, mean: mean, sigma: sigma, alpha: alpha, n: n}
}

func (c *CrystalBall) Name() string    { return c.name }
func (c *CrystalBall) Servers() []Real { return []Real{c.mean, c.sigma, c.alpha, c.n} }
func (c *CrystalBall) Peak() float64   { return c.mean.Value() }

func (c *CrystalBall) Func() func(float64) float64 {
	m0, sigma, alpha, n := c.mean.Value(), c.sigma.Value(), c.alpha.Value(), c.n.Value()
	absAlpha := math.Abs(alpha)
	a := math.Pow(n/absAlpha, n) * math.Exp(-0.5*absAlpha*absAlpha)
	b := n/absAlpha - absAlpha
	return func(x float64) float64 {
		t := (x - m0) / sigma
		if alpha < 0 {
			t = -t
		}
		if t >= -absAlpha {
			return math.Exp(-0.5 * t * t)
		}
		return a / math.Pow(b-t, n)
	}
}

func (c *CrystalBall) Integral(lo, hi float64) float64 {
	m0, sigma, alpha, n := c.mean.Value(), math.Abs(c.sigma.Value()), c.alpha.Value(), c.n.Value()
	tmin := (lo - m0) / sigma
	tmax := (hi - m0) / sigma
	if alpha < 0 {
		tmin, tmax = -tmax, -tmin
	}
	absAlpha := math.Abs(alpha)
	useLog := math.Abs(n-1) < 1e-5

	gauss := func(t0, t1 float64) float64 {
		return sigma * sqrtPiOver2 * (math.Erf(t1/sqrt2) - math.Erf(t0/sqrt2))
	}
	if tmin >= -absAlpha {
		return gauss(tmin, tmax)
	}

	a := math.Pow(n/absAlpha, n) * math.Exp(-0.5*absAlpha*absAlpha)
	b := n/absAlpha - absAlpha
	tail := func(t0, t1 float64) float64 {
		if useLog {
			return a * sigma * (math.Log(b-t0) - math.Log(b-t1))
		}
		return a * sigma / (1 - n) * (math.Pow(b-t0, 1-n) - math.Pow(b-t1, 1-n))
	}
	if tmax <= -absAlpha {
		return tail(tmin, tmax)
	}
	return tail(tmin, -absAlpha) + gauss(-absAlpha, tmax)
}

// Chebychev is a low-order polynomial background in the Chebychev basis,
// 1 + sum c_i T_i(x') with x' the observable range mapped onto [-1, 1].
type Chebychev struct {
	name  string
	obs   *Observable
	coefs []Real
}

// NewChebychev returns a Chebychev series with coefficients for T_1 upwards.
func NewChebychev(name string, obs *Observable, coefs ...Real) *Chebychev {
	return &Chebychev{name: name, obs: obs, coefs: coefs}
}

func (c *Chebychev) Name() string    { return c.name }
func (c *Chebychev) Servers() []Real { return c.coefs }

func (c *Chebychev) values() []float64 {
	out := make([]float64, len(c.coefs)+1)
	out[0] = 1
	for i, r := range c.coefs {
		out[i+1] = r.Value()
	}
	return out
}

func (c *Chebychev) scale(x float64) float64 {
	return (2*x - (c.obs.Max + c.obs.Min)) / (c.obs.Max - c.obs.Min)
}

func (c *Chebychev) Func() func(float64) float64 {
	coefs := c.values()
	return func(x float64) float64 {
		return chebSeries(coefs, c.scale(x))
	}
}

func (c *Chebychev) Integral(lo, hi float64) float64 {
	coefs := c.values()
	half := 0.5 * (c.obs.Max - c.obs.Min)
	return half * (chebPrimitive(coefs, c.scale(hi)) - chebPrimitive(coefs, c.scale(lo)))
}

// chebyshevT returns T_0(x)..T_n(x).
func chebyshevT(n int, x float64) []float64 {
	t := make([]float64, n+1)
	t[0] = 1
	if n >= 1 {
		t[1] = x
	}
	for k := 2; k <= n; k++ {
		t[k] = 2*x*t[k-1] - t[k-2]
	}
	return t
}

func chebSeries(coefs []float64, x float64) float64 {
	t := chebyshevT(len(coefs)-1, x)
	s := 0.0
	for k, c := range coefs {
		s += c * t[k]
	}
	return s
}

// chebPrimitive evaluates an antiderivative of the series at x.
func chebPrimitive(coefs []float64, x float64) float64 {
	t := chebyshevT(len(coefs), x)
	s := 0.0
	for k, c := range coefs {
		switch k {
		case 0:
			s += c * x
		case 1:
			s += c * 0.5 * x * x
		default:
			s += c * (t[k+1]/(2*float64(k+1)) - t[k-1]/(2*float64(k-1)))
		}
	}
	return s
}

// Polynomial is 1 + sum c_i x^i.
type Polynomial struct {
	name  string
	coefs []Real
}

// NewPolynomial returns a polynomial with coefficients for x^1 upwards.
func NewPolynomial(name string, coefs ...Real) *Polynomial {
	return &Polynomial{name: name, coefs: coefs}
}

func (p *Polynomial) Name() string    { return p.name }
func (p *Polynomial) Servers() []Real { return p.coefs }

func (p *Polynomial) Func() func(float64) float64 {
	coefs := make([]float64, len(p.coefs))
	for i, r := range p.coefs {
		coefs[i] = r.Value()
	}
	return func(x float64) float64 {
		s := 0.0
		for i := len(coefs) - 1; i >= 0; i-- {
			s = (s + coefs[i]) * x
		}
		return 1 + s
	}
}

func (p *Polynomial) Integral(lo, hi float64) float64 {
	prim := func(x float64) float64 {
		s := x
		for i, r := range p.coefs {
			k := float64(i + 2)
			s += r.Value() * math.Pow(x, k) / k
		}
		return s
	}
	return prim(hi) - prim(lo)
}

// Johnson is the Johnson SU distribution: a normal variate mapped through
// gamma + delta*asinh((x-mu)/lambda).
type Johnson struct {
	name   string
	mu     Real
	lambda Real
	gamma  Real
	delta  Real
}

// NewJohnson returns a Johnson SU shape.
func NewJohnson(name string, mu, lambda, gamma, delta Real) *Johnson {
	return &Johnson{name: name, mu: mu, lambda: lambda, gamma: gamma, delta: delta}
}

func (j *Johnson) Name() string    { return j.name }
func (j *Johnson) Servers() []Real { return []Real{j.mu, j.lambda, j.gamma, j.delta} }

// Peak returns the median, a close stand-in for the mode.
func (j *Johnson) Peak() float64 {
	return j.mu.Value() + j.lambda.Value()*math.Sinh(-j.gamma.Value()/j.delta.Value())
}

func (j *Johnson) Func() func(float64) float64 {
	mu, lambda, gamma, delta := j.mu.Value(), j.lambda.Value(), j.gamma.Value(), j.delta.Value()
	return func(x float64) float64 {
		z := (x - mu) / lambda
		arg := gamma + delta*math.Asinh(z)
		return delta / (lambda * sqrt2Pi) / math.Sqrt(1+z*z) * math.Exp(-0.5*arg*arg)
	}
}

func (j *Johnson) Integral(lo, hi float64) float64 {
	mu, lambda, gamma, delta := j.mu.Value(), j.lambda.Value(), j.gamma.Value(), j.delta.Value()
	cdf := func(x float64) float64 {
		return distuv.UnitNormal.CDF(gamma + delta*math.Asinh((x-mu)/lambda))
	}
	return cdf(hi) - cdf(lo)
}
