package pdf

import (
	"errors"
	"math"
	"testing"

	"github.com/verte-zerg/massfit/internal/model"
)

func testMixture(t *testing.T) (*Observable, *Sum, *Var) {
	t.Helper()
	obs, err := NewObservable("m", 1805, 1925)
	if err != nil {
		t.Fatalf("observable: %v", err)
	}
	mean := NewVar("mean", 1865, 1850, 1870)
	frac := NewVar("frac", 0.5, 0, 1)
	sig1 := NewGaussian("sig1", mean, NewConst("w1", 5))
	sig2 := NewGaussian("sig2", mean, NewConst("w2", 8.5))
	sig, err := NewSum("sig", obs, []Density{sig1, sig2}, []Real{frac})
	if err != nil {
		t.Fatalf("sig: %v", err)
	}
	bkg := NewChebychev("bkg", obs, NewConst("a1", 0.1))
	nsig := NewVar("nsig", 2000, 0, 1e4)
	nbkg := NewVar("nbkg", 1000, 0, 1e4)
	root, err := NewSum("model", obs, []Density{sig, bkg}, []Real{nsig, nbkg})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	return obs, root, nbkg
}

func TestFlattenWeights(t *testing.T) {
	obs, root, _ := testMixture(t)
	if !root.Extended() {
		t.Fatalf("yield sum should be extended")
	}
	if root.ExpectedEvents() != 3000 {
		t.Fatalf("expected 3000 events, got %g", root.ExpectedEvents())
	}
	terms := Flatten(root, obs.Min, obs.Max)
	if len(terms) != 3 {
		t.Fatalf("expected 3 terms, got %d", len(terms))
	}
	want := map[string]float64{"sig1": 1.0 / 3, "sig2": 1.0 / 3, "bkg": 1.0 / 3}
	for _, term := range terms {
		if math.Abs(term.Weight-want[term.Density.Name()]) > 1e-12 {
			t.Fatalf("%s: weight %g", term.Density.Name(), term.Weight)
		}
		if term.Path[0] != "model" {
			t.Fatalf("path should start at the root: %v", term.Path)
		}
	}
	if err := CheckTerms(terms); err != nil {
		t.Fatalf("check terms: %v", err)
	}
	if got := Project(terms, "sig"); len(got) != 2 {
		t.Fatalf("expected both signal shapes under sig, got %d", len(got))
	}
	if got := Project(terms, "bkg", "sig1"); len(got) != 2 {
		t.Fatalf("expected bkg and sig1, got %d", len(got))
	}
}

func TestSumIsNormalized(t *testing.T) {
	obs, root, _ := testMixture(t)
	if got := root.Integral(obs.Min, obs.Max); math.Abs(got-1) > 1e-12 {
		t.Fatalf("expected unit integral, got %g", got)
	}
	if got := quadrature(root.Func(), obs.Min, obs.Max); math.Abs(got-1) > 1e-6 {
		t.Fatalf("expected unit numeric integral, got %g", got)
	}
}

func TestCheckTermsRejectsDegenerateYields(t *testing.T) {
	obs, root, nbkg := testMixture(t)
	nsig, _ := root.Coefficients()[0].(*Var)
	nsig.SetValue(0)
	nbkg.SetValue(0)
	err := CheckTerms(Flatten(root, obs.Min, obs.Max))
	if !errors.Is(err, model.ErrNotNormal) {
		t.Fatalf("expected ErrNotNormal, got %v", err)
	}
}

func TestNewSumRejectsCoefficientCount(t *testing.T) {
	obs := &Observable{Name: "x", Min: 0, Max: 1}
	g := NewGaussian("g", NewConst("mu", 0.5), NewConst("s", 0.1))
	if _, err := NewSum("bad", obs, []Density{g}, []Real{NewConst("a", 1), NewConst("b", 1)}); err == nil {
		t.Fatalf("expected an error for too many coefficients")
	}
}
