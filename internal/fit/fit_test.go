package fit

import (
	"math"
	"testing"

	"github.com/verte-zerg/massfit/internal/builder"
	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/generator"
	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

func closureModel(t *testing.T) *pdf.Model {
	t.Helper()
	d, err := builder.ReferenceWith(builder.Overrides{
		"frac": {Value: builder.Ptr(0.5)},
		"s":    {Value: builder.Ptr(10)},
		"mean": {Value: builder.Ptr(1865)},
		"nsig": {Value: builder.Ptr(5e5), Min: builder.Ptr(0), Max: builder.Ptr(1e6)},
		"nbkg": {Value: builder.Ptr(2.5e5), Min: builder.Ptr(0), Max: builder.Ptr(1e6)},
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	m, err := builder.FromDeclaration(d)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return m
}

func generate(t *testing.T, m *pdf.Model, n int, seed uint64) *dataset.Dataset {
	t.Helper()
	d, err := generator.New(seed).Generate(m, n)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return d
}

func TestClosureRecoversMean(t *testing.T) {
	if testing.Short() {
		t.Skip("unbinned fit of 100k events")
	}
	m := closureModel(t)
	data := generate(t, m, 100000, 2024)
	res, err := Fit(m, data, DefaultOptions())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	mean, ok := res.Param("mean")
	if !ok {
		t.Fatalf("mean not floated")
	}
	if !(mean.Error > 0) {
		t.Fatalf("mean error = %v", mean.Error)
	}
	if pull := math.Abs(mean.Value-1865) / mean.Error; pull > 3 {
		t.Fatalf("mean = %v +/- %v, %.1f sigma from 1865", mean.Value, mean.Error, pull)
	}
	total := 0.0
	for _, name := range []string{"nsig", "nbkg"} {
		p, _ := res.Param(name)
		total += p.Value
	}
	if math.Abs(total-100000) > 5*math.Sqrt(100000) {
		t.Fatalf("total yield %v, want about 100000", total)
	}
	if v, _ := m.Var("mean"); v.Value() != mean.Value || v.Error() != mean.Error {
		t.Fatalf("fit result not written back: %v +/- %v", v.Value(), v.Error())
	}
	if !res.Converged || res.HasWarning(model.WarnNotConverged) {
		t.Fatalf("closure fit not converged: status %s, EDM %g, warnings %+v", res.Status, res.EDM, res.Warnings)
	}
	if !(res.EDM < edmTolerance) {
		t.Fatalf("EDM = %g", res.EDM)
	}
}

func TestBinnedClosure(t *testing.T) {
	m := closureModel(t)
	data := generate(t, m, 100000, 99)
	opts := DefaultOptions()
	opts.Binned = 120
	res, err := Fit(m, data, opts)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	mean, _ := res.Param("mean")
	if math.Abs(mean.Value-1865) > 3*mean.Error {
		t.Fatalf("mean = %v +/- %v", mean.Value, mean.Error)
	}
	if !res.Converged || res.HasWarning(model.WarnNotConverged) {
		t.Fatalf("binned fit not converged: status %s, EDM %g", res.Status, res.EDM)
	}
}

func TestMinNLLIsUnoffset(t *testing.T) {
	m := closureModel(t)
	data := generate(t, m, 20000, 5)
	vars := m.FreeParams()
	start := make([]float64, len(vars))
	for i, v := range vars {
		start[i] = v.Initial()
	}

	l := newLikelihood(m, data, vars, true, 0)
	raw := l.value(start)
	l.setOffset(start)
	if l.offset != raw {
		t.Fatalf("offset %v, want %v", l.offset, raw)
	}
	if v := l.value(start); v != 0 {
		t.Fatalf("offset value at start = %v, want 0", v)
	}

	res, err := Fit(m, data, DefaultOptions())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	best := make([]float64, len(vars))
	for i, v := range vars {
		best[i] = v.Value()
	}
	want := newLikelihood(m, data, vars, true, 0).value(best)
	if math.Abs(res.MinNLL-want) > 1e-6*math.Abs(want) {
		t.Fatalf("MinNLL %v, NLL at best %v", res.MinNLL, want)
	}
	if res.MinNLL > raw {
		t.Fatalf("MinNLL %v above start NLL %v", res.MinNLL, raw)
	}
}

func TestKahanKeepsSmallTerms(t *testing.T) {
	var k kahan
	naive := 1.0
	k.add(1)
	for i := 0; i < 1000000; i++ {
		k.add(1e-16)
		naive += 1e-16
	}
	if naive != 1 {
		t.Fatalf("naive sum unexpectedly kept small terms")
	}
	if got := k.total(); math.Abs(got-(1+1e-10)) > 1e-15 {
		t.Fatalf("compensated sum = %.17g", got)
	}
}

func TestGradientStepGrowsWithEvents(t *testing.T) {
	small := gradientStep(1000)
	if small != 6e-6 {
		t.Fatalf("step for 1000 events = %g", small)
	}
	large := gradientStep(1500000)
	if !(large > small) {
		t.Fatalf("step for 1.5M events %g not above %g", large, small)
	}
	if got := gradientStep(1 << 40); got != 1e-3 {
		t.Fatalf("step not capped: %g", got)
	}
}

func TestNFloatEqualsFreeParams(t *testing.T) {
	m := closureModel(t)
	data := generate(t, m, 5000, 3)
	opts := DefaultOptions()
	opts.Binned = 60
	res, err := Fit(m, data, opts)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if res.NFloat() != len(m.FreeParams()) || res.NFloat() != 9 {
		t.Fatalf("NFloat = %d, free params = %d", res.NFloat(), len(m.FreeParams()))
	}
	if res.Covariance == nil || res.Covariance.SymmetricDim() != 9 {
		t.Fatalf("expected 9x9 covariance")
	}
	for i := 0; i < 9; i++ {
		if c := res.Correlation.At(i, i); !res.HasWarning(model.WarnCovariance) && math.Abs(c-1) > 1e-9 {
			t.Fatalf("diagonal correlation %d = %v", i, c)
		}
	}
}

func TestDegenerateMixtureMatchesSingleComponent(t *testing.T) {
	fixed := builder.Overrides{
		"nsig": {Value: builder.Ptr(2e4), Min: builder.Ptr(0), Max: builder.Ptr(1e5)},
		"nbkg": {Value: builder.Ptr(0), Fixed: true},
		"a1":   {Fixed: true},
		"a2":   {Fixed: true},
	}
	mixDecl, err := builder.ReferenceWith(fixed)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	mix, err := builder.FromDeclaration(mixDecl)
	if err != nil {
		t.Fatalf("build mixture: %v", err)
	}

	var items []builder.Decl
	for _, item := range mixDecl.Items {
		switch item.Name {
		case "a1", "a2", "bkg", "nbkg":
			continue
		case "model":
			item.Args = []string{"sig"}
			item.Coefs = []string{"nsig"}
		}
		items = append(items, item)
	}
	singleDecl := mixDecl
	singleDecl.Items = items
	single, err := builder.FromDeclaration(singleDecl)
	if err != nil {
		t.Fatalf("build single: %v", err)
	}

	data := generate(t, single, 20000, 17)
	mixData, err := dataset.New(mix.Observable, data.Values())
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	opts := DefaultOptions()
	opts.Binned = 120
	a, err := Fit(mix, mixData, opts)
	if err != nil {
		t.Fatalf("fit mixture: %v", err)
	}
	b, err := Fit(single, data, opts)
	if err != nil {
		t.Fatalf("fit single: %v", err)
	}
	if a.NFloat() != b.NFloat() {
		t.Fatalf("NFloat differs: %d vs %d", a.NFloat(), b.NFloat())
	}
	if math.Abs(a.MinNLL-b.MinNLL) > 1e-3 {
		t.Fatalf("min NLL differs: %v vs %v", a.MinNLL, b.MinNLL)
	}
	for _, name := range []string{"mean", "nsig"} {
		pa, _ := a.Param(name)
		pb, _ := b.Param(name)
		if math.Abs(pa.Value-pb.Value) > 0.05*pb.Error {
			t.Fatalf("%s differs: %v vs %v (error %v)", name, pa.Value, pb.Value, pb.Error)
		}
	}
}

func TestFitRejectsEmptyAndMismatchedData(t *testing.T) {
	m := closureModel(t)
	if _, err := Fit(m, nil, DefaultOptions()); !model.IsKind(err, model.KindConfiguration) {
		t.Fatalf("expected configuration error for nil dataset, got %v", err)
	}
	other, _ := pdf.NewObservable("other", 0, 1)
	d, _ := dataset.New(other, []float64{0.5})
	if _, err := Fit(m, d, DefaultOptions()); !model.IsKind(err, model.KindConfiguration) {
		t.Fatalf("expected configuration error for mismatched observable, got %v", err)
	}
}

func TestBoundRoundTrip(t *testing.T) {
	cases := []bound{
		newBound(0, 1),
		newBound(2, math.Inf(1)),
		newBound(math.Inf(-1), -3),
		newBound(math.Inf(-1), math.Inf(1)),
	}
	values := [][]float64{
		{0.1, 0.5, 0.9},
		{2.5, 10, 1e4},
		{-3.5, -10, -1e4},
		{-7, 0, 7},
	}
	for i, b := range cases {
		for _, x := range values[i] {
			got := b.toExternal(b.toInternal(x))
			if math.Abs(got-x) > 1e-9*math.Max(1, math.Abs(x)) {
				t.Fatalf("case %d: %v -> %v", i, x, got)
			}
		}
	}
	if b := newBound(0, 1); b.toExternal(100) < 0 || b.toExternal(100) > 1 {
		t.Fatalf("two-sided transform left its bounds")
	}
}
