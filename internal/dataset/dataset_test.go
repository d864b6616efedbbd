package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

func testObservable(t *testing.T) *pdf.Observable {
	t.Helper()
	obs, err := pdf.NewObservable("m", 0, 10)
	if err != nil {
		t.Fatalf("observable: %v", err)
	}
	return obs
}

func TestNewRejectsOutOfRange(t *testing.T) {
	obs := testObservable(t)
	if _, err := New(obs, []float64{1, 11}); err == nil {
		t.Fatalf("expected range error")
	}
	if _, err := New(obs, []float64{math.NaN()}); err == nil {
		t.Fatalf("expected NaN error")
	}
}

func TestValuesIsACopy(t *testing.T) {
	d, err := New(testObservable(t), []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	vals := d.Values()
	vals[0] = 9
	if d.At(0) != 1 {
		t.Fatalf("dataset mutated through Values: %v", d.At(0))
	}
}

func TestHistogramCountsEveryEvent(t *testing.T) {
	d, err := New(testObservable(t), []float64{0, 0.5, 5, 9.99, 10})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h := d.Histogram(10)
	bins := h.Binning.Bins
	if len(bins) != 10 {
		t.Fatalf("expected 10 bins, got %d", len(bins))
	}
	total := 0.0
	for _, b := range bins {
		total += b.SumW()
	}
	if total != 5 {
		t.Fatalf("expected 5 binned events, got %v", total)
	}
	if bins[0].SumW() != 2 || bins[9].SumW() != 2 {
		t.Fatalf("unexpected edge bins: first=%v last=%v", bins[0].SumW(), bins[9].SumW())
	}
	if bins[9].SumW2() != 2 {
		t.Fatalf("expected sumw2 2 in last bin, got %v", bins[9].SumW2())
	}
}

func TestSummary(t *testing.T) {
	values := make([]float64, 0, 1001)
	for i := 0; i <= 1000; i++ {
		values = append(values, float64(i)/100)
	}
	d, err := New(testObservable(t), values)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s, err := d.Summary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Count != 1001 {
		t.Fatalf("count = %d", s.Count)
	}
	if math.Abs(s.Mean-5) > 1e-9 {
		t.Fatalf("mean = %v, want 5", s.Mean)
	}
	if s.Min != 0 || s.Max != 10 {
		t.Fatalf("bounds = [%v, %v]", s.Min, s.Max)
	}
	median := s.Quantiles[2]
	if math.Abs(median-5)/5 > 0.02 {
		t.Fatalf("median = %v, want about 5", median)
	}
}

func TestWriteLoad(t *testing.T) {
	obs := testObservable(t)
	d, err := New(obs, []float64{1.25, 3.5, 9.875})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "toys.txt")
	if err := d.Write(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path, obs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 3 || got.At(2) != 9.875 {
		t.Fatalf("unexpected reload: len=%d last=%v", got.Len(), got.At(got.Len()-1))
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toys.txt")
	if err := os.WriteFile(path, []byte("1\n12\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, testObservable(t)); !model.IsKind(err, model.KindIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}
