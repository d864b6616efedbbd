package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/store"
)

func TestBuildHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "massfit.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		start := time.Unix(0, 0).Add(time.Duration(i) * time.Minute)
		end := start.Add(30 * time.Second)
		run := model.RunRecord{
			StartedAt: start,
			EndedAt:   end,
			ModelPath: "reference",
			Events:    1000,
			Seed:      uint64(i),
			Status:    "FunctionConvergence",
			Chi2NDOF:  1 + 0.1*float64(i),
			NFloat:    9,
			Output:    "RooFit_example.pdf",
		}
		params := []model.ParamRecord{
			{Name: "mean", Initial: 1865, Value: 1865 + 0.01*float64(i), Error: 0.01, Min: 1850, Max: 1870},
		}
		id, err := st.InsertRun(ctx, run, params)
		if err != nil {
			t.Fatalf("insert run: %v", err)
		}
		ids = append(ids, id)
	}

	h, err := BuildHistory(ctx, st, model.HistoryConfig{Last: 2, Param: "mean"})
	if err != nil {
		t.Fatalf("build history: %v", err)
	}
	if len(h.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(h.Runs))
	}
	if h.Runs[0].ID != ids[1] || h.Runs[1].ID != ids[2] {
		t.Fatalf("unexpected run ids: %+v", h.Runs)
	}
	if len(h.Trend) != 2 || h.Trend[1].Value != 1865.02 {
		t.Fatalf("unexpected trend: %+v", h.Trend)
	}

	var buf bytes.Buffer
	if err := RenderHistory(&buf, h, PlotOptions{Width: 20, Height: 4}); err != nil {
		t.Fatalf("render history: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Recorded Fits", ids[2][:8], "chi2/ndof", "mean over 2 fits"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHistory(&buf, History{}, PlotOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No recorded fits") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
