package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/massfit/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return st
}

func insert(t *testing.T, st *Store, ended time.Time, mean float64) string {
	t.Helper()
	run := model.RunRecord{
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
		ModelPath: "d0.toml",
		Events:    15000000,
		Seed:      1<<63 + 7,
		Status:    "converged",
		MinNLL:    -1.5e8,
		Chi2NDOF:  1.02,
		NFloat:    9,
		Output:    "RooFit_example.pdf",
	}
	params := []model.ParamRecord{
		{Name: "mean", Initial: 1865, Value: mean, Error: 0.01, Min: 1850, Max: 1870},
		{Name: "frac", Initial: 0.5, Value: 0.5, Error: 0.002, Min: 0, Max: 1, AtLimit: true},
	}
	id, err := st.InsertRun(context.Background(), run, params)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated run id")
	}
	return id
}

func TestInsertAndListRuns(t *testing.T) {
	st := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := insert(t, st, base, 1864.9)
	second := insert(t, st, base.Add(time.Hour), 1865.1)

	runs, err := st.ListRuns(context.Background(), model.HistoryConfig{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != first || runs[1].ID != second {
		t.Fatalf("runs not oldest first: %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Seed != 1<<63+7 {
		t.Fatalf("seed = %d, want round trip of high-bit seed", runs[0].Seed)
	}
	if !runs[1].EndedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("ended_at = %v", runs[1].EndedAt)
	}

	last, err := st.ListRuns(context.Background(), model.HistoryConfig{Last: 1})
	if err != nil {
		t.Fatalf("list last: %v", err)
	}
	if len(last) != 1 || last[0].ID != second {
		t.Fatalf("expected most recent run only, got %+v", last)
	}
}

func TestListParams(t *testing.T) {
	st := openTemp(t)
	id := insert(t, st, time.Now().UTC(), 1865)
	params, err := st.ListParams(context.Background(), id)
	if err != nil {
		t.Fatalf("list params: %v", err)
	}
	if len(params) != 2 || params[0].Name != "frac" || params[1].Name != "mean" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if !params[0].AtLimit || params[1].AtLimit {
		t.Fatalf("at_limit not preserved: %+v", params)
	}
}

func TestParamHistory(t *testing.T) {
	st := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := insert(t, st, base, 1864.9)
	b := insert(t, st, base.Add(time.Hour), 1865.1)

	points, err := st.ParamHistory(context.Background(), "mean")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 2 || points[0].RunID != a || points[1].RunID != b {
		t.Fatalf("unexpected points: %+v", points)
	}
	if points[0].Value != 1864.9 || points[1].Value != 1865.1 {
		t.Fatalf("unexpected values: %+v", points)
	}

	only, err := st.ParamHistory(context.Background(), "mean", b)
	if err != nil {
		t.Fatalf("history subset: %v", err)
	}
	if len(only) != 1 || only[0].RunID != b {
		t.Fatalf("expected one point for run %s, got %+v", b, only)
	}

	none, err := st.ParamHistory(context.Background(), "nsig")
	if err != nil {
		t.Fatalf("history missing: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no points, got %+v", none)
	}
}

func TestListRunsFilteredByParam(t *testing.T) {
	st := openTemp(t)
	insert(t, st, time.Now().UTC(), 1865)
	runs, err := st.ListRuns(context.Background(), model.HistoryConfig{Param: "nsig"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs recording nsig, got %d", len(runs))
	}
}
