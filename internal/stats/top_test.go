package stats

import (
	"bytes"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/massfit/internal/fit"
)

func correlatedResult() *fit.Result {
	return &fit.Result{
		Params: []fit.Param{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		Correlation: mat.NewSymDense(3, []float64{
			1, 0.2, -0.9,
			0.2, 1, 0.5,
			-0.9, 0.5, 1,
		}),
	}
}

func TestTopCorrelations(t *testing.T) {
	top := TopCorrelations(correlatedResult(), 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(top))
	}
	if top[0].A != "a" || top[0].B != "c" || top[0].Value != -0.9 {
		t.Fatalf("unexpected first pair: %+v", top[0])
	}
	if top[1].A != "b" || top[1].B != "c" {
		t.Fatalf("unexpected second pair: %+v", top[1])
	}
	if all := TopCorrelations(correlatedResult(), 10); len(all) != 3 {
		t.Fatalf("expected every pair, got %d", len(all))
	}
	if none := TopCorrelations(&fit.Result{}, 3); none != nil {
		t.Fatalf("expected nil without a correlation matrix")
	}
}

func TestRenderCorrelations(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderCorrelations(&buf, correlatedResult(), 1, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "-0.900") {
		t.Fatalf("expected strongest correlation in output:\n%s", buf.String())
	}
}

func TestSuspectParams(t *testing.T) {
	res := &fit.Result{Params: []fit.Param{
		{Name: "shifted", Initial: 0, Value: 5, Error: 1},
		{Name: "fine", Initial: 0, Value: 1, Error: 1},
		{Name: "limit", Initial: 1, Value: 1, Error: 1, AtLimit: true},
		{Name: "noerror", Initial: 0, Value: 10},
	}}
	got := SuspectParams(res, 3)
	if len(got) != 2 || got[0].Name != "limit" || got[1].Name != "shifted" {
		t.Fatalf("unexpected suspects: %+v", got)
	}
}
