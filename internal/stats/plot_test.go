package stats

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlotPerSeriesScale(t *testing.T) {
	var buf bytes.Buffer
	err := Plot(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}},
	}, PlotOptions{Width: 5, Height: 4})
	if err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Test Plot") {
		t.Fatalf("expected title in output")
	}
	if !strings.Contains(out, "Scaled per series") {
		t.Fatalf("expected scale note in output")
	}
	if !strings.Contains(out, "Legend:") {
		t.Fatalf("expected legend in output")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	expectedMin := 1 + 1 + 2 + 4 + 1
	if len(lines) < expectedMin {
		t.Fatalf("expected at least %d lines of output, got %d", expectedMin, len(lines))
	}
}

func TestPlotSharedScaleLabelsValues(t *testing.T) {
	var buf bytes.Buffer
	err := Plot(&buf, "", []Series{
		{Name: "mean", Values: []float64{1864.9, 1865.0, 1865.1}},
		{Name: "avg", Values: []float64{1864.9, 1864.95, 1865.0}},
	}, PlotOptions{Width: 12, Height: 5, Shared: true})
	if err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Scaled per series") {
		t.Fatalf("shared plot should not print the per-series note")
	}
	if !strings.Contains(out, "1865.1") || !strings.Contains(out, "1864.9") {
		t.Fatalf("expected value labels on the axis, got:\n%s", out)
	}
}

func TestPlotSkipsEmptySeries(t *testing.T) {
	var buf bytes.Buffer
	if err := Plot(&buf, "empty", []Series{{Name: "A"}}, PlotOptions{Width: 10, Height: 4}); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 1}); got != " @" {
		t.Fatalf("sparkline = %q", got)
	}
	if got := Sparkline([]float64{2, 2, 2}); len(got) != 3 || got[0] != got[2] {
		t.Fatalf("flat sparkline = %q", got)
	}
}
