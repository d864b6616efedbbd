package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/massfit/internal/fit"
	"github.com/verte-zerg/massfit/internal/model"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Param", "Value", "Error"}
	rows := [][]string{
		{"mean", "1865", "0.012"},
		{"nsig", "1.0000e+07", "3162"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Param      Value Error" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "mean        1865 0.012" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "nsig  1.0000e+07  3162" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableTrimsEmptyTrailingCells(t *testing.T) {
	lines := formatTable([]string{"Name", "Flag"}, [][]string{{"a", ""}}, nil)
	if lines[1] != "a" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
}

func TestDisplayWidthIgnoresANSI(t *testing.T) {
	if got := displayWidth("\x1b[31mat limit\x1b[0m"); got != len("at limit") {
		t.Fatalf("display width = %d", got)
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		0:       "0",
		1865:    "1865",
		0.5:     "0.5",
		1.5e7:   "1.5000e+07",
		-2.5e-4: "-2.5000e-04",
	}
	for v, want := range cases {
		if got := formatValue(v); got != want {
			t.Fatalf("formatValue(%g) = %q, want %q", v, got, want)
		}
	}
}

func TestRenderParams(t *testing.T) {
	res := &fit.Result{
		Params: []fit.Param{
			{Name: "mean", Initial: 1865, Value: 1865.02, Error: 0.01, Min: 1850, Max: 1870},
			{Name: "frac", Initial: 0.5, Value: 1, Error: 0.001, Min: 0, Max: 1, AtLimit: true},
		},
		MinNLL:    -12.5,
		Status:    "FunctionConvergence",
		Converged: true,
		Elapsed:   1500 * time.Millisecond,
		Warnings: []model.ConvergenceWarning{
			{Kind: model.WarnAtLimit, Param: "frac", Message: "value at bound"},
		},
	}
	var buf bytes.Buffer
	if err := RenderParams(&buf, res, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Fit Parameters", "mean", "+2.00", "at limit", "warning: at_limit (frac)", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI codes without colour")
	}
}
