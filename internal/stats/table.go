package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/massfit/internal/fit"
	"github.com/verte-zerg/massfit/internal/pdf"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// RenderParams prints the floated parameters of a fit.
func RenderParams(w io.Writer, res *fit.Result, useColor bool) error {
	if err := heading(w, "Fit Parameters", useColor); err != nil {
		return err
	}
	headers := []string{"Name", "Initial", "Value", "Error", "Pull", "Range", ""}
	rows := make([][]string, 0, len(res.Params))
	for _, p := range res.Params {
		pull := "-"
		if p.Error > 0 {
			pull = fmt.Sprintf("%+.2f", (p.Value-p.Initial)/p.Error)
		}
		flag := ""
		if p.AtLimit {
			flag = mark("at limit", useColor)
		}
		rows = append(rows, []string{
			p.Name,
			formatValue(p.Initial),
			formatValue(p.Value),
			formatValue(p.Error),
			pull,
			formatRange(p.Min, p.Max),
			flag,
		})
	}
	if err := writeLines(w, formatTable(headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true})); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "status %s, %d iterations, %d evaluations, -log(L) = %.4f, EDM = %.3g, %s\n",
		res.Status, res.Iterations, res.Evaluations, res.MinNLL, res.EDM, res.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, warn := range res.Warnings {
		if _, err := fmt.Fprintln(w, mark("warning: "+warn.String(), useColor)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderModel prints every parameter of a model with its kind and bounds.
func RenderModel(w io.Writer, m *pdf.Model, useColor bool) error {
	if err := heading(w, fmt.Sprintf("Model %s over %s", m.Root.Name(), m.Observable.Label()), useColor); err != nil {
		return err
	}
	headers := []string{"Name", "Kind", "Value", "Range"}
	var rows [][]string
	for _, v := range m.Vars() {
		kind := "free"
		rng := formatRange(v.Bounds())
		if v.Constant() {
			kind = "const"
			rng = ""
		}
		rows = append(rows, []string{v.Name(), kind, formatValue(v.Value()), rng})
	}
	for _, d := range m.Derived() {
		names := make([]string, len(d.Servers()))
		for i, s := range d.Servers() {
			names[i] = s.Name()
		}
		rows = append(rows, []string{d.Name(), fmt.Sprintf("%s(%s)", d.Op(), strings.Join(names, ",")), formatValue(d.Value()), ""})
	}
	if err := writeLines(w, formatTable(headers, rows, map[int]bool{2: true})); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}

	if err := heading(w, "Densities", useColor); err != nil {
		return err
	}
	rows = rows[:0]
	for _, d := range m.Densities() {
		names := make([]string, 0, len(d.Servers()))
		for _, s := range d.Servers() {
			names = append(names, s.Name())
		}
		if s, ok := d.(*pdf.Sum); ok {
			comps := make([]string, len(s.Components()))
			for i, c := range s.Components() {
				comps[i] = c.Name()
			}
			names = append(comps, names...)
		}
		rows = append(rows, []string{d.Name(), densityKind(d), strings.Join(names, ", ")})
	}
	if err := writeLines(w, formatTable([]string{"Name", "Shape", "Depends on"}, rows, nil)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func densityKind(d pdf.Density) string {
	switch v := d.(type) {
	case *pdf.Gaussian:
		return "Gaussian"
	case *pdf.CrystalBall:
		return "CrystalBall"
	case *pdf.Chebychev:
		return "Chebychev"
	case *pdf.Polynomial:
		return "Polynomial"
	case *pdf.Johnson:
		return "Johnson"
	case *pdf.Sum:
		if v.Extended() {
			return "Sum (extended)"
		}
		return "Sum"
	}
	return fmt.Sprintf("%T", d)
}

func heading(w io.Writer, title string, useColor bool) error {
	if useColor {
		title = headingStyle.Render(title)
	}
	_, err := fmt.Fprintln(w, title)
	return err
}

func mark(s string, useColor bool) string {
	if useColor {
		return warnStyle.Render(s)
	}
	return s
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v float64) string {
	a := math.Abs(v)
	switch {
	case v == 0:
		return "0"
	case a >= 1e5 || a < 1e-3:
		return fmt.Sprintf("%.4e", v)
	default:
		return fmt.Sprintf("%.5g", v)
	}
}

func formatRange(lo, hi float64) string {
	return fmt.Sprintf("[%s, %s]", formatValue(lo), formatValue(hi))
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	for i, header := range headers {
		widths[i] = displayWidth(header)
	}
	for _, row := range rows {
		for i := 0; i < colCount; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if w := displayWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	if len(headers) > 0 {
		lines = append(lines, formatRow(headers, widths, rightAlignCols))
	}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

func formatRow(row []string, widths []int, rightAlignCols map[int]bool) string {
	var b strings.Builder
	for i := 0; i < len(widths); i++ {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(padCell(cell, widths[i], rightAlignCols[i]))
	}
	return strings.TrimRight(b.String(), " ")
}

func padCell(value string, width int, rightAlign bool) string {
	valueWidth := displayWidth(value)
	if valueWidth >= width {
		return value
	}
	padding := width - valueWidth
	if rightAlign {
		return strings.Repeat(" ", padding) + value
	}
	return value + strings.Repeat(" ", padding)
}

// displayWidth ignores ANSI styling so coloured cells stay aligned.
func displayWidth(value string) int {
	return runewidth.StringWidth(stripANSI(value))
}

func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
