package stats

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/verte-zerg/massfit/internal/fit"
)

// Correlation is the correlation coefficient of a parameter pair.
type Correlation struct {
	A, B  string
	Value float64
}

// TopCorrelations returns the n parameter pairs with the largest absolute
// correlation.
func TopCorrelations(res *fit.Result, n int) []Correlation {
	if n <= 0 || res.Correlation == nil {
		return nil
	}
	var items []Correlation
	for i := range res.Params {
		for j := i + 1; j < len(res.Params); j++ {
			items = append(items, Correlation{
				A:     res.Params[i].Name,
				B:     res.Params[j].Name,
				Value: res.Correlation.At(i, j),
			})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		ai, aj := math.Abs(items[i].Value), math.Abs(items[j].Value)
		if ai == aj {
			if items[i].A == items[j].A {
				return items[i].B < items[j].B
			}
			return items[i].A < items[j].A
		}
		return ai > aj
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}

// RenderCorrelations prints the strongest correlations.
func RenderCorrelations(w io.Writer, res *fit.Result, n int, useColor bool) error {
	top := TopCorrelations(res, n)
	if len(top) == 0 {
		return nil
	}
	if err := heading(w, "Strongest Correlations", useColor); err != nil {
		return err
	}
	rows := make([][]string, 0, len(top))
	for _, c := range top {
		rows = append(rows, []string{c.A, c.B, fmt.Sprintf("%+.3f", c.Value)})
	}
	if err := writeLines(w, formatTable([]string{"Param", "Param", "Corr"}, rows, map[int]bool{2: true})); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
