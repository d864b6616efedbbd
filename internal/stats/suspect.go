package stats

import (
	"math"
	"sort"

	"github.com/verte-zerg/massfit/internal/fit"
)

// SuspectParams returns parameters that ended at a limit or moved more than
// threshold errors away from their initial value, largest shift first.
func SuspectParams(res *fit.Result, threshold float64) []fit.Param {
	var out []fit.Param
	for _, p := range res.Params {
		if p.AtLimit || shift(p) > threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AtLimit != out[j].AtLimit {
			return out[i].AtLimit
		}
		return shift(out[i]) > shift(out[j])
	})
	return out
}

func shift(p fit.Param) float64 {
	if !(p.Error > 0) {
		return 0
	}
	return math.Abs(p.Value-p.Initial) / p.Error
}
