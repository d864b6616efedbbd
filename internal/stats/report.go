package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/store"
)

const trendWindow = 5

// History contains recorded fits prepared for rendering.
type History struct {
	Runs  []model.RunRecord
	Param string
	Trend []model.ParamPoint
}

// BuildHistory loads recorded fits and, when a parameter is selected, its
// fitted values across those fits.
func BuildHistory(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (History, error) {
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return History{}, err
	}
	h := History{Runs: runs, Param: cfg.Param}
	if cfg.Param == "" || len(runs) == 0 {
		return h, nil
	}
	trend, err := st.ParamHistory(ctx, cfg.Param, runIDs(runs)...)
	if err != nil {
		return History{}, err
	}
	h.Trend = trend
	return h, nil
}

func runIDs(runs []model.RunRecord) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

// RenderHistory prints the recorded fits as a table followed by the
// chi2/ndof sparkline and, when selected, the parameter trend plot.
func RenderHistory(w io.Writer, h History, opts PlotOptions) error {
	if len(h.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No recorded fits. Enable with history = true in the config or --history.")
		return err
	}
	useColor := shouldUseColor(w, opts.Color)
	if err := heading(w, "Recorded Fits", useColor); err != nil {
		return err
	}
	rows := make([][]string, 0, len(h.Runs))
	ratios := make([]float64, 0, len(h.Runs))
	for _, r := range h.Runs {
		rows = append(rows, []string{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			shortID(r.ID),
			fmt.Sprintf("%d", r.Events),
			fmt.Sprintf("%d", r.Seed),
			r.Status,
			fmt.Sprintf("%.3f", r.Chi2NDOF),
			fmt.Sprintf("%d", r.NFloat),
		})
		ratios = append(ratios, r.Chi2NDOF)
	}
	headers := []string{"Ended", "Run", "Events", "Seed", "Status", "chi2/ndof", "Floated"}
	if err := writeLines(w, formatTable(headers, rows, map[int]bool{2: true, 3: true, 5: true, 6: true})); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "chi2/ndof  %s\n\n", Sparkline(ratios)); err != nil {
		return err
	}
	if h.Param == "" {
		return nil
	}
	if len(h.Trend) == 0 {
		_, err := fmt.Fprintf(w, "No recorded values for %s.\n", h.Param)
		return err
	}
	values := make([]float64, len(h.Trend))
	for i, p := range h.Trend {
		values[i] = p.Value
	}
	last := h.Trend[len(h.Trend)-1]
	title := fmt.Sprintf("%s over %d fits (last %s ± %s)", h.Param, len(values), formatValue(last.Value), formatValue(last.Error))
	opts.Shared = true
	return Plot(w, title, []Series{
		{Name: h.Param, Values: values},
		{Name: fmt.Sprintf("avg%d", trendWindow), Values: MovingAverage(values, trendWindow)},
	}, opts)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
