// Package main provides the CLI entrypoint for massfit.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/massfit/internal/builder"
	"github.com/verte-zerg/massfit/internal/config"
	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/historyui"
	"github.com/verte-zerg/massfit/internal/logging"
	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pipeline"
	"github.com/verte-zerg/massfit/internal/stats"
	"github.com/verte-zerg/massfit/internal/store"
)

const (
	defaultHistoryLast = 20
	defaultTopCorr     = 5
	previewHeight      = 12
)

var (
	runModel      string
	runEvents     int
	runSeed       uint64
	runBins       int
	runOutput     string
	runComponents []string
	runBinned     int
	runPoisson    bool
	runPreview    bool
	runHistory    bool
	runDumpToys   string
	runLogLevel   string

	modelPath string

	historyLast   int
	historyParam  string
	historyBrowse bool

	inspectModel string
	inspectBins  int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := pipeline.DefaultConfig()
	rootCmd := &cobra.Command{
		Use:           "massfit",
		Short:         "Generate, fit and plot a D0 mass model",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE:          runFitCmd,
	}

	rootCmd.Flags().StringVar(&runModel, "model", "", "model declaration file (.toml, .yaml); default is the reference D0 model")
	rootCmd.Flags().IntVar(&runEvents, "events", defaults.Events, "number of toy events")
	rootCmd.Flags().Uint64Var(&runSeed, "seed", defaults.Seed, "generator seed")
	rootCmd.Flags().IntVar(&runBins, "bins", defaults.Bins, "bins for the plot and chi2/ndof")
	rootCmd.Flags().StringVar(&runOutput, "output", defaults.Output, "output figure (.pdf, .png, .svg, .eps)")
	rootCmd.Flags().StringSliceVar(&runComponents, "components", defaults.Components, "components drawn on the main frame")
	rootCmd.Flags().IntVar(&runBinned, "binned", 0, "fit a histogram with this many bins (0 fits every event)")
	rootCmd.Flags().BoolVar(&runPoisson, "poisson", false, "draw a Poisson-distributed event count around the total yield")
	rootCmd.Flags().BoolVar(&runPreview, "preview", false, "print a terminal preview of data and fit")
	rootCmd.Flags().BoolVar(&runHistory, "history", false, "record the fit in the history database")
	rootCmd.Flags().StringVar(&runDumpToys, "dump-toys", "", "write the generated events to this file")
	rootCmd.Flags().StringVar(&runLogLevel, "log-level", logging.DefaultLevel, "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newModelCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func runFitCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "model", &runModel, fileCfg.Run.Model)
	applyIntConfig(cmd, "events", &runEvents, fileCfg.Run.Events)
	applyUintConfig(cmd, "seed", &runSeed, fileCfg.Run.Seed)
	applyIntConfig(cmd, "bins", &runBins, fileCfg.Run.Bins)
	applyStringConfig(cmd, "output", &runOutput, fileCfg.Run.Output)
	applySliceConfig(cmd, "components", &runComponents, fileCfg.Run.Components)
	applyIntConfig(cmd, "binned", &runBinned, fileCfg.Run.Binned)
	applyBoolConfig(cmd, "poisson", &runPoisson, fileCfg.Run.Poisson)
	applyBoolConfig(cmd, "preview", &runPreview, fileCfg.Run.Preview)
	applyBoolConfig(cmd, "history", &runHistory, fileCfg.Run.History)
	applyStringConfig(cmd, "log-level", &runLogLevel, fileCfg.Run.LogLevel)

	cfg := model.RunConfig{
		ModelPath:  runModel,
		Events:     runEvents,
		Seed:       runSeed,
		Bins:       runBins,
		Output:     runOutput,
		Components: runComponents,
		Binned:     runBinned,
		Poisson:    runPoisson,
		Preview:    runPreview,
		History:    runHistory,
		DumpToys:   runDumpToys,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	log, err := logging.New(os.Stderr, runLogLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	decl, err := loadDeclaration(cfg.ModelPath)
	if err != nil {
		return err
	}

	run := pipeline.New(cfg, log)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		run.Progress = os.Stderr
	}
	if err := run.Execute(decl); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := printSummary(out, run); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if cfg.Preview {
		if err := printPreview(out, run); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
	}
	if cfg.History {
		if err := recordRun(run); err != nil {
			logErrf("failed to record fit: %v\n", err)
		}
	}
	return nil
}

func loadDeclaration(path string) (builder.Declaration, error) {
	if path == "" {
		return builder.Reference(), nil
	}
	return builder.Load(path)
}

func printSummary(w io.Writer, run *pipeline.Run) error {
	useColor := colorEnabled(w)
	if _, err := fmt.Fprintln(w, stats.RenderSummaryCards(run.Result, run.GOF, run.Data.Len(), terminalWidth())); err != nil {
		return err
	}
	if err := stats.RenderParams(w, run.Result, useColor); err != nil {
		return err
	}
	if err := stats.RenderCorrelations(w, run.Result, defaultTopCorr, useColor); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "chi2/ndof = %.4f\n", run.GOF.Ratio())
	return err
}

func printPreview(w io.Writer, run *pipeline.Run) error {
	h := run.Data.Histogram(run.Config.Bins)
	expected := stats.ModelExpectation(run.Model)
	data := make([]float64, 0, len(h.Binning.Bins))
	fitted := make([]float64, 0, len(h.Binning.Bins))
	for _, b := range h.Binning.Bins {
		data = append(data, b.SumW())
		fitted = append(fitted, expected(b.XMin(), b.XMax()))
	}
	opts := stats.PlotOptions{Height: previewHeight, Shared: true, Color: colorEnabled(w)}
	title := fmt.Sprintf("%s (%d bins)", run.Model.Observable.Label(), len(data))
	if err := stats.Plot(w, title, []stats.Series{{Name: "data", Values: data}, {Name: "fit", Values: fitted}}, opts); err != nil {
		return err
	}
	pulls := stats.Pulls(h, expected)
	values := make([]float64, len(pulls))
	for i, p := range pulls {
		values[i] = p.Value
	}
	mean, sd := stats.PullSummary(pulls)
	_, err := fmt.Fprintf(w, "pulls  %s  mean %+.3f sd %.3f\n", stats.Sparkline(values), mean, sd)
	return err
}

func recordRun(run *pipeline.Run) error {
	rec, params, err := run.Record()
	if err != nil {
		return err
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	id, err := st.InsertRun(context.Background(), rec, params)
	if err != nil {
		return err
	}
	logErrf("recorded fit %s\n", id)
	return nil
}

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Print the model declaration and its parameters",
		Args:  cobra.NoArgs,
		RunE:  runModelCmd,
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "model declaration file; default is the reference D0 model")
	return cmd
}

func runModelCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "model", &modelPath, fileCfg.Run.Model)
	decl, err := loadDeclaration(modelPath)
	if err != nil {
		return err
	}
	m, err := builder.FromDeclaration(decl)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := builder.Encode(out, decl); err != nil {
		return fmt.Errorf("failed to write declaration: %w", err)
	}
	if _, err := fmt.Fprintln(out, ""); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderModel(out, m, colorEnabled(out)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded fits",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLast, "last", defaultHistoryLast, "limit to last N fits (0 for all)")
	cmd.Flags().StringVar(&historyParam, "param", "", "parameter to plot across fits")
	cmd.Flags().BoolVar(&historyBrowse, "browse", false, "browse recorded fits interactively")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	cfg := model.HistoryConfig{Last: historyLast, Param: historyParam}
	if historyBrowse {
		browser := historyui.NewModel(st, cfg)
		program := tea.NewProgram(browser, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run history browser: %w", err)
		}
		return nil
	}

	h, err := stats.BuildHistory(context.Background(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	out := cmd.OutOrStdout()
	opts := stats.PlotOptions{Width: stats.PlotWidthFor(terminalWidth() - 10), Color: colorEnabled(out)}
	if err := stats.RenderHistory(out, h, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarize a dumped toy dataset",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspectCmd,
	}
	cmd.Flags().StringVar(&inspectModel, "model", "", "model declaration whose observable the file holds")
	cmd.Flags().IntVar(&inspectBins, "bins", dataset.DefaultBins, "bins for the preview")
	return cmd
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	decl, err := loadDeclaration(inspectModel)
	if err != nil {
		return err
	}
	m, err := builder.FromDeclaration(decl)
	if err != nil {
		return err
	}
	d, err := dataset.Load(args[0], m.Observable)
	if err != nil {
		return err
	}
	summary, err := d.Summary()
	if err != nil {
		return fmt.Errorf("failed to summarize dataset: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := summary.Write(out, m.Observable.Unit); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	h := d.Histogram(inspectBins)
	counts := make([]float64, 0, len(h.Binning.Bins))
	for _, b := range h.Binning.Bins {
		counts = append(counts, b.SumW())
	}
	opts := stats.PlotOptions{Height: previewHeight, Shared: true, Color: colorEnabled(out)}
	if err := stats.Plot(out, m.Observable.Label(), []stats.Series{{Name: filepath.Base(args[0]), Values: counts}}, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyUintConfig(cmd *cobra.Command, name string, target, value *uint64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applySliceConfig(cmd *cobra.Command, name string, target, value *[]string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = append([]string(nil), (*value)...)
}

func defaultConfigTemplate() string {
	defaults := pipeline.DefaultConfig()
	return fmt.Sprintf(`# massfit configuration
# Uncomment a value to enable it. CLI flags override config values.

[run]
# model = "d0.toml"       # Model declaration file (default: reference D0 model)
# events = %d       # Number of toy events
# seed = %d                # Generator seed
# bins = %d               # Bins for the plot and chi2/ndof
# output = %q   # Output figure; extension picks the format
# components = [%s]   # Components drawn on the main frame
# binned = 0              # Fit a histogram with this many bins (0 fits every event)
# poisson = false         # Poisson-distributed event count
# preview = false         # Terminal preview of data and fit
# history = false         # Record fits in the history database
# log-level = %q      # debug, info, warn, error
`,
		defaults.Events,
		defaults.Seed,
		defaults.Bins,
		defaults.Output,
		quoteList(defaults.Components),
		logging.DefaultLevel,
	)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

func validateConfig(cfg model.RunConfig) error {
	if cfg.Events <= 0 && !cfg.Poisson {
		return fmt.Errorf("--events must be > 0")
	}
	if cfg.Bins <= 0 {
		return fmt.Errorf("--bins must be > 0")
	}
	if cfg.Binned < 0 {
		return fmt.Errorf("--binned must be >= 0")
	}
	if strings.TrimSpace(cfg.Output) == "" {
		return fmt.Errorf("--output must not be empty")
	}
	for _, c := range cfg.Components {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("--components must not contain empty names")
		}
	}
	return nil
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
