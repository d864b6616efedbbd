// Package pipeline runs the build, generate, fit and report stages of a mass
// fit as a strictly linear state machine.
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/verte-zerg/massfit/internal/builder"
	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/fit"
	"github.com/verte-zerg/massfit/internal/generator"
	"github.com/verte-zerg/massfit/internal/logging"
	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
	"github.com/verte-zerg/massfit/internal/report"
	"github.com/verte-zerg/massfit/internal/stats"
)

// Reference run settings.
const (
	DefaultEvents = 15_000_000
	DefaultSeed   = 1
	// suspectShift is how many errors a parameter may move from its initial
	// value before it is logged as suspect.
	suspectShift = 5
)

// State is a stage of a run.
type State int

const (
	Unbuilt State = iota
	ModelBuilt
	DataGenerated
	Fitted
	Reported
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case ModelBuilt:
		return "model built"
	case DataGenerated:
		return "data generated"
	case Fitted:
		return "fitted"
	case Reported:
		return "reported"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultConfig returns the reference scenario.
func DefaultConfig() model.RunConfig {
	return model.RunConfig{
		Events:     DefaultEvents,
		Seed:       DefaultSeed,
		Bins:       dataset.DefaultBins,
		Output:     report.DefaultOutput,
		Components: append([]string(nil), report.DefaultComponents...),
	}
}

// Run owns everything one mass fit produces. It is not safe for concurrent use.
type Run struct {
	Config model.RunConfig
	// Progress, if set, receives the generation progress bar.
	Progress io.Writer

	Model  *pdf.Model
	Data   *dataset.Dataset
	Result *fit.Result
	GOF    stats.GoodnessOfFit
	Main   *report.Frame
	Pull   *report.Frame

	StartedAt time.Time
	EndedAt   time.Time

	log    logging.Logger
	state  State
	failed error
}

// New returns an unbuilt run. A nil logger discards output.
func New(cfg model.RunConfig, log logging.Logger) *Run {
	if log == nil {
		log = logging.Discard()
	}
	defaults := DefaultConfig()
	if cfg.Bins <= 0 {
		cfg.Bins = defaults.Bins
	}
	if cfg.Output == "" {
		cfg.Output = defaults.Output
	}
	if cfg.Components == nil {
		cfg.Components = defaults.Components
	}
	return &Run{Config: cfg, log: log}
}

// State returns the current stage.
func (r *Run) State() State { return r.state }

// Err returns the failure that halted the run, if any.
func (r *Run) Err() error { return r.failed }

// Build constructs the model from decl.
func (r *Run) Build(decl builder.Declaration) error {
	return r.advance("build", Unbuilt, ModelBuilt, func() error {
		r.StartedAt = time.Now()
		m, err := builder.FromDeclaration(decl)
		if err != nil {
			return err
		}
		r.Model = m
		r.log.Infof("built model %s over %s with %d free parameters", m.Root.Name(), m.Observable.Name, len(m.FreeParams()))
		return nil
	})
}

// Generate draws the toy dataset from the model at its initial values.
func (r *Run) Generate() error {
	return r.advance("generate", ModelBuilt, DataGenerated, func() error {
		gen := generator.New(r.Config.Seed)
		gen.Progress = r.Progress
		start := time.Now()
		var d *dataset.Dataset
		var err error
		if r.Config.Poisson {
			d, err = gen.GenerateExtended(r.Model)
		} else {
			d, err = gen.Generate(r.Model, r.Config.Events)
		}
		if err != nil {
			return err
		}
		r.Data = d
		r.log.Infof("generated %d events in %s", d.Len(), time.Since(start).Round(time.Millisecond))
		if r.Config.DumpToys != "" {
			if err := d.Write(r.Config.DumpToys); err != nil {
				return err
			}
			r.log.Infof("wrote toys to %s", r.Config.DumpToys)
		}
		return nil
	})
}

// Fit runs the extended maximum-likelihood fit.
func (r *Run) Fit() error {
	return r.advance("fit", DataGenerated, Fitted, func() error {
		opts := fit.DefaultOptions()
		opts.Binned = r.Config.Binned
		res, err := fit.Fit(r.Model, r.Data, opts)
		if err != nil {
			return err
		}
		r.Result = res
		r.log.Infof("fit finished: status %s, %d iterations, -log(L) = %.4f, %s",
			res.Status, res.Iterations, res.MinNLL, res.Elapsed.Round(time.Millisecond))
		for _, w := range res.Warnings {
			r.log.WithField("kind", string(w.Kind)).Warnf("%s", w)
		}
		for _, p := range stats.SuspectParams(res, suspectShift) {
			r.log.WithField("param", p.Name).Warnf("suspect result %.6g ± %.2g (initial %.6g, range [%g, %g])",
				p.Value, p.Error, p.Initial, p.Min, p.Max)
		}
		return nil
	})
}

// Report computes chi2/ndof and writes the two-pad figure.
func (r *Run) Report() error {
	return r.advance("report", Fitted, Reported, func() error {
		for _, c := range r.Config.Components {
			if _, ok := r.Model.Density(c); !ok {
				return model.ConfigurationError("report", fmt.Errorf("%w: component %s", model.ErrUndeclared, c))
			}
		}
		frame := report.NewFrame(r.Model.Observable, r.Config.Bins)
		frame.Title = fmt.Sprintf("%s fit", r.Model.Observable.Title)
		frame.AddData("data", r.Data.Histogram(r.Config.Bins))
		for i, c := range r.Config.Components {
			frame.AddModel(r.Model, c, report.ComponentStyle(c, i), c)
		}
		frame.AddModel(r.Model, r.Model.Root.Name(), report.StyleModel)
		frame.AddParamBox(r.Result)

		gof, err := frame.ChiSquare(r.Result.NFloat())
		if err != nil {
			return model.ConfigurationError("report", err)
		}
		pull, err := frame.PullFrame()
		if err != nil {
			return model.ConfigurationError("report", err)
		}
		r.GOF, r.Main, r.Pull = gof, frame, pull
		r.log.Infof("chi2/ndof = %.4f (chi2 %.2f, ndof %d, p-value %.3g)", gof.Ratio(), gof.Chi2, gof.NDOF, gof.PValue)

		if err := report.Compose(frame, pull, r.Config.Output); err != nil {
			return err
		}
		r.EndedAt = time.Now()
		r.log.Infof("wrote %s", r.Config.Output)
		return nil
	})
}

// Execute performs every remaining transition in order.
func (r *Run) Execute(decl builder.Declaration) error {
	steps := []func() error{
		func() error { return r.Build(decl) },
		r.Generate,
		r.Fit,
		r.Report,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Record returns the finished run in the form the history store keeps.
func (r *Run) Record() (model.RunRecord, []model.ParamRecord, error) {
	if r.state != Reported {
		return model.RunRecord{}, nil, model.StateError("record", fmt.Errorf("run is %s, not %s", r.state, Reported))
	}
	rec := model.RunRecord{
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		ModelPath: r.Config.ModelPath,
		Events:    r.Data.Len(),
		Seed:      r.Config.Seed,
		Status:    r.Result.Status,
		MinNLL:    r.Result.MinNLL,
		Chi2NDOF:  r.GOF.Ratio(),
		NFloat:    r.Result.NFloat(),
		Output:    r.Config.Output,
	}
	params := make([]model.ParamRecord, len(r.Result.Params))
	for i, p := range r.Result.Params {
		params[i] = model.ParamRecord{
			Name:    p.Name,
			Initial: p.Initial,
			Value:   p.Value,
			Error:   p.Error,
			Min:     p.Min,
			Max:     p.Max,
			AtLimit: p.AtLimit,
		}
	}
	return rec, params, nil
}

func (r *Run) advance(op string, from, to State, step func() error) error {
	if r.failed != nil {
		return model.StateError(op, fmt.Errorf("run halted after failure: %w", r.failed))
	}
	if r.state != from {
		return model.StateError(op, fmt.Errorf("run is %s, %s needs %s", r.state, op, from))
	}
	if err := step(); err != nil {
		r.failed = err
		r.log.WithField("stage", op).Errorf("%v", err)
		return err
	}
	r.state = to
	return nil
}
