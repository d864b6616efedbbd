package pipeline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/massfit/internal/builder"
	"github.com/verte-zerg/massfit/internal/dataset"
	"github.com/verte-zerg/massfit/internal/logging"
	"github.com/verte-zerg/massfit/internal/model"
)

func smallDecl(t *testing.T) builder.Declaration {
	t.Helper()
	d, err := builder.ReferenceWith(builder.Overrides{
		"nsig": {Value: builder.Ptr(2e4), Min: builder.Ptr(0), Max: builder.Ptr(1e5)},
		"nbkg": {Value: builder.Ptr(1e4), Min: builder.Ptr(0), Max: builder.Ptr(1e5)},
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	return d
}

func smallConfig(dir string) model.RunConfig {
	cfg := DefaultConfig()
	cfg.Events = 30000
	cfg.Seed = 5
	cfg.Binned = 120
	cfg.Output = filepath.Join(dir, "fit.png")
	return cfg
}

func TestExecuteRunsEveryStage(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a full fit")
	}
	dir := t.TempDir()
	cfg := smallConfig(dir)
	cfg.DumpToys = filepath.Join(dir, "toys.txt")
	var logs bytes.Buffer
	log, err := logging.New(&logs, "info")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	run := New(cfg, log)
	if err := run.Execute(smallDecl(t)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if run.State() != Reported {
		t.Fatalf("state = %s, want %s", run.State(), Reported)
	}
	if run.Data.Len() != 30000 {
		t.Fatalf("events = %d", run.Data.Len())
	}
	if run.Result.NFloat() != 9 || run.GOF.NDOF != cfg.Bins-9 {
		t.Fatalf("nfloat %d, ndof %d", run.Result.NFloat(), run.GOF.NDOF)
	}
	if r := run.GOF.Ratio(); r < 0.5 || r > 2 {
		t.Fatalf("chi2/ndof = %.3f", r)
	}
	if info, err := os.Stat(cfg.Output); err != nil || info.Size() == 0 {
		t.Fatalf("expected figure at %s: %v", cfg.Output, err)
	}
	toys, err := dataset.Load(cfg.DumpToys, run.Model.Observable)
	if err != nil || toys.Len() != 30000 {
		t.Fatalf("dumped toys: %v", err)
	}
	if !strings.Contains(logs.String(), "chi2/ndof") {
		t.Fatalf("expected chi2/ndof in log:\n%s", logs.String())
	}

	rec, params, err := run.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Events != 30000 || rec.NFloat != 9 || len(params) != 9 {
		t.Fatalf("unexpected record %+v with %d params", rec, len(params))
	}
	if err := run.Fit(); !model.IsKind(err, model.KindState) {
		t.Fatalf("expected state error refitting, got %v", err)
	}
}

func TestTransitionsOutOfOrder(t *testing.T) {
	run := New(smallConfig(t.TempDir()), nil)
	for name, step := range map[string]func() error{
		"generate": run.Generate,
		"fit":      run.Fit,
		"report":   run.Report,
	} {
		if err := step(); !model.IsKind(err, model.KindState) {
			t.Fatalf("%s before build: expected state error, got %v", name, err)
		}
	}
	if run.Err() != nil {
		t.Fatalf("refused transitions must not fail the run")
	}
	if err := run.Build(smallDecl(t)); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := run.Fit(); !model.IsKind(err, model.KindState) {
		t.Fatalf("fit without data: expected state error, got %v", err)
	}
	if _, _, err := run.Record(); !model.IsKind(err, model.KindState) {
		t.Fatalf("record before report: expected state error, got %v", err)
	}
}

func TestFailureHaltsRun(t *testing.T) {
	run := New(smallConfig(t.TempDir()), nil)
	bad := smallDecl(t)
	bad.Root = "missing"
	err := run.Build(bad)
	if !model.IsKind(err, model.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if run.State() != Unbuilt || run.Model != nil {
		t.Fatalf("failed build must not advance")
	}
	err = run.Build(smallDecl(t))
	if !model.IsKind(err, model.KindState) {
		t.Fatalf("expected state error after failure, got %v", err)
	}
	if !errors.Is(err, model.ErrUndeclared) {
		t.Fatalf("expected original failure in chain, got %v", err)
	}
}

func TestGenerateFailureIsGenerationError(t *testing.T) {
	cfg := smallConfig(t.TempDir())
	cfg.Events = 0
	run := New(cfg, nil)
	if err := run.Build(smallDecl(t)); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := run.Generate(); !model.IsKind(err, model.KindGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if run.Data != nil || run.Err() == nil {
		t.Fatalf("failed generation must halt the run")
	}
}

func TestReportRejectsUnknownComponent(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a full fit")
	}
	cfg := smallConfig(t.TempDir())
	cfg.Components = []string{"bkg", "peak"}
	run := New(cfg, nil)
	err := run.Execute(smallDecl(t))
	if !model.IsKind(err, model.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if run.State() != Fitted {
		t.Fatalf("state = %s, want %s", run.State(), Fitted)
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Fatalf("no figure should be written")
	}
}

func TestStateString(t *testing.T) {
	if DataGenerated.String() != "data generated" || State(42).String() != "state(42)" {
		t.Fatalf("unexpected state names")
	}
}
