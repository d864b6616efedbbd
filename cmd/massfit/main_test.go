package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/verte-zerg/massfit/internal/config"
	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pipeline"
)

func TestValidateConfig(t *testing.T) {
	ok := pipeline.DefaultConfig()
	if err := validateConfig(ok); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	cases := map[string]func(*model.RunConfig){
		"events":     func(c *model.RunConfig) { c.Events = 0 },
		"bins":       func(c *model.RunConfig) { c.Bins = 0 },
		"binned":     func(c *model.RunConfig) { c.Binned = -1 },
		"output":     func(c *model.RunConfig) { c.Output = " " },
		"components": func(c *model.RunConfig) { c.Components = []string{"bkg", ""} },
	}
	for name, mutate := range cases {
		cfg := pipeline.DefaultConfig()
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	poisson := pipeline.DefaultConfig()
	poisson.Events = 0
	poisson.Poisson = true
	if err := validateConfig(poisson); err != nil {
		t.Fatalf("poisson run ignores --events: %v", err)
	}
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("template does not decode: %v", err)
	}
	if cfg.Run.Events != nil {
		t.Fatalf("template values should be commented out")
	}
}

func TestLoadDeclarationDefaultsToReference(t *testing.T) {
	decl, err := loadDeclaration("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if decl.Observable.Name != "D0_LoKi_DTF_M" || decl.Root != "model" {
		t.Fatalf("unexpected declaration %+v", decl.Observable)
	}
}
