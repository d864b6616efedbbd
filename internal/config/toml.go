// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Run RunConfig `toml:"run"`
}

// RunConfig maps run-related settings. Nil fields were not set.
type RunConfig struct {
	Model      *string   `toml:"model"`
	Events     *int      `toml:"events"`
	Seed       *uint64   `toml:"seed"`
	Bins       *int      `toml:"bins"`
	Output     *string   `toml:"output"`
	Components *[]string `toml:"components"`
	Binned     *int      `toml:"binned"`
	Poisson    *bool     `toml:"poisson"`
	Preview    *bool     `toml:"preview"`
	History    *bool     `toml:"history"`
	LogLevel   *string   `toml:"log-level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("failed to decode config: unknown key %s", undecoded[0])
	}
	return cfg, nil
}
