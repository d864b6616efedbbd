// Package model defines shared data structures.
package model

import "time"

// RunConfig defines the settings of one generate-fit-report run.
type RunConfig struct {
	ModelPath  string
	Events     int
	Seed       uint64
	Bins       int
	Output     string
	Components []string
	Binned     int
	Poisson    bool
	Preview    bool
	History    bool
	DumpToys   string
}

// HistoryConfig defines filters for listing recorded fits.
type HistoryConfig struct {
	Last  int
	Param string
}

// RunRecord summarizes a recorded fit.
type RunRecord struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	ModelPath string
	Events    int
	Seed      uint64
	Status    string
	MinNLL    float64
	Chi2NDOF  float64
	NFloat    int
	Output    string
}

// ParamRecord stores the fitted state of one parameter in a recorded fit.
type ParamRecord struct {
	Name    string
	Initial float64
	Value   float64
	Error   float64
	Min     float64
	Max     float64
	AtLimit bool
}

// ParamPoint is one value of a parameter across recorded fits.
type ParamPoint struct {
	RunID   string
	EndedAt time.Time
	Value   float64
	Error   float64
}
