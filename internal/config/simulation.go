package config

import (
	"fmt"
	"strings"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/montecarlo"
)

// SimulationConfig describes a Monte Carlo run.
type SimulationConfig struct {
	Iterations    int               `json:"iterations,omitempty" yaml:"iterations,omitempty" mapstructure:"iterations"`
	Seed          uint64            `json:"seed" yaml:"seed" mapstructure:"seed"`
	HistogramBins int               `json:"histogramBins,omitempty" yaml:"histogramBins,omitempty" mapstructure:"histogramBins"`
	Inputs        []SimulationInput `json:"inputs" yaml:"inputs" mapstructure:"inputs"`
	OutputCells   []string          `json:"outputCells" yaml:"outputCells" mapstructure:"outputCells"`
	Correlations  [][]float64       `json:"correlations,omitempty" yaml:"correlations,omitempty" mapstructure:"correlations"`
	// KeepSamples includes raw output samples in reports.
	KeepSamples bool `json:"keepSamples,omitempty" yaml:"keepSamples,omitempty" mapstructure:"keepSamples"`
}

// SimulationInput binds a distribution to an input cell.
type SimulationInput struct {
	Cell         string                      `json:"cell" yaml:"cell" mapstructure:"cell"`
	Distribution montecarlo.DistributionSpec `json:"distribution" yaml:"distribution" mapstructure:"distribution"`
}

// Normalize fills the iteration and bin counts when unset.
func (s *SimulationConfig) Normalize() {
	if s == nil {
		return
	}
	defaults := montecarlo.NewConfig()
	if s.Iterations == 0 {
		s.Iterations = defaults.Iterations
	}
	if s.HistogramBins == 0 {
		s.HistogramBins = defaults.HistogramBins
	}
	for i := range s.Inputs {
		s.Inputs[i].Cell = strings.TrimSpace(s.Inputs[i].Cell)
	}
	for i := range s.OutputCells {
		s.OutputCells[i] = strings.TrimSpace(s.OutputCells[i])
	}
}

// Validate returns an error when the simulation cannot run.
func (s *SimulationConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("simulation configuration cannot be nil")
	}
	_, err := s.Build()
	return err
}

// Build converts the section into a validated montecarlo.Config.
func (s *SimulationConfig) Build() (montecarlo.Config, error) {
	s.Normalize()
	cfg := montecarlo.NewConfig()
	cfg.Iterations = s.Iterations
	cfg.HistogramBins = s.HistogramBins
	cfg.Seed = s.Seed
	cfg.Correlations = s.Correlations

	for i, in := range s.Inputs {
		d, err := in.Distribution.Build()
		if err != nil {
			return montecarlo.Config{}, model.WithContext(err, "input %d (%s)", i, in.Cell)
		}
		cfg.Inputs = append(cfg.Inputs, montecarlo.Input{Cell: model.CellRef(in.Cell), Distribution: d})
	}
	for _, out := range s.OutputCells {
		cfg.OutputCells = append(cfg.OutputCells, model.CellRef(out))
	}

	if err := cfg.Validate(); err != nil {
		return montecarlo.Config{}, err
	}
	return cfg, nil
}
