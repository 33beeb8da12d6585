package config

import (
	"fmt"
	"strings"

	"github.com/iwvelando/whatif/pkg/goalseek"
	"github.com/iwvelando/whatif/pkg/model"
)

// GoalSeekConfig asks for the changing cell value that drives the target
// cell to TargetValue.
type GoalSeekConfig struct {
	TargetCell   string   `json:"targetCell" yaml:"targetCell" mapstructure:"targetCell"`
	TargetValue  *float64 `json:"targetValue" yaml:"targetValue" mapstructure:"targetValue"`
	ChangingCell string   `json:"changingCell" yaml:"changingCell" mapstructure:"changingCell"`

	MaxIterations        int     `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	Tolerance            float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	DerivativeStep       float64 `json:"derivativeStep,omitempty" yaml:"derivativeStep,omitempty" mapstructure:"derivativeStep"`
	MinDerivative        float64 `json:"minDerivative,omitempty" yaml:"minDerivative,omitempty" mapstructure:"minDerivative"`
	MaxBracketExpansions int     `json:"maxBracketExpansions,omitempty" yaml:"maxBracketExpansions,omitempty" mapstructure:"maxBracketExpansions"`
}

// Normalize fills unset tuning knobs with the goal seek defaults.
func (g *GoalSeekConfig) Normalize() {
	if g == nil {
		return
	}
	g.TargetCell = strings.TrimSpace(g.TargetCell)
	g.ChangingCell = strings.TrimSpace(g.ChangingCell)

	defaults := goalseek.DefaultParams()
	if g.MaxIterations == 0 {
		g.MaxIterations = defaults.MaxIterations
	}
	if g.Tolerance == 0 {
		g.Tolerance = defaults.Tolerance
	}
	if g.MinDerivative == 0 {
		g.MinDerivative = defaults.MinDerivative
	}
	if g.MaxBracketExpansions == 0 {
		g.MaxBracketExpansions = defaults.MaxBracketExpansions
	}
}

// Validate returns an error when the goal seek request cannot run.
func (g *GoalSeekConfig) Validate() error {
	if g == nil {
		return fmt.Errorf("goal seek configuration cannot be nil")
	}
	g.Normalize()
	if g.TargetValue == nil {
		return model.InvalidParams("targetValue is required")
	}
	return g.Params().Validate()
}

// Params converts the section to goal seek parameters.
func (g *GoalSeekConfig) Params() goalseek.Params {
	p := goalseek.NewParams(model.CellRef(g.TargetCell), 0, model.CellRef(g.ChangingCell))
	if g.TargetValue != nil {
		p.TargetValue = *g.TargetValue
	}
	p.MaxIterations = g.MaxIterations
	p.Tolerance = g.Tolerance
	p.DerivativeStep = g.DerivativeStep
	p.MinDerivative = g.MinDerivative
	p.MaxBracketExpansions = g.MaxBracketExpansions
	return p
}
