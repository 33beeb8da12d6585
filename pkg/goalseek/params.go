// Package goalseek finds the value of one input cell that drives a target
// cell to a desired value, using Newton's method with a bisection fallback.
package goalseek

import (
	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/validation"
)

// Params configures a goal seek run.
type Params struct {
	TargetCell   model.CellRef `json:"targetCell" yaml:"targetCell"`
	TargetValue  float64       `json:"targetValue" yaml:"targetValue"`
	ChangingCell model.CellRef `json:"changingCell" yaml:"changingCell"`

	MaxIterations int     `json:"maxIterations" yaml:"maxIterations"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance"`
	// DerivativeStep fixes the finite-difference step. Zero selects
	// max(|x|*0.001, 0.001), recomputed at every iteration.
	DerivativeStep       float64 `json:"derivativeStep" yaml:"derivativeStep"`
	MinDerivative        float64 `json:"minDerivative" yaml:"minDerivative"`
	MaxBracketExpansions int     `json:"maxBracketExpansions" yaml:"maxBracketExpansions"`
}

// NewParams returns Params with every tuning knob at its default.
func NewParams(target model.CellRef, value float64, changing model.CellRef) Params {
	p := DefaultParams()
	p.TargetCell = target
	p.TargetValue = value
	p.ChangingCell = changing
	return p
}

// DefaultParams returns the tuning defaults with no cells set.
func DefaultParams() Params {
	return Params{
		MaxIterations:        constants.GoalSeekMaxIterations,
		Tolerance:            constants.GoalSeekTolerance,
		MinDerivative:        constants.GoalSeekMinDerivative,
		MaxBracketExpansions: constants.GoalSeekMaxBracketExpansions,
	}
}

// Validate checks every precondition. It never touches a model.
func (p Params) Validate() error {
	if err := validation.CellRequired("targetCell", p.TargetCell); err != nil {
		return err
	}
	if err := validation.CellRequired("changingCell", p.ChangingCell); err != nil {
		return err
	}
	if err := validation.Finite("targetValue", p.TargetValue); err != nil {
		return err
	}
	if err := validation.PositiveInt("maxIterations", p.MaxIterations); err != nil {
		return err
	}
	if err := validation.PositiveFinite("tolerance", p.Tolerance); err != nil {
		return err
	}
	if err := validation.PositiveFinite("minDerivative", p.MinDerivative); err != nil {
		return err
	}
	if err := validation.NonNegativeFinite("derivativeStep", p.DerivativeStep); err != nil {
		return err
	}
	return validation.NonNegativeInt("maxBracketExpansions", p.MaxBracketExpansions)
}

// step returns the finite-difference step for input x.
func (p Params) step(x float64) float64 {
	if p.DerivativeStep > 0 {
		return p.DerivativeStep
	}
	h := x * constants.GoalSeekRelativeStep
	if h < 0 {
		h = -h
	}
	if h < constants.GoalSeekMinStep {
		h = constants.GoalSeekMinStep
	}
	return h
}
