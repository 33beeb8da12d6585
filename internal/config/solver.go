package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/solver"
	"github.com/iwvelando/whatif/pkg/validation"
)

// SolverConfig lays a solver problem out on workbook cells. Tuning knobs
// left at zero take the solver defaults.
type SolverConfig struct {
	Method          string             `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	ObjectiveCell   string             `json:"objectiveCell" yaml:"objectiveCell" mapstructure:"objectiveCell"`
	Goal            string             `json:"goal,omitempty" yaml:"goal,omitempty" mapstructure:"goal"`
	TargetValue     float64            `json:"targetValue,omitempty" yaml:"targetValue,omitempty" mapstructure:"targetValue"`
	TargetTolerance float64            `json:"targetTolerance,omitempty" yaml:"targetTolerance,omitempty" mapstructure:"targetTolerance"`
	Variables       []SolverVariable   `json:"variables" yaml:"variables" mapstructure:"variables"`
	Constraints     []SolverConstraint `json:"constraints,omitempty" yaml:"constraints,omitempty" mapstructure:"constraints"`

	MaxIterations        int     `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	Tolerance            float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	FeasibilityTolerance float64 `json:"feasibilityTolerance,omitempty" yaml:"feasibilityTolerance,omitempty" mapstructure:"feasibilityTolerance"`
	ApplySolution        *bool   `json:"applySolution,omitempty" yaml:"applySolution,omitempty" mapstructure:"applySolution"`

	MaxNodes       int     `json:"maxNodes,omitempty" yaml:"maxNodes,omitempty" mapstructure:"maxNodes"`
	PenaltyWeight  float64 `json:"penaltyWeight,omitempty" yaml:"penaltyWeight,omitempty" mapstructure:"penaltyWeight"`
	PopulationSize int     `json:"populationSize,omitempty" yaml:"populationSize,omitempty" mapstructure:"populationSize"`
	MutationRate   float64 `json:"mutationRate,omitempty" yaml:"mutationRate,omitempty" mapstructure:"mutationRate"`
	Patience       int     `json:"patience,omitempty" yaml:"patience,omitempty" mapstructure:"patience"`
	SearchRadius   float64 `json:"searchRadius,omitempty" yaml:"searchRadius,omitempty" mapstructure:"searchRadius"`
	Seed           uint64  `json:"seed,omitempty" yaml:"seed,omitempty" mapstructure:"seed"`
}

// SolverVariable is a decision variable cell. Missing bounds are open.
type SolverVariable struct {
	Cell  string   `json:"cell" yaml:"cell" mapstructure:"cell"`
	Lower *float64 `json:"lower,omitempty" yaml:"lower,omitempty" mapstructure:"lower"`
	Upper *float64 `json:"upper,omitempty" yaml:"upper,omitempty" mapstructure:"upper"`
	Kind  string   `json:"kind,omitempty" yaml:"kind,omitempty" mapstructure:"kind"`
}

// SolverConstraint bounds either a formula cell or a variable cell.
// Exactly one of Cell and Variable is set.
type SolverConstraint struct {
	Cell      string  `json:"cell,omitempty" yaml:"cell,omitempty" mapstructure:"cell"`
	Variable  string  `json:"variable,omitempty" yaml:"variable,omitempty" mapstructure:"variable"`
	Relation  string  `json:"relation" yaml:"relation" mapstructure:"relation"`
	RHS       float64 `json:"rhs" yaml:"rhs" mapstructure:"rhs"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty" mapstructure:"tolerance"`
}

// SolverLayout is a problem resolved against cell references.
type SolverLayout struct {
	Variables       []model.CellRef
	Objective       model.CellRef
	ConstraintCells []model.CellRef
	Problem         solver.Problem
}

// Bind adapts m to the layout.
func (l *SolverLayout) Bind(m model.Model) (*model.CellSolverModel, error) {
	return model.NewCellSolverModel(m, l.Variables, l.Objective, l.ConstraintCells)
}

// CanonicalSolverMethod maps accepted spellings to a solver method.
func CanonicalSolverMethod(value string) solver.Method {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "grg", "grg_nonlinear", "grg-nonlinear", "nonlinear":
		return solver.MethodGRG
	case "simplex", "simplex_lp", "simplex-lp", "lp":
		return solver.MethodSimplex
	case "evolutionary", "ga", "genetic":
		return solver.MethodEvolutionary
	default:
		return solver.Method(strings.ToLower(strings.TrimSpace(value)))
	}
}

func canonicalGoal(value string) solver.ObjectiveKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "max", "maximize":
		return solver.Maximize
	case "min", "minimize":
		return solver.Minimize
	case "target", "value", "valueof":
		return solver.Target
	default:
		return solver.ObjectiveKind(strings.ToLower(strings.TrimSpace(value)))
	}
}

func canonicalKind(value string) solver.VarKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "continuous":
		return solver.Continuous
	case "int", "integer":
		return solver.Integer
	case "bin", "binary":
		return solver.Binary
	default:
		return solver.VarKind(strings.ToLower(strings.TrimSpace(value)))
	}
}

func canonicalRelation(value string) solver.Relation {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "<=", "le", "lte":
		return solver.LessEqual
	case ">=", "ge", "gte":
		return solver.GreaterEqual
	case "=", "==", "eq":
		return solver.Equal
	default:
		return solver.Relation(strings.TrimSpace(value))
	}
}

// Normalize canonicalizes spellings and trims cell references.
func (s *SolverConfig) Normalize() {
	if s == nil {
		return
	}
	s.Method = string(CanonicalSolverMethod(s.Method))
	s.Goal = string(canonicalGoal(s.Goal))
	s.ObjectiveCell = strings.TrimSpace(s.ObjectiveCell)
	for i := range s.Variables {
		s.Variables[i].Cell = strings.TrimSpace(s.Variables[i].Cell)
		s.Variables[i].Kind = string(canonicalKind(s.Variables[i].Kind))
	}
	for i := range s.Constraints {
		c := &s.Constraints[i]
		c.Cell = strings.TrimSpace(c.Cell)
		c.Variable = strings.TrimSpace(c.Variable)
		c.Relation = string(canonicalRelation(c.Relation))
	}
}

// Validate checks the layout. Numeric option ranges are checked by
// solver.Solve.
func (s *SolverConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("solver configuration cannot be nil")
	}
	s.Normalize()
	switch solver.Method(s.Method) {
	case solver.MethodSimplex, solver.MethodGRG, solver.MethodEvolutionary:
	default:
		return model.InvalidParams("solver method %q is not supported", s.Method)
	}
	_, err := s.Layout()
	return err
}

// Layout resolves variables and constraints to cells and builds the
// solver problem. Constraint cells are numbered in first-seen order.
func (s *SolverConfig) Layout() (*SolverLayout, error) {
	s.Normalize()
	if err := validation.CellRequired("objectiveCell", model.CellRef(s.ObjectiveCell)); err != nil {
		return nil, err
	}
	if len(s.Variables) == 0 {
		return nil, model.InvalidParams("at least one variable cell is required")
	}

	layout := &SolverLayout{
		Objective: model.CellRef(s.ObjectiveCell),
		Problem: solver.Problem{
			Objective: solver.Objective{
				Kind:            solver.ObjectiveKind(s.Goal),
				TargetValue:     s.TargetValue,
				TargetTolerance: s.TargetTolerance,
			},
		},
	}

	varIndex := make(map[model.CellRef]int, len(s.Variables))
	for i, v := range s.Variables {
		ref := model.CellRef(v.Cell)
		if err := validation.CellRequired("variable cell", ref); err != nil {
			return nil, model.WithContext(err, "variable %d", i)
		}
		if _, dup := varIndex[ref.Normalize()]; dup {
			return nil, model.InvalidParams("variable cell %s is listed more than once", v.Cell)
		}
		varIndex[ref.Normalize()] = i
		layout.Variables = append(layout.Variables, ref)

		spec := solver.VarSpec{Lower: math.Inf(-1), Upper: math.Inf(1), Kind: solver.VarKind(v.Kind)}
		if v.Lower != nil {
			spec.Lower = *v.Lower
		}
		if v.Upper != nil {
			spec.Upper = *v.Upper
		}
		layout.Problem.Variables = append(layout.Problem.Variables, spec)
	}

	cellIndex := make(map[model.CellRef]int)
	for i, c := range s.Constraints {
		constraint := solver.Constraint{
			Relation:  solver.Relation(c.Relation),
			RHS:       c.RHS,
			Tolerance: c.Tolerance,
		}
		switch {
		case c.Cell != "" && c.Variable != "":
			return nil, model.InvalidParams("constraint %d sets both cell and variable", i)
		case c.Variable != "":
			idx, ok := varIndex[model.CellRef(c.Variable).Normalize()]
			if !ok {
				return nil, model.InvalidParams("constraint %d names %s, which is not a variable cell", i, c.Variable)
			}
			constraint.Index = idx
			constraint.OnVariable = true
		case c.Cell != "":
			ref := model.CellRef(c.Cell)
			if err := validation.CellRequired("constraint cell", ref); err != nil {
				return nil, model.WithContext(err, "constraint %d", i)
			}
			idx, ok := cellIndex[ref.Normalize()]
			if !ok {
				idx = len(layout.ConstraintCells)
				cellIndex[ref.Normalize()] = idx
				layout.ConstraintCells = append(layout.ConstraintCells, ref)
			}
			constraint.Index = idx
		default:
			return nil, model.InvalidParams("constraint %d needs a cell or a variable", i)
		}
		layout.Problem.Constraints = append(layout.Problem.Constraints, constraint)
	}
	return layout, nil
}

// Options builds solver options from the defaults and the section's
// overrides.
func (s *SolverConfig) Options() solver.Options {
	o := solver.DefaultOptions()
	o.Method = CanonicalSolverMethod(s.Method)
	if s.MaxIterations != 0 {
		o.MaxIterations = s.MaxIterations
	}
	if s.Tolerance != 0 {
		o.Tolerance = s.Tolerance
	}
	if s.FeasibilityTolerance != 0 {
		o.FeasibilityTolerance = s.FeasibilityTolerance
	}
	if s.ApplySolution != nil {
		o.ApplySolution = *s.ApplySolution
	}
	if s.MaxNodes != 0 {
		o.Simplex.MaxNodes = s.MaxNodes
	}
	if s.PenaltyWeight != 0 {
		o.GRG.PenaltyWeight = s.PenaltyWeight
		if o.GRG.MaxPenalty < s.PenaltyWeight {
			o.GRG.MaxPenalty = s.PenaltyWeight
		}
	}
	if s.PopulationSize != 0 {
		o.Evolutionary.PopulationSize = s.PopulationSize
	}
	if s.MutationRate != 0 {
		o.Evolutionary.MutationRate = s.MutationRate
	}
	if s.Patience != 0 {
		o.Evolutionary.Patience = s.Patience
	}
	if s.SearchRadius != 0 {
		o.Evolutionary.SearchRadius = s.SearchRadius
	}
	o.Evolutionary.Seed = s.Seed
	return o
}
