package solver

import (
	"math"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/validation"
)

// bound is a normalized variable domain.
type bound struct {
	lower, upper float64
	kind         VarKind
}

func (b bound) discrete() bool { return b.kind == Integer || b.kind == Binary }

// normalizeVariables rounds integer bounds inward and forces binary
// variables to [0, 1].
func normalizeVariables(vars []VarSpec) ([]bound, error) {
	out := make([]bound, len(vars))
	for i, v := range vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
			return nil, model.InvalidParams("variable %d has a NaN bound", i)
		}
		if math.IsInf(v.Lower, 1) || math.IsInf(v.Upper, -1) {
			return nil, model.InvalidParams("variable %d has an empty domain [%v, %v]", i, v.Lower, v.Upper)
		}
		if v.Lower > v.Upper {
			return nil, model.InvalidParams("variable %d lower bound %v exceeds upper bound %v", i, v.Lower, v.Upper)
		}
		kind := v.Kind
		if kind == "" {
			kind = Continuous
		}
		b := bound{lower: v.Lower, upper: v.Upper, kind: kind}
		switch kind {
		case Continuous:
		case Integer:
			b.lower = math.Ceil(v.Lower)
			b.upper = math.Floor(v.Upper)
			if b.lower > b.upper {
				return nil, model.InvalidParams("variable %d has no integer in [%v, %v]", i, v.Lower, v.Upper)
			}
		case Binary:
			b.lower, b.upper = 0, 1
		default:
			return nil, model.InvalidParams("variable %d has unknown kind %q", i, v.Kind)
		}
		out[i] = b
	}
	return out, nil
}

func validateProblem(m model.SolverModel, p Problem) ([]bound, error) {
	n := m.VariableCount()
	if n <= 0 {
		return nil, model.InvalidParams("model exposes no decision variables")
	}
	if len(p.Variables) != n {
		return nil, model.InvalidParams("problem declares %d variables but the model has %d", len(p.Variables), n)
	}

	switch p.Objective.Kind {
	case Maximize, Minimize:
	case Target:
		if err := validation.Finite("objective targetValue", p.Objective.TargetValue); err != nil {
			return nil, err
		}
	default:
		return nil, model.InvalidParams("unknown objective kind %q", p.Objective.Kind)
	}
	if err := validation.NonNegativeFinite("objective targetTolerance", p.Objective.TargetTolerance); err != nil {
		return nil, err
	}

	residuals := m.ConstraintCount()
	for i, c := range p.Constraints {
		switch c.Relation {
		case LessEqual, GreaterEqual, Equal:
		default:
			return nil, model.InvalidParams("constraint %d has unknown relation %q", i, c.Relation)
		}
		limit := residuals
		if c.OnVariable {
			limit = n
		}
		if c.Index < 0 || c.Index >= limit {
			return nil, model.InvalidParams("constraint %d index %d out of range [0,%d)", i, c.Index, limit)
		}
		if err := validation.Finite("constraint rhs", c.RHS); err != nil {
			return nil, model.WithContext(err, "constraint %d", i)
		}
		if err := validation.NonNegativeFinite("constraint tolerance", c.Tolerance); err != nil {
			return nil, model.WithContext(err, "constraint %d", i)
		}
	}

	return normalizeVariables(p.Variables)
}

func validateOptions(o Options) error {
	if err := validation.PositiveInt("maxIterations", o.MaxIterations); err != nil {
		return err
	}
	if err := validation.PositiveFinite("tolerance", o.Tolerance); err != nil {
		return err
	}
	if err := validation.NonNegativeFinite("feasibilityTolerance", o.FeasibilityTolerance); err != nil {
		return err
	}

	switch o.Method {
	case MethodSimplex:
		if err := validation.PositiveInt("simplex maxNodes", o.Simplex.MaxNodes); err != nil {
			return err
		}
		return validation.PositiveFinite("simplex diffStep", o.Simplex.DiffStep)
	case MethodGRG:
		g := o.GRG
		if err := validation.PositiveFinite("grg penaltyWeight", g.PenaltyWeight); err != nil {
			return err
		}
		if err := validation.PositiveFinite("grg penaltyGrowth", g.PenaltyGrowth); err != nil {
			return err
		}
		if g.PenaltyGrowth <= 1 {
			return model.InvalidParams("grg penaltyGrowth must exceed 1, got %v", g.PenaltyGrowth)
		}
		if err := validation.PositiveFinite("grg maxPenalty", g.MaxPenalty); err != nil {
			return err
		}
		if g.MaxPenalty < g.PenaltyWeight {
			return model.InvalidParams("grg maxPenalty %v is below penaltyWeight %v", g.MaxPenalty, g.PenaltyWeight)
		}
		if err := validation.PositiveFinite("grg initialStep", g.InitialStep); err != nil {
			return err
		}
		return validation.PositiveFinite("grg diffStep", g.DiffStep)
	case MethodEvolutionary:
		e := o.Evolutionary
		if e.PopulationSize < 2 {
			return model.InvalidParams("evolutionary populationSize must be at least 2, got %d", e.PopulationSize)
		}
		if err := probability("evolutionary mutationRate", e.MutationRate); err != nil {
			return err
		}
		if err := probability("evolutionary crossoverRate", e.CrossoverRate); err != nil {
			return err
		}
		if e.EliteCount < 0 || e.EliteCount >= e.PopulationSize {
			return model.InvalidParams("evolutionary eliteCount must be in [0,%d), got %d", e.PopulationSize, e.EliteCount)
		}
		if err := validation.PositiveInt("evolutionary tournamentSize", e.TournamentSize); err != nil {
			return err
		}
		if err := validation.PositiveInt("evolutionary patience", e.Patience); err != nil {
			return err
		}
		return validation.PositiveFinite("evolutionary searchRadius", e.SearchRadius)
	default:
		return model.InvalidParams("unknown solver method %q", o.Method)
	}
}

func probability(name string, v float64) error {
	if err := validation.NonNegativeFinite(name, v); err != nil {
		return err
	}
	if v > 1 {
		return model.InvalidParams("%s must be at most 1, got %v", name, v)
	}
	return nil
}
