package solver

import (
	"math"

	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
)

// candidate is one evaluated point.
type candidate struct {
	x         []float64
	objective float64
	// score is minimized: -objective, objective or |objective - target|.
	score     float64
	violation float64
	// sumSquares is the squared constraint violation used by penalty methods.
	sumSquares float64
	feasible   bool
}

// better applies Deb's rules: feasible beats infeasible, then lower score,
// then lower violation.
func (c *candidate) better(o *candidate) bool {
	if o == nil {
		return true
	}
	if c.feasible != o.feasible {
		return c.feasible
	}
	if c.feasible {
		return c.score < o.score
	}
	return c.violation < o.violation
}

// evaluator writes candidates into the model and keeps the best feasible
// and least-violating points seen.
type evaluator struct {
	m           model.SolverModel
	problem     Problem
	bounds      []bound
	feasTol     float64
	evaluations int

	bestFeasible *candidate
	leastViolate *candidate
}

func newEvaluator(m model.SolverModel, problem Problem, bounds []bound, feasTol float64) *evaluator {
	return &evaluator{m: m, problem: problem, bounds: bounds, feasTol: feasTol}
}

// project clamps x into the bounds and snaps discrete variables.
func (e *evaluator) project(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		b := e.bounds[i]
		switch b.kind {
		case Binary:
			if v >= 0.5 {
				v = 1
			} else {
				v = 0
			}
		case Integer:
			v = math.Round(v)
		}
		out[i] = mathutil.Clamp(v, b.lower, b.upper)
	}
	return out
}

func (e *evaluator) score(obj float64) float64 {
	switch e.problem.Objective.Kind {
	case Maximize:
		return -obj
	case Target:
		return math.Abs(obj - e.problem.Objective.TargetValue)
	default:
		return obj
	}
}

// evaluate projects x, recalculates the model there and scores the result.
// A non-finite objective yields an infeasible candidate with infinite score.
func (e *evaluator) evaluate(x []float64) (*candidate, error) {
	p := e.project(x)
	if err := e.m.WriteVariables(p); err != nil {
		return nil, model.ModelFailuref(err, "writing variables")
	}
	if err := model.Recalculate(e.m); err != nil {
		return nil, err
	}
	e.evaluations++

	obj, err := e.m.Objective()
	if err != nil {
		return nil, model.ModelFailuref(err, "reading objective")
	}

	c := &candidate{x: p, objective: obj}
	residuals := make(map[int]float64)
	for _, con := range e.problem.Constraints {
		var lhs float64
		if con.OnVariable {
			lhs = p[con.Index]
		} else {
			r, ok := residuals[con.Index]
			if !ok {
				r, err = e.m.ConstraintResidual(con.Index)
				if err != nil {
					return nil, model.ModelFailuref(err, "reading constraint %d", con.Index)
				}
				residuals[con.Index] = r
			}
			lhs = r
		}
		v := violation(lhs, con)
		c.violation = math.Max(c.violation, v)
		c.sumSquares += v * v
	}

	if !mathutil.IsFinite(obj) {
		c.score = math.Inf(1)
		c.violation = math.Inf(1)
		c.sumSquares = math.Inf(1)
	} else {
		c.score = e.score(obj)
	}
	c.feasible = c.violation <= e.feasTol

	if c.feasible && c.better(e.bestFeasible) {
		e.bestFeasible = c
	}
	if e.leastViolate == nil || c.violation < e.leastViolate.violation {
		e.leastViolate = c
	}
	return c, nil
}

// violation is how far lhs falls outside the relation, net of tolerance.
func violation(lhs float64, c Constraint) float64 {
	if math.IsNaN(lhs) {
		return math.Inf(1)
	}
	var v float64
	switch c.Relation {
	case LessEqual:
		v = lhs - c.RHS - c.Tolerance
	case GreaterEqual:
		v = c.RHS - lhs - c.Tolerance
	default:
		v = math.Abs(lhs-c.RHS) - c.Tolerance
	}
	return math.Max(v, 0)
}

// targetMet reports whether a feasible candidate hits the target objective.
func (e *evaluator) targetMet(c *candidate) bool {
	return c != nil && c.feasible && e.problem.Objective.Kind == Target &&
		c.score <= e.problem.Objective.TargetTolerance
}

// finish writes the best feasible point back when requested, otherwise the
// original point, and assembles the outcome.
func (e *evaluator) finish(status Status, method Method, iterations int, original []float64, apply bool) (*Outcome, error) {
	out := &Outcome{
		Status:       status,
		Method:       method,
		Iterations:   iterations,
		OriginalVars: append([]float64(nil), original...),
	}

	final := original
	if best := e.bestFeasible; best != nil {
		out.BestVars = append([]float64(nil), best.x...)
		out.BestObjective = best.objective
		out.MaxConstraintViolation = best.violation
		if apply {
			final = best.x
		}
	} else if lv := e.leastViolate; lv != nil && mathutil.IsFinite(lv.violation) {
		out.MaxConstraintViolation = lv.violation
	}

	if err := e.m.WriteVariables(final); err != nil {
		return nil, model.ModelFailuref(err, "writing final variables")
	}
	if err := model.Recalculate(e.m); err != nil {
		return nil, err
	}
	return out, nil
}
