package solver

import (
	"math"

	"github.com/iwvelando/whatif/pkg/mathutil"
	"gonum.org/v1/gonum/diff/fd"
)

const (
	armijoFactor  = 1e-4
	maxBacktracks = 60
	stepGrowth    = 1.5
	maxStep       = 1e12
)

// grgSolver minimizes a quadratic-penalty objective by projected gradient
// descent with Armijo backtracking, raising the penalty weight until the
// iterate is feasible. Only continuous variables move.
type grgSolver struct {
	ev     *evaluator
	opts   Options
	report func(iteration int) bool
	free   []int
}

func (g *grgSolver) penalized(c *candidate, mu float64) float64 {
	if !mathutil.IsFinite(c.score) || !mathutil.IsFinite(c.sumSquares) {
		return math.Inf(1)
	}
	s := c.score
	if g.ev.problem.Objective.Kind == Target {
		s *= s
	}
	return s + mu*c.sumSquares
}

func (g *grgSolver) gradient(x []float64, mu float64) ([]float64, error) {
	var evalErr error
	f := func(z []float64) float64 {
		if evalErr != nil {
			return math.NaN()
		}
		trial := append([]float64(nil), x...)
		for i, j := range g.free {
			trial[j] = z[i]
		}
		c, err := g.ev.evaluate(trial)
		if err != nil {
			evalErr = err
			return math.NaN()
		}
		return g.penalized(c, mu)
	}

	z := make([]float64, len(g.free))
	for i, j := range g.free {
		z[i] = x[j]
	}
	grad := fd.Gradient(nil, f, z, &fd.Settings{
		Formula: fd.Central,
		Step:    g.opts.GRG.DiffStep,
	})
	return grad, evalErr
}

// projectGradient zeroes components that would push past an active bound.
func (g *grgSolver) projectGradient(grad, x []float64) {
	for i, j := range g.free {
		b := g.ev.bounds[j]
		if (x[j] <= b.lower && grad[i] > 0) || (x[j] >= b.upper && grad[i] < 0) {
			grad[i] = 0
		}
	}
}

func (g *grgSolver) run(start []float64) (Status, int, error) {
	for j, b := range g.ev.bounds {
		if b.kind == Continuous {
			g.free = append(g.free, j)
		}
	}

	cur, err := g.ev.evaluate(start)
	if err != nil {
		return "", 0, err
	}
	if len(g.free) == 0 {
		if cur.feasible {
			return StatusOptimal, 0, nil
		}
		return StatusInfeasible, 0, nil
	}

	x := cur.x
	mu := g.opts.GRG.PenaltyWeight
	iter := 0
	converged := false

	for {
		fx := g.penalized(cur, mu)
		step := g.opts.GRG.InitialStep
		converged = false

		for iter < g.opts.MaxIterations {
			if iter > 0 && !g.report(iter) {
				return StatusCancelled, iter, nil
			}
			iter++

			grad, err := g.gradient(x, mu)
			if err != nil {
				return "", iter, err
			}
			if !mathutil.AllFinite(grad) {
				converged = true
				break
			}
			g.projectGradient(grad, x)
			if mathutil.MaxAbs(grad) < g.opts.Tolerance {
				converged = true
				break
			}

			var next *candidate
			var fNext float64
			t := step
			for k := 0; k < maxBacktracks; k++ {
				trial := append([]float64(nil), x...)
				for i, j := range g.free {
					trial[j] = x[j] - t*grad[i]
				}
				c, err := g.ev.evaluate(trial)
				if err != nil {
					return "", iter, err
				}
				decrease := 0.0
				for i, j := range g.free {
					decrease += grad[i] * (x[j] - c.x[j])
				}
				if f := g.penalized(c, mu); f <= fx-armijoFactor*decrease {
					next, fNext = c, f
					break
				}
				t /= 2
			}
			if next == nil {
				converged = true
				break
			}

			moved := 0.0
			for _, j := range g.free {
				moved = math.Max(moved, math.Abs(next.x[j]-x[j]))
			}
			fPrev := fx
			x, cur, fx = next.x, next, fNext
			step = math.Min(stepGrowth*t, maxStep)

			if moved <= g.opts.Tolerance*(1+mathutil.MaxAbs(x)) &&
				math.Abs(fPrev-fx) <= g.opts.Tolerance*(1+math.Abs(fx)) {
				converged = true
				break
			}
		}

		if cur.feasible || mu >= g.opts.GRG.MaxPenalty || iter >= g.opts.MaxIterations {
			break
		}
		mu = math.Min(mu*g.opts.GRG.PenaltyGrowth, g.opts.GRG.MaxPenalty)
	}

	switch {
	case !converged && iter >= g.opts.MaxIterations:
		return StatusIterationLimit, iter, nil
	case g.ev.bestFeasible != nil:
		return StatusOptimal, iter, nil
	default:
		return StatusInfeasible, iter, nil
	}
}
