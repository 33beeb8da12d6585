package solver

import (
	"fmt"

	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
	"go.uber.org/zap"
)

// Solve validates the problem and options, runs the selected method and
// leaves the model at the best feasible point when ApplySolution is set,
// otherwise at its original variable values. Parameter problems are reported
// before the model is written.
func Solve(logger *zap.Logger, m model.SolverModel, problem Problem, opts Options) (*Outcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		return nil, model.InvalidParams("solver model is required")
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	bounds, err := validateProblem(m, problem)
	if err != nil {
		return nil, err
	}

	original, err := m.ReadVariables()
	if err != nil {
		return nil, model.ModelFailuref(err, "reading variables")
	}
	if len(original) != len(bounds) {
		return nil, model.ModelFailure(fmt.Errorf("model returned %d variable values, expected %d", len(original), len(bounds)))
	}
	if !mathutil.AllFinite(original) {
		return nil, model.InvalidParams("starting variable values must be finite")
	}

	empty := false
	if opts.Method == MethodSimplex {
		bounds, empty = simplexBounds(bounds)
	}
	ev := newEvaluator(m, problem, bounds, opts.FeasibilityTolerance)
	start := ev.project(original)
	report := func(iteration int) bool {
		if opts.Progress == nil {
			return true
		}
		p := Progress{Method: opts.Method, Iteration: iteration}
		if b := ev.bestFeasible; b != nil {
			p.BestObjective = b.objective
			p.Feasible = true
		}
		return opts.Progress(p)
	}

	logger.Debug("starting solver",
		zap.String("op", "solver.Solve"),
		zap.String("method", string(opts.Method)),
		zap.Int("variables", len(bounds)),
		zap.Int("constraints", len(problem.Constraints)),
	)

	var (
		status     Status
		iterations int
	)
	switch opts.Method {
	case MethodSimplex:
		if empty {
			status = StatusInfeasible
			break
		}
		s := &simplexSolver{logger: logger, m: m, ev: ev, problem: problem, opts: opts, report: report}
		status, iterations, err = s.run(start)
	case MethodGRG:
		g := &grgSolver{ev: ev, opts: opts, report: report}
		status, iterations, err = g.run(start)
	case MethodEvolutionary:
		status, iterations, err = newEvolutionarySolver(ev, opts, report).run(start)
	}
	if err != nil {
		if rerr := restore(m, original); rerr != nil {
			logger.Warn("failed to restore variables after solver error",
				zap.String("op", "solver.Solve"),
				zap.Error(rerr),
			)
		}
		return nil, err
	}

	out, err := ev.finish(status, opts.Method, iterations, original, opts.ApplySolution)
	if err != nil {
		return nil, err
	}

	logger.Info("solver finished",
		zap.String("op", "solver.Solve"),
		zap.String("method", string(opts.Method)),
		zap.String("status", string(out.Status)),
		zap.Int("iterations", out.Iterations),
		zap.Int("evaluations", ev.evaluations),
		zap.Float64("objective", out.BestObjective),
	)
	return out, nil
}

func restore(m model.SolverModel, original []float64) error {
	if err := m.WriteVariables(original); err != nil {
		return err
	}
	return m.Recalculate()
}
