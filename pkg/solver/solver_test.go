package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func linear(coef ...float64) func(x []float64) float64 {
	return func(x []float64) float64 {
		v := 0.0
		for i, c := range coef {
			v += c * x[i]
		}
		return v
	}
}

func options(method Method) Options {
	o := DefaultOptions()
	o.Method = method
	return o
}

func TestSimplexContinuous(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0, 0}, linear(1, 1), linear(1, 1))
	problem := Problem{
		Objective:   Objective{Kind: Maximize},
		Variables:   []VarSpec{NonNegative(), NonNegative()},
		Constraints: []Constraint{{Index: 0, Relation: LessEqual, RHS: 10}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 10, out.BestObjective, 1e-6)
	require.InDelta(t, 10, m.Vars[0]+m.Vars[1], 1e-6)
	require.Equal(t, []float64{0, 0}, out.OriginalVars)
}

func TestSimplexBranchAndBound(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0, 0}, linear(5, 4), linear(6, 4), linear(1, 2))
	intVar := VarSpec{Lower: 0, Upper: math.Inf(1), Kind: Integer}
	problem := Problem{
		Objective: Objective{Kind: Maximize},
		Variables: []VarSpec{intVar, intVar},
		Constraints: []Constraint{
			{Index: 0, Relation: LessEqual, RHS: 24},
			{Index: 1, Relation: LessEqual, RHS: 6},
		},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 20, out.BestObjective, 1e-6)
	require.Equal(t, []float64{4, 0}, out.BestVars)
	require.Equal(t, []float64{4, 0}, m.Vars)
	require.Greater(t, out.Iterations, 1)
}

func TestSimplexOpenLowerBoundDefaultsToZero(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{5}, linear(1), linear(1))
	problem := Problem{
		Objective:   Objective{Kind: Minimize},
		Variables:   []VarSpec{Unbounded()},
		Constraints: []Constraint{{Index: 0, Relation: GreaterEqual, RHS: -3}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 0, out.BestObjective, 1e-9)
	require.InDelta(t, 0, m.Vars[0], 1e-9)
}

func TestSimplexEmptyBoundsInfeasible(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{-4}, linear(1))
	problem := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{{Lower: math.Inf(-1), Upper: -2, Kind: Continuous}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, out.Status)
	require.Equal(t, 0, out.Iterations)
	require.Equal(t, []float64{-4}, m.Vars)
}

func TestSimplexVariableConstraint(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0}, linear(2))
	problem := Problem{
		Objective:   Objective{Kind: Maximize},
		Variables:   []VarSpec{NonNegative()},
		Constraints: []Constraint{{Index: 0, OnVariable: true, Relation: LessEqual, RHS: 7}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 14, out.BestObjective, 1e-6)
	require.InDelta(t, 7, out.BestVars[0], 1e-6)
}

func TestSimplexTarget(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0, 0}, linear(2, 3))
	bounded := VarSpec{Lower: 0, Upper: 10, Kind: Continuous}
	problem := Problem{
		Objective: Objective{Kind: Target, TargetValue: 12, TargetTolerance: 1e-6},
		Variables: []VarSpec{bounded, bounded},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 12, out.BestObjective, 1e-5)
}

func TestSimplexUnbounded(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{1, 2}, linear(1, 0))
	problem := Problem{
		Objective:   Objective{Kind: Maximize},
		Variables:   []VarSpec{NonNegative(), NonNegative()},
		Constraints: []Constraint{{Index: 1, OnVariable: true, Relation: LessEqual, RHS: 5}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusUnbounded, out.Status)
	require.False(t, out.HasSolution())
	require.Equal(t, []float64{1, 2}, m.Vars)
}

func TestSimplexInfeasible(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{2}, linear(1), linear(1))
	problem := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{NonNegative()},
		Constraints: []Constraint{
			{Index: 0, Relation: LessEqual, RHS: 1},
			{Index: 0, Relation: GreaterEqual, RHS: 3},
		},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodSimplex))
	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, out.Status)
	require.Nil(t, out.BestVars)
	require.Equal(t, []float64{2}, m.Vars)
}

func TestApplySolutionFalseRestoresOriginal(t *testing.T) {
	quadratic := func(x []float64) float64 { return (x[0] - 4) * (x[0] - 4) }
	bounded := []VarSpec{{Lower: -10, Upper: 10, Kind: Continuous}}
	cancel := func(Progress) bool { return false }

	tests := []struct {
		name     string
		method   Method
		start    []float64
		model    func(start []float64) *testutil.SolverFuncModel
		problem  Problem
		progress ProgressFunc
		status   Status
	}{
		{
			name:   "simplex optimal",
			method: MethodSimplex,
			start:  []float64{0.25, 1.75},
			model: func(start []float64) *testutil.SolverFuncModel {
				return testutil.NewSolverFuncModel(start, linear(1, 1), linear(1, 1))
			},
			problem: Problem{
				Objective:   Objective{Kind: Maximize},
				Variables:   []VarSpec{NonNegative(), NonNegative()},
				Constraints: []Constraint{{Index: 0, Relation: LessEqual, RHS: 10}},
			},
			status: StatusOptimal,
		},
		{
			name:   "simplex infeasible",
			method: MethodSimplex,
			start:  []float64{2},
			model: func(start []float64) *testutil.SolverFuncModel {
				return testutil.NewSolverFuncModel(start, linear(1), linear(1))
			},
			problem: Problem{
				Objective: Objective{Kind: Minimize},
				Variables: []VarSpec{NonNegative()},
				Constraints: []Constraint{
					{Index: 0, Relation: LessEqual, RHS: 1},
					{Index: 0, Relation: GreaterEqual, RHS: 3},
				},
			},
			status: StatusInfeasible,
		},
		{
			name:   "grg optimal",
			method: MethodGRG,
			start:  []float64{1},
			model: func(start []float64) *testutil.SolverFuncModel {
				return testutil.NewSolverFuncModel(start, quadratic)
			},
			problem: Problem{Objective: Objective{Kind: Minimize}, Variables: bounded},
			status:  StatusOptimal,
		},
		{
			name:   "grg cancelled",
			method: MethodGRG,
			start:  []float64{1},
			model: func(start []float64) *testutil.SolverFuncModel {
				return testutil.NewSolverFuncModel(start, quadratic)
			},
			problem:  Problem{Objective: Objective{Kind: Minimize}, Variables: bounded},
			progress: cancel,
			status:   StatusCancelled,
		},
		{
			name:   "evolutionary cancelled",
			method: MethodEvolutionary,
			start:  []float64{1},
			model: func(start []float64) *testutil.SolverFuncModel {
				return testutil.NewSolverFuncModel(start, quadratic)
			},
			problem:  Problem{Objective: Objective{Kind: Minimize}, Variables: bounded},
			progress: cancel,
			status:   StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := append([]float64(nil), tt.start...)
			m := tt.model(start)
			opts := options(tt.method)
			opts.ApplySolution = false
			opts.Progress = tt.progress

			out, err := Solve(zap.NewNop(), m, tt.problem, opts)
			require.NoError(t, err)
			require.Equal(t, tt.status, out.Status)
			require.Greater(t, m.Writes, 0)
			require.Equal(t, tt.start, m.Vars)
		})
	}

	t.Run("evolutionary full run", func(t *testing.T) {
		start := []float64{1}
		m := testutil.NewSolverFuncModel(append([]float64(nil), start...), quadratic)
		opts := options(MethodEvolutionary)
		opts.ApplySolution = false
		opts.Evolutionary.Seed = 11

		out, err := Solve(zap.NewNop(), m, Problem{Objective: Objective{Kind: Minimize}, Variables: bounded}, opts)
		require.NoError(t, err)
		require.True(t, out.HasSolution())
		require.Equal(t, start, m.Vars)
	})
}

func TestGRGUnconstrained(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0, 0}, func(x []float64) float64 {
		return (x[0]-3)*(x[0]-3) + (x[1]+1)*(x[1]+1)
	})
	problem := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{Unbounded(), Unbounded()},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodGRG))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 3, out.BestVars[0], 1e-4)
	require.InDelta(t, -1, out.BestVars[1], 1e-4)
	require.InDelta(t, 0, out.BestObjective, 1e-6)
}

func TestGRGConstrained(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0, 0},
		func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
		linear(1, 1),
	)
	problem := Problem{
		Objective:   Objective{Kind: Minimize},
		Variables:   []VarSpec{Unbounded(), Unbounded()},
		Constraints: []Constraint{{Index: 0, Relation: GreaterEqual, RHS: 2, Tolerance: 1e-4}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodGRG))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 2, out.BestObjective, 1e-3)
	require.InDelta(t, out.BestVars[0], out.BestVars[1], 1e-3)
	require.LessOrEqual(t, out.MaxConstraintViolation, 1e-6)
}

func TestGRGRespectsBounds(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{3}, func(x []float64) float64 { return x[0] })
	problem := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{{Lower: 1, Upper: 4, Kind: Continuous}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodGRG))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.InDelta(t, 1, out.BestVars[0], 1e-9)
}

func TestEvolutionaryContinuous(t *testing.T) {
	objective := func(x []float64) float64 {
		return 5 - (x[0]-2)*(x[0]-2) - (x[1]+1)*(x[1]+1)
	}
	box := VarSpec{Lower: -5, Upper: 5, Kind: Continuous}
	problem := Problem{
		Objective: Objective{Kind: Maximize},
		Variables: []VarSpec{box, box},
	}
	opts := options(MethodEvolutionary)
	opts.Evolutionary.Seed = 7

	m := testutil.NewSolverFuncModel([]float64{0, 0}, objective)
	out, err := Solve(zap.NewNop(), m, problem, opts)
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, out.Status)
	require.InDelta(t, 5, out.BestObjective, 0.05)

	again := testutil.NewSolverFuncModel([]float64{0, 0}, objective)
	out2, err := Solve(zap.NewNop(), again, problem, opts)
	require.NoError(t, err)
	require.Equal(t, out.BestVars, out2.BestVars)
	require.Equal(t, out.Iterations, out2.Iterations)
}

func TestEvolutionaryBinaryKnapsack(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0, 0, 0, 0}, linear(10, 13, 7, 8), linear(5, 6, 3, 4))
	bin := VarSpec{Kind: Binary}
	problem := Problem{
		Objective:   Objective{Kind: Maximize},
		Variables:   []VarSpec{bin, bin, bin, bin},
		Constraints: []Constraint{{Index: 0, Relation: LessEqual, RHS: 10}},
	}
	opts := options(MethodEvolutionary)
	opts.Evolutionary.Seed = 3

	out, err := Solve(zap.NewNop(), m, problem, opts)
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, out.Status)
	require.Equal(t, 21.0, out.BestObjective)
	require.Equal(t, []float64{0, 1, 0, 1}, out.BestVars)
	for _, v := range m.Vars {
		require.True(t, v == 0 || v == 1)
	}
}

func TestEvolutionaryTargetStopsEarly(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{0}, linear(1))
	problem := Problem{
		Objective: Objective{Kind: Target, TargetValue: 0.5, TargetTolerance: 0.6},
		Variables: []VarSpec{{Lower: 0, Upper: 1, Kind: Continuous}},
	}

	out, err := Solve(zap.NewNop(), m, problem, options(MethodEvolutionary))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, out.Status)
	require.Equal(t, 0, out.Iterations)
}

func TestProgressCancels(t *testing.T) {
	tests := []Method{MethodGRG, MethodEvolutionary}
	for _, method := range tests {
		t.Run(string(method), func(t *testing.T) {
			m := testutil.NewSolverFuncModel([]float64{0}, func(x []float64) float64 {
				return (x[0] - 4) * (x[0] - 4)
			})
			problem := Problem{
				Objective: Objective{Kind: Minimize},
				Variables: []VarSpec{{Lower: -10, Upper: 10, Kind: Continuous}},
			}
			calls := 0
			opts := options(method)
			opts.Progress = func(p Progress) bool {
				calls++
				require.Equal(t, method, p.Method)
				return false
			}

			out, err := Solve(zap.NewNop(), m, problem, opts)
			require.NoError(t, err)
			require.Equal(t, StatusCancelled, out.Status)
			require.Equal(t, 1, calls)
		})
	}
}

func TestSolveValidation(t *testing.T) {
	good := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{NonNegative()},
	}

	tests := []struct {
		name    string
		problem func() Problem
		opts    func() Options
	}{
		{"variable count mismatch", func() Problem {
			p := good
			p.Variables = []VarSpec{NonNegative(), NonNegative()}
			return p
		}, DefaultOptions},
		{"reversed bounds", func() Problem {
			p := good
			p.Variables = []VarSpec{{Lower: 2, Upper: 1}}
			return p
		}, DefaultOptions},
		{"integer without integers", func() Problem {
			p := good
			p.Variables = []VarSpec{{Lower: 0.2, Upper: 0.8, Kind: Integer}}
			return p
		}, DefaultOptions},
		{"unknown objective", func() Problem {
			p := good
			p.Objective.Kind = "best"
			return p
		}, DefaultOptions},
		{"residual out of range", func() Problem {
			p := good
			p.Constraints = []Constraint{{Index: 3, Relation: LessEqual}}
			return p
		}, DefaultOptions},
		{"unknown relation", func() Problem {
			p := good
			p.Constraints = []Constraint{{Index: 0, OnVariable: true, Relation: "<"}}
			return p
		}, DefaultOptions},
		{"non-finite rhs", func() Problem {
			p := good
			p.Constraints = []Constraint{{Index: 0, OnVariable: true, Relation: LessEqual, RHS: math.NaN()}}
			return p
		}, DefaultOptions},
		{"zero iterations", func() Problem { return good }, func() Options {
			o := DefaultOptions()
			o.MaxIterations = 0
			return o
		}},
		{"unknown method", func() Problem { return good }, func() Options {
			o := DefaultOptions()
			o.Method = "annealing"
			return o
		}},
		{"elite count too large", func() Problem { return good }, func() Options {
			o := options(MethodEvolutionary)
			o.Evolutionary.EliteCount = o.Evolutionary.PopulationSize
			return o
		}},
		{"penalty growth", func() Problem { return good }, func() Options {
			o := options(MethodGRG)
			o.GRG.PenaltyGrowth = 1
			return o
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewSolverFuncModel([]float64{1}, linear(1))
			_, err := Solve(zap.NewNop(), m, tt.problem(), tt.opts())
			require.ErrorIs(t, err, model.ErrInvalidParams)
			require.Zero(t, m.Writes)
		})
	}
}

func TestSolveModelFailure(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{1}, linear(1))
	m.ObjectiveErr = errors.New("engine down")
	problem := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{NonNegative()},
	}

	_, err := Solve(zap.NewNop(), m, problem, options(MethodGRG))
	require.ErrorIs(t, err, model.ErrModel)
	require.Equal(t, []float64{1}, m.Vars)
}

func TestNonFiniteStartRejected(t *testing.T) {
	m := testutil.NewSolverFuncModel([]float64{math.Inf(1)}, linear(1))
	problem := Problem{
		Objective: Objective{Kind: Minimize},
		Variables: []VarSpec{Unbounded()},
	}
	_, err := Solve(zap.NewNop(), m, problem, DefaultOptions())
	require.ErrorIs(t, err, model.ErrInvalidParams)
}
