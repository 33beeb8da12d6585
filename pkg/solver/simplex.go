package solver

import (
	"errors"
	"math"

	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	integralityTolerance = 1e-6
	costEpsilon          = 1e-12
)

// linearForm is constant + coef·x.
type linearForm struct {
	coef     []float64
	constant float64
}

func (f linearForm) at(x []float64) float64 {
	v := f.constant
	for i, c := range f.coef {
		v += c * x[i]
	}
	return v
}

func unitForm(n, j int) linearForm {
	coef := make([]float64, n)
	coef[j] = 1
	return linearForm{coef: coef}
}

// lpRow is sense·(coef·x) <= sense·rhs; sense is +1 for <= and -1 for >=.
type lpRow struct {
	coef  []float64
	sense float64
	rhs   float64
}

func appendRelation(rows []lpRow, f linearForm, rel Relation, rhs, tol float64) []lpRow {
	rhs -= f.constant
	switch rel {
	case LessEqual:
		return append(rows, lpRow{coef: f.coef, sense: 1, rhs: rhs + tol})
	case GreaterEqual:
		return append(rows, lpRow{coef: f.coef, sense: -1, rhs: rhs - tol})
	default:
		return append(rows,
			lpRow{coef: f.coef, sense: 1, rhs: rhs + tol},
			lpRow{coef: f.coef, sense: -1, rhs: rhs - tol})
	}
}

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpFailed
)

type relaxation struct {
	status lpStatus
	x      []float64
}

type bbNode struct {
	lower, upper []float64
}

// simplexBounds treats open lower bounds as zero and reports whether any
// domain became empty.
func simplexBounds(bounds []bound) ([]bound, bool) {
	out := append([]bound(nil), bounds...)
	empty := false
	for j := range out {
		if math.IsInf(out[j].lower, -1) {
			out[j].lower = 0
		}
		if out[j].lower > out[j].upper {
			empty = true
		}
	}
	return out, empty
}

type simplexSolver struct {
	logger    *zap.Logger
	m         model.SolverModel
	ev        *evaluator
	problem   Problem
	opts      Options
	report    func(iteration int) bool
	objective linearForm
	residuals map[int]linearForm
}

// residualIndices lists the distinct residuals referenced by constraints.
func residualIndices(cs []Constraint) []int {
	seen := make(map[int]bool)
	var out []int
	for _, c := range cs {
		if c.OnVariable || seen[c.Index] {
			continue
		}
		seen[c.Index] = true
		out = append(out, c.Index)
	}
	return out
}

// sample evaluates the objective and the referenced residuals at x without
// projecting x.
func (s *simplexSolver) sample(x []float64, idx []int, dst []float64) error {
	if err := s.m.WriteVariables(x); err != nil {
		return model.ModelFailuref(err, "writing variables")
	}
	if err := model.Recalculate(s.m); err != nil {
		return err
	}
	obj, err := s.m.Objective()
	if err != nil {
		return model.ModelFailuref(err, "reading objective")
	}
	dst[0] = obj
	for k, i := range idx {
		r, err := s.m.ConstraintResidual(i)
		if err != nil {
			return model.ModelFailuref(err, "reading constraint %d", i)
		}
		dst[k+1] = r
	}
	return nil
}

// infer builds the linear model by forward differences around x0.
func (s *simplexSolver) infer(x0 []float64) error {
	idx := residualIndices(s.problem.Constraints)
	n, rows := len(x0), 1+len(idx)

	var sampleErr error
	f := func(y, x []float64) {
		if sampleErr == nil {
			sampleErr = s.sample(x, idx, y)
		}
		if sampleErr != nil {
			for i := range y {
				y[i] = math.NaN()
			}
		}
	}

	origin := make([]float64, rows)
	f(origin, x0)
	if sampleErr != nil {
		return sampleErr
	}
	jac := mat.NewDense(rows, n, nil)
	fd.Jacobian(jac, f, x0, &fd.JacobianSettings{
		Formula:     fd.Forward,
		Step:        s.opts.Simplex.DiffStep,
		OriginValue: origin,
	})
	if sampleErr != nil {
		return sampleErr
	}

	forms := make([]linearForm, rows)
	for r := 0; r < rows; r++ {
		coef := mat.Row(nil, r, jac)
		if !mathutil.AllFinite(coef) || !mathutil.IsFinite(origin[r]) {
			return model.InvalidParams("simplex needs finite model outputs near the start point")
		}
		form := linearForm{coef: coef}
		form.constant = origin[r] - form.at(x0)
		forms[r] = form
	}

	s.objective = forms[0]
	s.residuals = make(map[int]linearForm, len(idx))
	for k, i := range idx {
		s.residuals[i] = forms[k+1]
	}
	return nil
}

func (s *simplexSolver) rows(upper []float64) []lpRow {
	n := len(upper)
	var rows []lpRow
	for j := 0; j < n; j++ {
		if !math.IsInf(upper[j], 1) {
			rows = appendRelation(rows, unitForm(n, j), LessEqual, upper[j], 0)
		}
	}
	for _, c := range s.problem.Constraints {
		f := s.residuals[c.Index]
		if c.OnVariable {
			f = unitForm(n, c.Index)
		}
		rows = appendRelation(rows, f, c.Relation, c.RHS, c.Tolerance)
	}
	if obj := s.problem.Objective; obj.Kind == Target {
		rows = appendRelation(rows, s.objective, Equal, obj.TargetValue, obj.TargetTolerance)
	}
	return rows
}

func (s *simplexSolver) costs() []float64 {
	c := make([]float64, len(s.objective.coef))
	switch s.problem.Objective.Kind {
	case Minimize:
		copy(c, s.objective.coef)
	case Maximize:
		for i, g := range s.objective.coef {
			c[i] = -g
		}
	}
	return c
}

// solveRelaxation solves the continuous relaxation within [lower, upper].
// Every row gets its own slack column, so the equality matrix always has
// full row rank.
func (s *simplexSolver) solveRelaxation(lower, upper []float64) relaxation {
	n := len(lower)
	for j := range lower {
		if lower[j] > upper[j] {
			return relaxation{status: lpInfeasible}
		}
	}

	// Lower bounds are finite here, so x = lower + y with y >= 0.
	offset := append([]float64(nil), lower...)

	rows := s.rows(upper)
	costX := s.costs()

	b := make([]float64, len(rows))
	for i, row := range rows {
		b[i] = row.rhs
		for j, coef := range row.coef {
			b[i] -= coef * offset[j]
		}
	}

	var active []int
	unbounded := false
	for j := 0; j < n; j++ {
		used := false
		for _, row := range rows {
			if row.coef[j] != 0 {
				used = true
				break
			}
		}
		if used {
			active = append(active, j)
			continue
		}
		if costX[j] < -costEpsilon {
			unbounded = true
		}
	}

	y := make([]float64, n)
	if len(active) == 0 {
		for i, row := range rows {
			if row.sense*b[i] < -1e-9*(1+math.Abs(b[i])) {
				return relaxation{status: lpInfeasible}
			}
		}
	} else {
		width := len(active) + len(rows)
		A := mat.NewDense(len(rows), width, nil)
		c := make([]float64, width)
		for k, j := range active {
			c[k] = costX[j]
			for i, row := range rows {
				A.Set(i, k, row.coef[j])
			}
		}
		for i, row := range rows {
			A.Set(i, len(active)+i, row.sense)
		}

		_, sol, err := lp.Simplex(c, A, b, math.Max(s.opts.Tolerance, 1e-10), nil)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return relaxation{status: lpInfeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return relaxation{status: lpUnbounded}
		case err != nil:
			s.logger.Warn("linear relaxation failed",
				zap.String("op", "solver.solveRelaxation"),
				zap.Error(err),
			)
			return relaxation{status: lpFailed}
		}
		for k, j := range active {
			y[j] = sol[k]
		}
	}

	if unbounded {
		// A free improving direction exists once the rows are satisfiable.
		return relaxation{status: lpUnbounded}
	}

	x := offset
	for j := range x {
		x[j] += y[j]
	}
	return relaxation{status: lpOptimal, x: x}
}

func (s *simplexSolver) branchVariable(x []float64) int {
	for j, b := range s.ev.bounds {
		if b.discrete() && !mathutil.IsIntegral(x[j], integralityTolerance) {
			return j
		}
	}
	return -1
}

// run performs depth-first branch-and-bound over LP relaxations.
func (s *simplexSolver) run(start []float64) (Status, int, error) {
	if err := s.infer(start); err != nil {
		return "", 0, err
	}

	n := len(start)
	root := bbNode{lower: make([]float64, n), upper: make([]float64, n)}
	for j, b := range s.ev.bounds {
		root.lower[j], root.upper[j] = b.lower, b.upper
	}

	target := s.problem.Objective.Kind == Target
	stack := []bbNode{root}
	nodes := 0
	var incumbent *candidate

	for len(stack) > 0 {
		if nodes > 0 && !s.report(nodes) {
			return StatusCancelled, nodes, nil
		}
		if nodes >= s.opts.Simplex.MaxNodes {
			if incumbent != nil {
				return StatusFeasible, nodes, nil
			}
			return StatusIterationLimit, nodes, nil
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		rel := s.solveRelaxation(node.lower, node.upper)
		switch rel.status {
		case lpInfeasible, lpFailed:
			continue
		case lpUnbounded:
			return StatusUnbounded, nodes, nil
		}

		if incumbent != nil && !target {
			bound := s.ev.score(s.objective.at(rel.x))
			if bound >= incumbent.score-1e-9*(1+math.Abs(incumbent.score)) {
				continue
			}
		}

		j := s.branchVariable(rel.x)
		if j < 0 {
			cand, err := s.ev.evaluate(rel.x)
			if err != nil {
				return "", nodes, err
			}
			if cand.feasible && cand.better(incumbent) {
				incumbent = cand
			}
			if target && incumbent != nil {
				break
			}
			continue
		}

		down := bbNode{lower: node.lower, upper: append([]float64(nil), node.upper...)}
		down.upper[j] = math.Floor(rel.x[j])
		up := bbNode{lower: append([]float64(nil), node.lower...), upper: node.upper}
		up.lower[j] = math.Ceil(rel.x[j])
		stack = append(stack, up, down)
	}

	if incumbent == nil {
		return StatusInfeasible, nodes, nil
	}
	return StatusOptimal, nodes, nil
}
