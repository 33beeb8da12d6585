package goalseek

import (
	"math"

	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
	"go.uber.org/zap"
)

// Status is the terminal state of a goal seek run.
type Status string

const (
	StatusConverged            Status = "Converged"
	StatusMaxIterationsReached Status = "MaxIterationsReached"
	StatusNoBracketFound       Status = "NoBracketFound"
	StatusNumericalFailure     Status = "NumericalFailure"
)

// Result reports where the search stopped. Solution is always the last input
// written to the changing cell, so the model is left consistent with it.
type Result struct {
	Status      Status  `json:"status"`
	Solution    float64 `json:"solution"`
	Iterations  int     `json:"iterations"`
	FinalOutput float64 `json:"finalOutput"`
	FinalError  float64 `json:"finalError"`
}

// Converged reports whether the target was reached within tolerance.
func (r *Result) Converged() bool { return r.Status == StatusConverged }

// Progress is emitted once per probe of the model.
type Progress struct {
	Iteration int     `json:"iteration"`
	Input     float64 `json:"input"`
	Output    float64 `json:"output"`
	Error     float64 `json:"error"`
}

// ProgressFunc receives probe notifications. It may be nil.
type ProgressFunc func(Progress)

type seeker struct {
	logger   *zap.Logger
	model    model.Model
	params   Params
	progress ProgressFunc

	iteration  int
	lastInput  float64
	lastOutput float64
}

// Seek drives params.TargetCell towards params.TargetValue by varying
// params.ChangingCell. Parameters are validated before the model is touched.
//
// On any status other than Converged the changing cell holds the last probed
// input, which is also reported as Result.Solution. Callers that want a
// different end state must write it themselves.
func Seek(logger *zap.Logger, m model.Model, params Params, progress ProgressFunc) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		return nil, model.InvalidParams("model is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	x, err := model.ReadNumber(m, params.ChangingCell)
	if err != nil {
		return nil, err
	}
	y, err := model.ReadNumber(m, params.TargetCell)
	if err != nil {
		return nil, err
	}

	s := &seeker{
		logger:     logger,
		model:      m,
		params:     params,
		progress:   progress,
		lastInput:  x,
		lastOutput: y,
	}

	logger.Debug("goal seek starting",
		zap.String("op", "goalseek.Seek"),
		zap.String("changingCell", string(params.ChangingCell)),
		zap.String("targetCell", string(params.TargetCell)),
		zap.Float64("targetValue", params.TargetValue),
		zap.Float64("input", x),
		zap.Float64("output", y),
	)

	var result *Result
	switch {
	case !mathutil.IsFinite(y):
		result = s.finish(StatusNumericalFailure)
	case math.Abs(y-params.TargetValue) < params.Tolerance:
		result = s.finish(StatusConverged)
	default:
		result, err = s.newton(x, y)
		if err != nil {
			return nil, err
		}
	}

	fields := []zap.Field{
		zap.String("op", "goalseek.Seek"),
		zap.String("status", string(result.Status)),
		zap.Float64("solution", result.Solution),
		zap.Int("iterations", result.Iterations),
		zap.Float64("finalError", result.FinalError),
	}
	if result.Converged() {
		logger.Info("goal seek finished", fields...)
	} else {
		logger.Warn("goal seek did not converge", fields...)
	}
	return result, nil
}

// Changes reports the changing cell delta for a host binding.
func Changes(result *Result, params Params) []model.CellChange {
	if result == nil {
		return nil
	}
	return []model.CellChange{model.ChangeFor(params.ChangingCell, model.Number(result.Solution))}
}

func (s *seeker) newton(x, y float64) (*Result, error) {
	target := s.params.TargetValue
	for s.iteration < s.params.MaxIterations {
		s.iteration++
		e := y - target

		h := s.params.step(x)
		yh, err := s.probe(x + h)
		if err != nil {
			return nil, err
		}

		d := (yh - y) / h
		if !mathutil.IsFinite(d) || math.Abs(d) < s.params.MinDerivative {
			s.logger.Debug("derivative unusable, switching to bisection",
				zap.String("op", "goalseek.Seek"),
				zap.Int("iteration", s.iteration),
				zap.Float64("input", x),
				zap.Float64("derivative", d),
			)
			return s.bisect(x, y, h)
		}

		next := x - e/d
		if !mathutil.IsFinite(next) {
			return s.finish(StatusNumericalFailure), nil
		}
		yn, err := s.probe(next)
		if err != nil {
			return nil, err
		}
		if !mathutil.IsFinite(yn) {
			return s.finish(StatusNumericalFailure), nil
		}
		x, y = next, yn
		if math.Abs(y-target) < s.params.Tolerance {
			return s.finish(StatusConverged), nil
		}
	}
	return s.finish(StatusMaxIterationsReached), nil
}

// bisect brackets a sign change of output-target around x by doubling the
// half-width, then halves the bracket until tolerance or budget is reached.
func (s *seeker) bisect(x, y, width float64) (*Result, error) {
	target := s.params.TargetValue
	tol := s.params.Tolerance
	ex := y - target

	var lo, hi, elo float64
	found := false
	for k := 0; k <= s.params.MaxBracketExpansions && !found; k++ {
		for _, candidate := range []float64{x - width, x + width} {
			if !mathutil.IsFinite(candidate) {
				return s.finish(StatusNoBracketFound), nil
			}
			yc, err := s.probe(candidate)
			if err != nil {
				return nil, err
			}
			if !mathutil.IsFinite(yc) {
				return s.finish(StatusNumericalFailure), nil
			}
			ec := yc - target
			if math.Abs(ec) < tol {
				return s.finish(StatusConverged), nil
			}
			if (ec < 0) != (ex < 0) {
				if candidate < x {
					lo, hi, elo = candidate, x, ec
				} else {
					lo, hi, elo = x, candidate, ex
				}
				found = true
				break
			}
		}
		width *= 2
	}
	if !found {
		return s.finish(StatusNoBracketFound), nil
	}

	for s.iteration < s.params.MaxIterations {
		s.iteration++
		mid := lo + (hi-lo)/2
		ym, err := s.probe(mid)
		if err != nil {
			return nil, err
		}
		if !mathutil.IsFinite(ym) {
			return s.finish(StatusNumericalFailure), nil
		}
		em := ym - target
		if math.Abs(em) < tol {
			return s.finish(StatusConverged), nil
		}
		if (em < 0) == (elo < 0) {
			lo, elo = mid, em
		} else {
			hi = mid
		}
	}
	return s.finish(StatusMaxIterationsReached), nil
}

// probe writes x, recalculates and reads the target cell.
func (s *seeker) probe(x float64) (float64, error) {
	if err := model.WriteNumber(s.model, s.params.ChangingCell, x); err != nil {
		return 0, err
	}
	if err := model.Recalculate(s.model); err != nil {
		return 0, err
	}
	y, err := model.ReadNumber(s.model, s.params.TargetCell)
	if err != nil {
		return 0, err
	}
	s.lastInput, s.lastOutput = x, y

	p := Progress{Iteration: s.iteration, Input: x, Output: y, Error: y - s.params.TargetValue}
	s.logger.Debug("goal seek probe",
		zap.String("op", "goalseek.Seek"),
		zap.Int("iteration", p.Iteration),
		zap.Float64("input", p.Input),
		zap.Float64("output", p.Output),
	)
	if s.progress != nil {
		s.progress(p)
	}
	return y, nil
}

func (s *seeker) finish(status Status) *Result {
	return &Result{
		Status:      status,
		Solution:    s.lastInput,
		Iterations:  s.iteration,
		FinalOutput: s.lastOutput,
		FinalError:  s.lastOutput - s.params.TargetValue,
	}
}
