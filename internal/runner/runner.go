// Package runner executes the tool sections of a what-if job against the
// job's workbook.
package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iwvelando/whatif/internal/config"
	"github.com/iwvelando/whatif/internal/observability"
	"github.com/iwvelando/whatif/internal/workbook"
	"github.com/iwvelando/whatif/pkg/goalseek"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/montecarlo"
	"github.com/iwvelando/whatif/pkg/optimization"
	"github.com/iwvelando/whatif/pkg/scenario"
	"github.com/iwvelando/whatif/pkg/solver"
	"go.uber.org/zap"
)

// Status reported for tools that have no search status of their own.
const (
	StatusReported  = "Reported"
	StatusCompleted = "Completed"
)

// Runner drives one job. It owns the job's workbook; sections run in
// sequence and see each other's cell changes.
type Runner struct {
	logger  *zap.Logger
	conf    *config.Configuration
	book    *workbook.Workbook
	metrics *observability.Collector
}

// Result collects the summary and typed result of every section that ran.
type Result struct {
	Summaries  []optimization.Summary
	GoalSeek   *goalseek.Result
	Scenarios  *scenario.SummaryReport
	Simulation *montecarlo.Result
	Solver     *solver.Outcome
	// Cells is the workbook state after the last section.
	Cells []model.CellChange
}

// Empty indicates whether any section produced a summary.
func (r Result) Empty() bool {
	return len(r.Summaries) == 0
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records every section run on c.
func WithMetrics(c *observability.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// NewRunner validates the configuration and builds its workbook.
func NewRunner(logger *zap.Logger, conf *config.Configuration, opts ...Option) (*Runner, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	book, err := workbook.New(logger, conf.Workbook)
	if err != nil {
		return nil, fmt.Errorf("building workbook: %w", err)
	}

	r := &Runner{logger: logger, conf: conf, book: book}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Workbook returns the workbook the runner operates on.
func (r *Runner) Workbook() *workbook.Workbook { return r.book }

// Run executes every configured section in the order goal seek, scenarios,
// simulation, solver.
func (r *Runner) Run() (*Result, error) {
	return r.RunSections(r.conf.Sections()...)
}

// RunSections executes the named sections in the given order. It stops at
// the first section that fails.
func (r *Runner) RunSections(sections ...string) (*Result, error) {
	result := &Result{}
	for _, section := range sections {
		start := time.Now()
		summary, err := r.runSection(section, result)
		if err != nil {
			r.metrics.ObserveFailure(section, err, time.Since(start))
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		r.metrics.ObserveRun(section, summary.Status, summary.Iterations, time.Since(start))
		result.Summaries = append(result.Summaries, summary)

		r.logger.Info("section finished",
			zap.String("op", "runner.Run"),
			zap.String("section", section),
			zap.String("target", summary.Target),
			zap.String("status", summary.Status),
			zap.Int("iterations", summary.Iterations),
			zap.Bool("converged", summary.Converged),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	result.Cells = r.book.Snapshot()
	return result, nil
}

func (r *Runner) runSection(section string, result *Result) (optimization.Summary, error) {
	switch section {
	case config.SectionGoalSeek:
		return r.runGoalSeek(result)
	case config.SectionScenarios:
		return r.runScenarios(result)
	case config.SectionSimulation:
		return r.runSimulation(result)
	case config.SectionSolver:
		return r.runSolver(result)
	default:
		return optimization.Summary{}, fmt.Errorf("unknown section %q", section)
	}
}

func (r *Runner) runGoalSeek(result *Result) (optimization.Summary, error) {
	if r.conf.GoalSeek == nil {
		return optimization.Summary{}, fmt.Errorf("section is not configured")
	}
	params := r.conf.GoalSeek.Params()
	res, err := goalseek.Seek(r.logger, r.book, params, nil)
	if err != nil {
		return optimization.Summary{}, err
	}
	result.GoalSeek = res

	summary := optimization.Summary{
		Tool:       config.SectionGoalSeek,
		Target:     string(params.TargetCell),
		Status:     string(res.Status),
		Objective:  res.FinalOutput,
		Iterations: res.Iterations,
		Converged:  res.Converged(),
		Changes:    goalseek.Changes(res, params),
	}
	if !res.Converged() {
		summary.AddNote(fmt.Sprintf("closest output %g is %g away from the target", res.FinalOutput, res.FinalError))
	}
	return summary, nil
}

func (r *Runner) runScenarios(result *Result) (optimization.Summary, error) {
	sc := r.conf.Scenarios
	if sc == nil {
		return optimization.Summary{}, fmt.Errorf("section is not configured")
	}
	mgr := scenario.NewManager(r.logger, r.book)

	ids := make([]scenario.ID, 0, len(sc.Definitions))
	var show scenario.ID
	for _, d := range sc.Definitions {
		cells, values, err := d.Changes()
		if err != nil {
			return optimization.Summary{}, err
		}
		id, err := mgr.Create(d.Name, cells, values, d.CreatedBy, d.Comment)
		if err != nil {
			return optimization.Summary{}, err
		}
		ids = append(ids, id)
		if sc.Show != "" && strings.EqualFold(d.Name, sc.Show) {
			show = id
		}
	}

	report, err := mgr.SummaryReport(sc.Results(), ids)
	if err != nil {
		return optimization.Summary{}, err
	}
	result.Scenarios = report

	summary := optimization.Summary{
		Tool:       config.SectionScenarios,
		Target:     joinRefs(report.ResultCells),
		Status:     StatusReported,
		Iterations: len(ids),
		Converged:  true,
	}
	if show != 0 {
		if err := mgr.Apply(show); err != nil {
			return optimization.Summary{}, err
		}
		s, _ := mgr.Get(show)
		for _, ref := range s.ChangingCells {
			summary.Changes = append(summary.Changes, model.ChangeFor(ref, s.Values[ref]))
		}
		summary.AddNote(fmt.Sprintf("scenario %q left applied", s.Name))
	}
	return summary, nil
}

func (r *Runner) runSimulation(result *Result) (optimization.Summary, error) {
	sim := r.conf.Simulation
	if sim == nil {
		return optimization.Summary{}, fmt.Errorf("section is not configured")
	}
	cfg, err := sim.Build()
	if err != nil {
		return optimization.Summary{}, err
	}
	res, err := montecarlo.Run(r.logger, r.book, cfg, func(p montecarlo.Progress) {
		r.logger.Debug("simulation progress",
			zap.String("op", "runner.runSimulation"),
			zap.Int("completed", p.Completed),
			zap.Int("total", p.Total),
		)
	})
	if err != nil {
		return optimization.Summary{}, err
	}
	if !sim.KeepSamples {
		res.OutputSamples = nil
	}
	result.Simulation = res

	summary := optimization.Summary{
		Tool:       config.SectionSimulation,
		Target:     joinRefs(cfg.OutputCells),
		Status:     StatusCompleted,
		Iterations: res.Iterations,
		Converged:  true,
	}
	outputs := make([]string, 0, len(res.OutputStats))
	for ref := range res.OutputStats {
		outputs = append(outputs, string(ref))
	}
	sort.Strings(outputs)
	for i, ref := range outputs {
		stats := res.OutputStats[model.CellRef(ref)]
		if i == 0 {
			summary.Objective = stats.Mean
		}
		summary.AddNote(fmt.Sprintf("%s mean %g stdDev %g p5 %g p95 %g",
			ref, stats.Mean, stats.StdDev, stats.Percentiles.P5, stats.Percentiles.P95))
	}
	return summary, nil
}

func (r *Runner) runSolver(result *Result) (optimization.Summary, error) {
	sc := r.conf.Solver
	if sc == nil {
		return optimization.Summary{}, fmt.Errorf("section is not configured")
	}
	layout, err := sc.Layout()
	if err != nil {
		return optimization.Summary{}, err
	}
	bound, err := layout.Bind(r.book)
	if err != nil {
		return optimization.Summary{}, err
	}
	opts := sc.Options()
	opts.Progress = func(p solver.Progress) bool {
		r.logger.Debug("solver progress",
			zap.String("op", "runner.runSolver"),
			zap.String("method", string(p.Method)),
			zap.Int("iteration", p.Iteration),
			zap.Float64("bestObjective", p.BestObjective),
			zap.Bool("feasible", p.Feasible),
		)
		return true
	}

	outcome, err := solver.Solve(r.logger, bound, layout.Problem, opts)
	if err != nil {
		return optimization.Summary{}, err
	}
	result.Solver = outcome

	changes, err := bound.Changes()
	if err != nil {
		return optimization.Summary{}, err
	}
	summary := optimization.Summary{
		Tool:       config.SectionSolver,
		Target:     string(layout.Objective),
		Status:     string(outcome.Status),
		Objective:  outcome.BestObjective,
		Iterations: outcome.Iterations,
		Converged:  outcome.Status == solver.StatusOptimal || outcome.Status == solver.StatusFeasible,
		Changes:    changes,
	}
	summary.AddNote("method " + string(outcome.Method))
	if outcome.MaxConstraintViolation > 0 {
		summary.AddNote(fmt.Sprintf("max constraint violation %g", outcome.MaxConstraintViolation))
	}
	if !opts.ApplySolution {
		summary.AddNote("solution not applied; variables restored")
	}
	return summary, nil
}

func joinRefs(refs []model.CellRef) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = string(ref)
	}
	return strings.Join(parts, ",")
}
