package runner

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/iwvelando/whatif/internal/config"
	"github.com/iwvelando/whatif/internal/observability"
	"github.com/iwvelando/whatif/internal/workbook"
	"github.com/iwvelando/whatif/pkg/goalseek"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/solver"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func floatPtr(v float64) *float64 { return &v }

func baseConfig() *config.Configuration {
	return &config.Configuration{
		Workbook: workbook.Spec{Sheets: []workbook.SheetSpec{{
			Name: "Model",
			Cells: map[string]interface{}{
				"A1": 10,
				"A2": "=A1*2",
				"B1": 1,
				"B2": 1,
				"B3": "=B1+B2",
				"B4": "=3*B1+2*B2",
			},
		}}},
	}
}

func fullConfig() *config.Configuration {
	conf := baseConfig()
	conf.GoalSeek = &config.GoalSeekConfig{
		TargetCell:   "Model!A2",
		TargetValue:  floatPtr(50),
		ChangingCell: "Model!A1",
	}
	conf.Scenarios = &config.ScenariosConfig{
		Definitions: []config.ScenarioConfig{
			{Name: "High", Cells: []config.CellValueConfig{{Cell: "Model!A1", Value: 100}}},
			{Name: "Low", Cells: []config.CellValueConfig{{Cell: "Model!A1", Value: 1}}},
		},
		ResultCells: []string{"Model!A2"},
	}
	conf.Simulation = &config.SimulationConfig{
		Iterations: 2000,
		Seed:       42,
		Inputs: []config.SimulationInput{{
			Cell: "Model!A1",
		}},
		OutputCells: []string{"Model!A2"},
	}
	conf.Simulation.Inputs[0].Distribution.Type = "normal"
	conf.Simulation.Inputs[0].Distribution.Mean = 10
	conf.Simulation.Inputs[0].Distribution.StdDev = 2
	conf.Solver = &config.SolverConfig{
		Method:        "simplex",
		ObjectiveCell: "Model!B4",
		Goal:          "max",
		Variables: []config.SolverVariable{
			{Cell: "Model!B1", Lower: floatPtr(0)},
			{Cell: "Model!B2", Lower: floatPtr(0), Kind: "integer"},
		},
		Constraints: []config.SolverConstraint{
			{Cell: "Model!B3", Relation: "<=", RHS: 4},
			{Variable: "Model!B1", Relation: "<=", RHS: 3},
		},
	}
	conf.Normalize()
	return conf
}

func number(t *testing.T, r *Runner, ref model.CellRef) float64 {
	t.Helper()
	v, err := model.ReadNumber(r.Workbook(), ref)
	if err != nil {
		t.Fatalf("ReadNumber(%s) error = %v", ref, err)
	}
	return v
}

func TestNewRunnerValidates(t *testing.T) {
	if _, err := NewRunner(zap.NewNop(), nil); err == nil {
		t.Fatalf("NewRunner(nil) expected error")
	}

	conf := baseConfig()
	conf.Output.Format = "html"
	if _, err := NewRunner(zap.NewNop(), conf); err == nil {
		t.Fatalf("NewRunner() expected output format error")
	}

	conf = baseConfig()
	conf.Normalize()
	conf.Workbook.Sheets = append(conf.Workbook.Sheets, workbook.SheetSpec{Name: "model"})
	if _, err := NewRunner(zap.NewNop(), conf); err == nil {
		t.Fatalf("NewRunner() expected duplicate sheet error")
	}
}

func TestRunAllSections(t *testing.T) {
	metrics := observability.NewCollector()
	r, err := NewRunner(zap.NewNop(), fullConfig(), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Empty() || len(res.Summaries) != 4 {
		t.Fatalf("Run() returned %d summaries, want 4", len(res.Summaries))
	}

	order := make([]string, len(res.Summaries))
	for i, s := range res.Summaries {
		order[i] = s.Tool
	}
	if got := strings.Join(order, ","); got != "goalSeek,scenarios,simulation,solver" {
		t.Fatalf("section order = %s", got)
	}

	gs := res.GoalSeek
	if gs == nil || gs.Status != goalseek.StatusConverged || math.Abs(gs.Solution-25) > 1e-6 {
		t.Fatalf("goal seek = %+v, want converged at 25", gs)
	}

	report := res.Scenarios
	if report == nil || strings.Join(report.Order, ",") != "Base,High,Low" {
		t.Fatalf("scenario report = %+v", report)
	}
	if v, _ := report.Results["Base"]["Model!A2"].AsNumber(); math.Abs(v-50) > 1e-6 {
		t.Fatalf("base A2 = %v, want 50 after goal seek", v)
	}
	if v, _ := report.Results["High"]["Model!A2"].AsNumber(); v != 200 {
		t.Fatalf("High A2 = %v, want 200", v)
	}

	sim := res.Simulation
	if sim == nil || sim.Iterations != 2000 {
		t.Fatalf("simulation = %+v", sim)
	}
	if mean := sim.OutputStats["Model!A2"].Mean; math.Abs(mean-20) > 0.5 {
		t.Fatalf("simulated mean = %v, want about 20", mean)
	}
	if sim.OutputSamples != nil {
		t.Fatalf("samples kept without keepSamples")
	}

	out := res.Solver
	if out == nil || out.Status != solver.StatusOptimal || math.Abs(out.BestObjective-11) > 1e-6 {
		t.Fatalf("solver = %+v, want Optimal 11", out)
	}
	if b1, b2 := number(t, r, "Model!B1"), number(t, r, "Model!B2"); math.Abs(b1-3) > 1e-6 || math.Abs(b2-1) > 1e-6 {
		t.Fatalf("solution = (%v, %v), want (3, 1)", b1, b2)
	}
	if len(res.Summaries[3].Changes) != 2 {
		t.Fatalf("solver changes = %+v", res.Summaries[3].Changes)
	}
	if len(res.Cells) != 6 {
		t.Fatalf("final cells = %d, want 6", len(res.Cells))
	}

	count, err := testutil.GatherAndCount(metrics.Registry(), "whatif_tool_runs_total")
	if err != nil || count != 4 {
		t.Fatalf("run metric series = %d, %v; want 4", count, err)
	}
}

func TestRunSectionsSubset(t *testing.T) {
	r, err := NewRunner(zap.NewNop(), fullConfig())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	res, err := r.RunSections(config.SectionGoalSeek)
	if err != nil {
		t.Fatalf("RunSections() error = %v", err)
	}
	if len(res.Summaries) != 1 || res.Scenarios != nil || res.Solver != nil {
		t.Fatalf("RunSections() ran more than goal seek: %+v", res.Summaries)
	}
	if got := number(t, r, "Model!A2"); math.Abs(got-50) > 1e-6 {
		t.Fatalf("A2 = %v, want 50", got)
	}

	if _, err := r.RunSections("bogus"); err == nil {
		t.Fatalf("RunSections(bogus) expected error")
	}
}

func TestRunUnconfiguredSection(t *testing.T) {
	conf := baseConfig()
	conf.Normalize()
	r, err := NewRunner(zap.NewNop(), conf)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	res, err := r.Run()
	if err != nil || !res.Empty() {
		t.Fatalf("Run() = %+v, %v; want empty result", res, err)
	}
	if _, err := r.RunSections(config.SectionSolver); err == nil {
		t.Fatalf("RunSections(solver) expected error for missing section")
	}
}

func TestScenarioShowLeavesScenarioApplied(t *testing.T) {
	conf := fullConfig()
	conf.Scenarios.Show = "low"
	r, err := NewRunner(zap.NewNop(), conf)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	res, err := r.RunSections(config.SectionScenarios)
	if err != nil {
		t.Fatalf("RunSections() error = %v", err)
	}
	if got := number(t, r, "Model!A2"); got != 2 {
		t.Fatalf("A2 = %v, want 2 with Low shown", got)
	}
	if len(res.Summaries[0].Changes) != 1 || len(res.Summaries[0].Notes) != 1 {
		t.Fatalf("summary = %+v", res.Summaries[0])
	}
}

func TestToolErrorsPropagate(t *testing.T) {
	conf := baseConfig()
	conf.Workbook.Sheets[0].Cells["C1"] = "text"
	conf.GoalSeek = &config.GoalSeekConfig{
		TargetCell:   "Model!C1",
		TargetValue:  floatPtr(1),
		ChangingCell: "Model!A1",
	}
	conf.Normalize()

	metrics := observability.NewCollector()
	r, err := NewRunner(zap.NewNop(), conf, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	_, err = r.Run()
	if !errors.Is(err, model.ErrNonNumericCell) {
		t.Fatalf("Run() error = %v, want NonNumericCell", err)
	}
	if !strings.HasPrefix(err.Error(), config.SectionGoalSeek) {
		t.Fatalf("error %q not prefixed with section", err)
	}
	count, gatherErr := testutil.GatherAndCount(metrics.Registry(), "whatif_tool_failures_total")
	if gatherErr != nil || count != 1 {
		t.Fatalf("failure metric series = %d, %v; want 1", count, gatherErr)
	}
}
