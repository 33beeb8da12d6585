package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/montecarlo"
	"github.com/iwvelando/whatif/pkg/solver"
)

const exampleJob = `
logging:
  level: debug
  format: console
output:
  format: csv
workbook:
  locale: en
  sheets:
    - name: Model
      cells:
        A1: 10
        A2: "=A1*2"
        B1: 1
        B2: 1
        B3: "=B1+B2"
        B4: "=3*B1+2*B2"
goalSeek:
  targetCell: Model!A2
  targetValue: 50
  changingCell: Model!A1
scenarios:
  definitions:
    - name: High
      cells:
        - cell: Model!A1
          value: 100
    - name: Low
      comment: pessimistic
      cells:
        - cell: Model!A1
          value: 1
  resultCells: [Model!A2]
simulation:
  iterations: 500
  seed: 42
  inputs:
    - cell: Model!A1
      distribution:
        type: normal
        mean: 10
        stdDev: 2
  outputCells: [Model!A2]
solver:
  method: lp
  objectiveCell: Model!B4
  goal: max
  variables:
    - cell: Model!B1
      lower: 0
    - cell: Model!B2
      lower: 0
      kind: int
  constraints:
    - cell: Model!B3
      relation: "<="
      rhs: 4
    - variable: Model!B1
      relation: le
      rhs: 3
`

func TestLoadConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		configPath string
		wantError  bool
	}{
		{
			name:       "Non-existent config file",
			configPath: "nonexistent.yaml",
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfiguration(tt.configPath)
			if tt.wantError {
				if err == nil {
					t.Errorf("LoadConfiguration() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("LoadConfiguration() error = %v", err)
				return
			}
			if config == nil {
				t.Errorf("LoadConfiguration() returned nil config")
			}
		})
	}
}

func TestLoadConfigurationFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte(exampleJob), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	conf, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if conf.Logging.Level != "debug" || conf.Logging.Format != "console" {
		t.Fatalf("logging = %+v", conf.Logging)
	}
	if conf.Output.Format != constants.OutputFormatCSV {
		t.Fatalf("output format = %q, want csv", conf.Output.Format)
	}
	if len(conf.Workbook.Sheets) != 1 || len(conf.Workbook.Sheets[0].Cells) != 6 {
		t.Fatalf("workbook = %+v", conf.Workbook)
	}
	want := []string{SectionGoalSeek, SectionScenarios, SectionSimulation, SectionSolver}
	if got := conf.Sections(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Sections() = %v, want %v", got, want)
	}
}

func TestLoadConfigurationEnvOverride(t *testing.T) {
	t.Setenv("WHATIF_OUTPUT_FORMAT", "json")

	conf, err := LoadConfigurationFromReader(strings.NewReader(exampleJob))
	if err != nil {
		t.Fatalf("LoadConfigurationFromReader() error = %v", err)
	}
	if conf.Output.Format != constants.OutputFormatJSON {
		t.Fatalf("output format = %q, want json", conf.Output.Format)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	conf, err := LoadConfigurationFromReader(strings.NewReader(`
workbook:
  sheets:
    - name: S
      cells: {A1: 1, A2: "=A1"}
goalSeek:
  targetCell: S!A2
  targetValue: 0
  changingCell: S!A1
simulation:
  inputs:
    - cell: S!A1
      distribution: {type: uniform, min: 0, max: 1}
  outputCells: [S!A2]
`))
	if err != nil {
		t.Fatalf("LoadConfigurationFromReader() error = %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if conf.Output.Format != constants.OutputFormatPretty {
		t.Fatalf("output format = %q, want pretty", conf.Output.Format)
	}
	if conf.GoalSeek.MaxIterations != constants.GoalSeekMaxIterations || conf.GoalSeek.Tolerance != constants.GoalSeekTolerance {
		t.Fatalf("goal seek defaults not applied: %+v", conf.GoalSeek)
	}
	if conf.GoalSeek.TargetValue == nil || *conf.GoalSeek.TargetValue != 0 {
		t.Fatalf("targetValue = %v, want explicit 0", conf.GoalSeek.TargetValue)
	}
	if conf.Simulation.Iterations != constants.SimulationIterations || conf.Simulation.HistogramBins != constants.HistogramBins {
		t.Fatalf("simulation defaults not applied: %+v", conf.Simulation)
	}
	if conf.Scenarios != nil || conf.Solver != nil {
		t.Fatalf("unset sections should stay nil")
	}
}

func TestValidateRejects(t *testing.T) {
	target := 1.0
	tests := []struct {
		name string
		conf Configuration
	}{
		{"log level", Configuration{Logging: LoggingConfig{Level: "loud"}}},
		{"log format", Configuration{Logging: LoggingConfig{Format: "xml"}}},
		{"output format", Configuration{Output: OutputConfig{Format: "html"}}},
		{"goal seek without target value", Configuration{GoalSeek: &GoalSeekConfig{TargetCell: "A1", ChangingCell: "A2"}}},
		{"goal seek without changing cell", Configuration{GoalSeek: &GoalSeekConfig{TargetCell: "A1", TargetValue: &target}}},
		{"scenarios empty", Configuration{Scenarios: &ScenariosConfig{ResultCells: []string{"A1"}}}},
		{"scenario without cells", Configuration{Scenarios: &ScenariosConfig{
			Definitions: []ScenarioConfig{{Name: "x"}},
			ResultCells: []string{"A1"},
		}}},
		{"scenario unknown show", Configuration{Scenarios: &ScenariosConfig{
			Definitions: []ScenarioConfig{{Name: "x", Cells: []CellValueConfig{{Cell: "A1", Value: 1}}}},
			ResultCells: []string{"A2"},
			Show:        "y",
		}}},
		{"scenario non-scalar value", Configuration{Scenarios: &ScenariosConfig{
			Definitions: []ScenarioConfig{{Name: "x", Cells: []CellValueConfig{{Cell: "A1", Value: []int{1}}}}},
			ResultCells: []string{"A2"},
		}}},
		{"simulation bad distribution", Configuration{Simulation: &SimulationConfig{
			Inputs:      []SimulationInput{{Cell: "A1"}},
			OutputCells: []string{"A2"},
		}}},
		{"simulation no outputs", Configuration{Simulation: &SimulationConfig{}}},
		{"goal seek negative maxIterations", Configuration{GoalSeek: &GoalSeekConfig{
			TargetCell: "A1", TargetValue: &target, ChangingCell: "A2", MaxIterations: -5,
		}}},
		{"goal seek negative tolerance", Configuration{GoalSeek: &GoalSeekConfig{
			TargetCell: "A1", TargetValue: &target, ChangingCell: "A2", Tolerance: -1e-3,
		}}},
		{"simulation negative iterations", Configuration{Simulation: &SimulationConfig{
			Iterations:  -10,
			Inputs:      []SimulationInput{{Cell: "A1", Distribution: montecarlo.DistributionSpec{Type: "uniform", Min: 0, Max: 1}}},
			OutputCells: []string{"A2"},
		}}},
		{"simulation negative bins", Configuration{Simulation: &SimulationConfig{
			HistogramBins: -1,
			Inputs:        []SimulationInput{{Cell: "A1", Distribution: montecarlo.DistributionSpec{Type: "uniform", Min: 0, Max: 1}}},
			OutputCells:   []string{"A2"},
		}}},
		{"solver method", Configuration{Solver: &SolverConfig{Method: "annealing", ObjectiveCell: "A1", Variables: []SolverVariable{{Cell: "A2"}}}}},
		{"solver no variables", Configuration{Solver: &SolverConfig{ObjectiveCell: "A1"}}},
		{"solver duplicate variable", Configuration{Solver: &SolverConfig{ObjectiveCell: "A1", Variables: []SolverVariable{{Cell: "A2"}, {Cell: "$a$2"}}}}},
		{"solver constraint on unknown variable", Configuration{Solver: &SolverConfig{
			ObjectiveCell: "A1",
			Variables:     []SolverVariable{{Cell: "A2"}},
			Constraints:   []SolverConstraint{{Variable: "A3", Relation: "<="}},
		}}},
		{"solver constraint with both targets", Configuration{Solver: &SolverConfig{
			ObjectiveCell: "A1",
			Variables:     []SolverVariable{{Cell: "A2"}},
			Constraints:   []SolverConstraint{{Cell: "A3", Variable: "A2", Relation: "<="}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.conf.Normalize()
			if err := tt.conf.Validate(); err == nil {
				t.Fatalf("Validate() expected error")
			}
		})
	}
}

func TestScenarioChanges(t *testing.T) {
	d := ScenarioConfig{Name: "Mixed", Cells: []CellValueConfig{
		{Cell: "A1", Value: 5},
		{Cell: "A2", Value: "label"},
		{Cell: "A3", Value: true},
		{Cell: "A4", Value: nil},
	}}
	cells, values, err := d.Changes()
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(cells) != 4 || len(values) != 4 {
		t.Fatalf("Changes() returned %d cells and %d values", len(cells), len(values))
	}
	want := []model.CellValue{model.Number(5), model.Text("label"), model.Bool(true), model.Blank()}
	for i := range want {
		if !values[i].Equal(want[i]) {
			t.Fatalf("value %d = %#v, want %#v", i, values[i], want[i])
		}
	}

	sc := &ScenariosConfig{Definitions: []ScenarioConfig{{Name: " Mixed "}}}
	sc.Normalize()
	if sc.Definitions[0].Name != "Mixed" || sc.Definitions[0].CreatedBy != DefaultCreatedBy {
		t.Fatalf("Normalize() = %+v", sc.Definitions[0])
	}
}

func TestSimulationBuild(t *testing.T) {
	s := &SimulationConfig{
		Iterations: 10,
		Seed:       3,
		Inputs: []SimulationInput{
			{Cell: "A1", Distribution: distribution("normal", 0, 1)},
			{Cell: "A2", Distribution: distribution("normal", 5, 1)},
		},
		OutputCells:  []string{"B1"},
		Correlations: [][]float64{{1, 0.5}, {0.5, 1}},
	}
	cfg, err := s.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg.Iterations != 10 || cfg.Seed != 3 || len(cfg.Inputs) != 2 || cfg.Inputs[1].Distribution.Name() != "normal" {
		t.Fatalf("Build() = %+v", cfg)
	}

	s.Correlations = [][]float64{{1, 2}, {2, 1}}
	if _, err := s.Build(); !errors.Is(err, model.ErrInvalidParams) {
		t.Fatalf("Build() error = %v, want InvalidParams", err)
	}
}

func TestSolverLayout(t *testing.T) {
	conf, err := LoadConfigurationFromReader(strings.NewReader(exampleJob))
	if err != nil {
		t.Fatalf("LoadConfigurationFromReader() error = %v", err)
	}
	s := conf.Solver
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	layout, err := s.Layout()
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if layout.Problem.Objective.Kind != solver.Maximize {
		t.Fatalf("objective kind = %q", layout.Problem.Objective.Kind)
	}
	vars := layout.Problem.Variables
	if len(vars) != 2 || vars[0].Lower != 0 || !math.IsInf(vars[0].Upper, 1) || vars[1].Kind != solver.Integer {
		t.Fatalf("variables = %+v", vars)
	}
	if len(layout.ConstraintCells) != 1 || layout.ConstraintCells[0] != "Model!B3" {
		t.Fatalf("constraint cells = %v", layout.ConstraintCells)
	}
	cons := layout.Problem.Constraints
	if len(cons) != 2 {
		t.Fatalf("constraints = %+v", cons)
	}
	if cons[0].OnVariable || cons[0].Index != 0 || cons[0].Relation != solver.LessEqual || cons[0].RHS != 4 {
		t.Fatalf("cell constraint = %+v", cons[0])
	}
	if !cons[1].OnVariable || cons[1].Index != 0 || cons[1].Relation != solver.LessEqual || cons[1].RHS != 3 {
		t.Fatalf("variable constraint = %+v", cons[1])
	}

	opts := s.Options()
	if opts.Method != solver.MethodSimplex || !opts.ApplySolution || opts.MaxIterations != constants.SolverMaxIterations {
		t.Fatalf("Options() = %+v", opts)
	}
}

func TestSolverOptionsOverrides(t *testing.T) {
	apply := false
	s := &SolverConfig{
		Method:         "GA",
		ApplySolution:  &apply,
		PopulationSize: 12,
		Seed:           9,
		PenaltyWeight:  1e12,
	}
	s.Normalize()
	if s.Method != string(solver.MethodEvolutionary) {
		t.Fatalf("method = %q", s.Method)
	}
	o := s.Options()
	if o.ApplySolution || o.Evolutionary.PopulationSize != 12 || o.Evolutionary.Seed != 9 {
		t.Fatalf("Options() = %+v", o)
	}
	if o.GRG.MaxPenalty < o.GRG.PenaltyWeight {
		t.Fatalf("max penalty %v below weight %v", o.GRG.MaxPenalty, o.GRG.PenaltyWeight)
	}
	if CanonicalSolverMethod("") != solver.MethodGRG {
		t.Fatalf("default method = %q, want GRG", CanonicalSolverMethod(""))
	}
}

func distribution(kind string, mean, sd float64) montecarlo.DistributionSpec {
	return montecarlo.DistributionSpec{Type: kind, Mean: mean, StdDev: sd}
}
