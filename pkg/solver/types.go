// Package solver optimizes an objective over decision variables subject to
// constraints, using one of three strategies behind a single Solve entry point:
// simplex with branch-and-bound, a penalty-based projected gradient method,
// and a seeded evolutionary search.
package solver

import (
	"math"

	"github.com/iwvelando/whatif/pkg/constants"
)

// ObjectiveKind selects what the solver does with the objective value.
type ObjectiveKind string

const (
	Maximize ObjectiveKind = "maximize"
	Minimize ObjectiveKind = "minimize"
	// Target drives the objective to TargetValue.
	Target ObjectiveKind = "target"
)

// Objective describes the optimization goal.
type Objective struct {
	Kind            ObjectiveKind `json:"kind" yaml:"kind"`
	TargetValue     float64       `json:"targetValue,omitempty" yaml:"targetValue"`
	TargetTolerance float64       `json:"targetTolerance,omitempty" yaml:"targetTolerance"`
}

// VarKind restricts the domain of a decision variable.
type VarKind string

const (
	Continuous VarKind = "continuous"
	Integer    VarKind = "integer"
	Binary     VarKind = "binary"
)

// VarSpec bounds one decision variable. Infinite bounds leave that side open.
type VarSpec struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	Kind  VarKind `json:"kind" yaml:"kind"`
}

// Unbounded returns a continuous variable with no bounds.
func Unbounded() VarSpec {
	return VarSpec{Lower: math.Inf(-1), Upper: math.Inf(1), Kind: Continuous}
}

// NonNegative returns a continuous variable bounded below by zero.
func NonNegative() VarSpec {
	return VarSpec{Lower: 0, Upper: math.Inf(1), Kind: Continuous}
}

// Relation compares a constrained value against the right-hand side.
type Relation string

const (
	LessEqual    Relation = "<="
	GreaterEqual Relation = ">="
	Equal        Relation = "="
)

// Constraint restricts either a constraint residual of the model or, when
// OnVariable is set, a decision variable directly.
type Constraint struct {
	Index      int      `json:"index" yaml:"index"`
	OnVariable bool     `json:"onVariable,omitempty" yaml:"onVariable"`
	Relation   Relation `json:"relation" yaml:"relation"`
	RHS        float64  `json:"rhs" yaml:"rhs"`
	Tolerance  float64  `json:"tolerance,omitempty" yaml:"tolerance"`
}

// Problem is a complete optimization request.
type Problem struct {
	Objective   Objective    `json:"objective"`
	Variables   []VarSpec    `json:"variables"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Method names a solving strategy.
type Method string

const (
	MethodSimplex      Method = "simplex"
	MethodGRG          Method = "grg_nonlinear"
	MethodEvolutionary Method = "evolutionary"
)

// SimplexOptions tunes the linear strategy.
type SimplexOptions struct {
	// MaxNodes bounds the branch-and-bound search.
	MaxNodes int `json:"maxNodes" yaml:"maxNodes"`
	// DiffStep is the forward-difference step used to infer the linear model.
	DiffStep float64 `json:"diffStep" yaml:"diffStep"`
}

// GRGOptions tunes the penalty gradient strategy.
type GRGOptions struct {
	PenaltyWeight float64 `json:"penaltyWeight" yaml:"penaltyWeight"`
	PenaltyGrowth float64 `json:"penaltyGrowth" yaml:"penaltyGrowth"`
	MaxPenalty    float64 `json:"maxPenalty" yaml:"maxPenalty"`
	InitialStep   float64 `json:"initialStep" yaml:"initialStep"`
	DiffStep      float64 `json:"diffStep" yaml:"diffStep"`
}

// EvolutionaryOptions tunes the genetic strategy.
type EvolutionaryOptions struct {
	PopulationSize int     `json:"populationSize" yaml:"populationSize"`
	MutationRate   float64 `json:"mutationRate" yaml:"mutationRate"`
	CrossoverRate  float64 `json:"crossoverRate" yaml:"crossoverRate"`
	EliteCount     int     `json:"eliteCount" yaml:"eliteCount"`
	TournamentSize int     `json:"tournamentSize" yaml:"tournamentSize"`
	// Patience stops the search after this many generations without improvement.
	Patience int `json:"patience" yaml:"patience"`
	// SearchRadius is the half-width of the window used on unbounded sides.
	SearchRadius float64 `json:"searchRadius" yaml:"searchRadius"`
	Seed         uint64  `json:"seed" yaml:"seed"`
}

// Progress is reported between iterations, nodes or generations.
type Progress struct {
	Method        Method  `json:"method"`
	Iteration     int     `json:"iteration"`
	BestObjective float64 `json:"bestObjective"`
	Feasible      bool    `json:"feasible"`
}

// ProgressFunc returns false to cancel the search.
type ProgressFunc func(Progress) bool

// Options configures Solve. Start from DefaultOptions.
type Options struct {
	Method               Method  `json:"method" yaml:"method"`
	MaxIterations        int     `json:"maxIterations" yaml:"maxIterations"`
	Tolerance            float64 `json:"tolerance" yaml:"tolerance"`
	FeasibilityTolerance float64 `json:"feasibilityTolerance" yaml:"feasibilityTolerance"`
	ApplySolution        bool    `json:"applySolution" yaml:"applySolution"`

	Simplex      SimplexOptions      `json:"simplex" yaml:"simplex"`
	GRG          GRGOptions          `json:"grg" yaml:"grg"`
	Evolutionary EvolutionaryOptions `json:"evolutionary" yaml:"evolutionary"`

	Progress ProgressFunc `json:"-" yaml:"-"`
}

// DefaultOptions returns the simplex method with every default set.
func DefaultOptions() Options {
	return Options{
		Method:               MethodSimplex,
		MaxIterations:        constants.SolverMaxIterations,
		Tolerance:            constants.SolverTolerance,
		FeasibilityTolerance: constants.SolverFeasibilityTolerance,
		ApplySolution:        true,
		Simplex: SimplexOptions{
			MaxNodes: constants.SimplexMaxNodes,
			DiffStep: constants.SimplexDiffStep,
		},
		GRG: GRGOptions{
			PenaltyWeight: constants.GRGPenaltyWeight,
			PenaltyGrowth: constants.GRGPenaltyGrowth,
			MaxPenalty:    constants.GRGMaxPenalty,
			InitialStep:   constants.GRGInitialStep,
			DiffStep:      constants.GRGDiffStep,
		},
		Evolutionary: EvolutionaryOptions{
			PopulationSize: constants.EvolutionaryPopulation,
			MutationRate:   constants.EvolutionaryMutationRate,
			CrossoverRate:  constants.EvolutionaryCrossoverRate,
			EliteCount:     constants.EvolutionaryEliteCount,
			TournamentSize: constants.EvolutionaryTournament,
			Patience:       constants.EvolutionaryPatience,
			SearchRadius:   constants.EvolutionarySearchRadius,
		},
	}
}

// Status is the terminal state of a solve.
type Status string

const (
	StatusOptimal        Status = "Optimal"
	StatusFeasible       Status = "Feasible"
	StatusInfeasible     Status = "Infeasible"
	StatusUnbounded      Status = "Unbounded"
	StatusIterationLimit Status = "IterationLimit"
	StatusCancelled      Status = "Cancelled"
)

// Outcome reports the best point found. BestVars is nil when no feasible
// candidate was seen.
type Outcome struct {
	Status                 Status    `json:"status"`
	Method                 Method    `json:"method"`
	Iterations             int       `json:"iterations"`
	OriginalVars           []float64 `json:"originalVars"`
	BestVars               []float64 `json:"bestVars"`
	BestObjective          float64   `json:"bestObjective"`
	MaxConstraintViolation float64   `json:"maxConstraintViolation"`
}

// HasSolution reports whether a feasible point was found.
func (o *Outcome) HasSolution() bool { return o.BestVars != nil }
