// Package constants provides shared constants for the whatif toolkit.
package constants

// Goal seek defaults
const (
	// GoalSeekMaxIterations is the default probe budget for goal seek
	GoalSeekMaxIterations = 100

	// GoalSeekTolerance is the default absolute tolerance on |output - target|
	GoalSeekTolerance = 1e-7

	// GoalSeekMinDerivative is the slope below which goal seek falls back to bisection
	GoalSeekMinDerivative = 1e-10

	// GoalSeekMaxBracketExpansions bounds the bisection bracket search
	GoalSeekMaxBracketExpansions = 50

	// GoalSeekRelativeStep scales the automatic derivative step by |input|
	GoalSeekRelativeStep = 0.001

	// GoalSeekMinStep is the smallest automatic derivative step
	GoalSeekMinStep = 0.001
)

// Monte Carlo defaults
const (
	// SimulationIterations is the default number of Monte Carlo iterations
	SimulationIterations = 10000

	// HistogramBins is the default number of equal-width histogram bins
	HistogramBins = 50

	// CorrelationTolerance is the tolerance for symmetry and unit-diagonal checks
	CorrelationTolerance = 1e-9

	// SeedMixer is xored with the seed to derive the second PCG word
	SeedMixer uint64 = 0x9E3779B97F4A7C15
)

// Solver defaults
const (
	SolverMaxIterations        = 500
	SolverTolerance            = 1e-8
	SolverFeasibilityTolerance = 1e-6

	// SimplexMaxNodes is the branch-and-bound node budget
	SimplexMaxNodes = 1000

	// SimplexDiffStep is the forward-difference step used to infer the linear model
	SimplexDiffStep = 1e-3

	GRGPenaltyWeight = 10.0
	GRGPenaltyGrowth = 10.0
	GRGMaxPenalty    = 1e10
	GRGInitialStep   = 1.0
	GRGDiffStep      = 1e-6

	EvolutionaryPopulation    = 50
	EvolutionaryMutationRate  = 0.1
	EvolutionaryCrossoverRate = 0.8
	EvolutionaryEliteCount    = 2
	EvolutionaryTournament    = 3
	EvolutionaryPatience      = 40

	// EvolutionarySearchRadius is the half-width of the window used for unbounded sides
	EvolutionarySearchRadius = 10.0
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default job file name
	DefaultConfigFile = "whatif.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix is the prefix for environment overrides of job settings
	EnvPrefix = "WHATIF"

	// BaseScenarioName labels the base row of a scenario summary report
	BaseScenarioName = "Base"

	// DefaultSheetName is the sheet used when a workbook declares none
	DefaultSheetName = "Sheet1"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultMaxSessions bounds the number of live workbook sessions
	DefaultMaxSessions = 64
)

// DisplayPrecision is the number of decimals used by the pretty printer
const DisplayPrecision = 6
