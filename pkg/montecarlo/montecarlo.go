// Package montecarlo samples input cells from probability distributions,
// recalculates the model once per iteration and aggregates the output cells.
package montecarlo

import (
	"math"
	"math/rand/v2"

	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/validation"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Input binds a distribution to the cell it is written to.
type Input struct {
	Cell         model.CellRef
	Distribution Distribution
}

// Config describes a simulation run.
type Config struct {
	Iterations  int
	Inputs      []Input
	OutputCells []model.CellRef
	Seed        uint64
	// Correlations is an optional correlation matrix over Inputs.
	Correlations  [][]float64
	HistogramBins int
}

// NewConfig returns a Config with the default iteration and bin counts.
func NewConfig() Config {
	return Config{
		Iterations:    constants.SimulationIterations,
		HistogramBins: constants.HistogramBins,
	}
}

// Validate checks every precondition without touching a model.
func (c Config) Validate() error {
	if err := validation.PositiveInt("iterations", c.Iterations); err != nil {
		return err
	}
	if err := validation.PositiveInt("histogramBins", c.HistogramBins); err != nil {
		return err
	}
	if len(c.OutputCells) == 0 {
		return model.InvalidParams("at least one output cell is required")
	}
	for i, ref := range c.OutputCells {
		if err := validation.CellRequired("output cell", ref); err != nil {
			return model.WithContext(err, "output %d", i)
		}
	}
	cells := make([]model.CellRef, len(c.Inputs))
	for i, in := range c.Inputs {
		if err := validation.CellRequired("input cell", in.Cell); err != nil {
			return model.WithContext(err, "input %d", i)
		}
		if in.Distribution == nil {
			return model.InvalidParams("input %d (%s) has no distribution", i, in.Cell)
		}
		if err := in.Distribution.validate(); err != nil {
			return model.WithContext(err, "input %d (%s)", i, in.Cell)
		}
		cells[i] = in.Cell
	}
	if err := validation.UniqueCells("inputs", cells); err != nil {
		return err
	}
	if c.Correlations != nil {
		return ValidateCorrelation(c.Correlations, c.Inputs)
	}
	return nil
}

// Result holds per-output statistics and the raw samples in iteration order.
type Result struct {
	Iterations    int                          `json:"iterations"`
	OutputStats   map[model.CellRef]Statistics `json:"outputStats"`
	OutputSamples map[model.CellRef][]float64  `json:"outputSamples"`
}

// Progress reports how many iterations have completed.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ProgressFunc receives progress roughly every 1% of iterations. It may be nil.
type ProgressFunc func(Progress)

// Run executes the simulation. Sampled input cells are left at the values of
// the last iteration.
func Run(logger *zap.Logger, m model.Model, cfg Config, progress ProgressFunc) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		return nil, model.InvalidParams("model is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var lower *mat.TriDense
	if cfg.Correlations != nil {
		var err error
		if lower, err = choleskyFactor(cfg.Correlations, cfg.Inputs); err != nil {
			return nil, err
		}
	}

	outputs := uniqueOutputs(cfg.OutputCells)
	samples := make(map[model.CellRef][]float64, len(outputs))
	for _, ref := range outputs {
		samples[ref] = make([]float64, 0, cfg.Iterations)
	}

	logger.Debug("simulation starting",
		zap.String("op", "montecarlo.Run"),
		zap.Int("iterations", cfg.Iterations),
		zap.Int("inputs", len(cfg.Inputs)),
		zap.Int("outputs", len(outputs)),
		zap.Uint64("seed", cfg.Seed),
		zap.Bool("correlated", lower != nil),
	)

	s := newSampler(cfg.Seed, cfg.Inputs, lower)
	every := cfg.Iterations / 100
	if every < 1 {
		every = 1
	}

	for it := 1; it <= cfg.Iterations; it++ {
		draws := s.next()
		for i, in := range cfg.Inputs {
			if err := model.WriteNumber(m, in.Cell, draws[i]); err != nil {
				return nil, err
			}
		}
		if err := model.Recalculate(m); err != nil {
			return nil, err
		}
		for _, ref := range outputs {
			v, err := model.ReadNumber(m, ref)
			if err != nil {
				return nil, err
			}
			if !mathutil.IsFinite(v) {
				return nil, model.NonNumeric(ref, model.Number(v))
			}
			samples[ref] = append(samples[ref], v)
		}
		if progress != nil && (it%every == 0 || it == cfg.Iterations) {
			progress(Progress{Completed: it, Total: cfg.Iterations})
		}
	}

	result := &Result{
		Iterations:    cfg.Iterations,
		OutputStats:   make(map[model.CellRef]Statistics, len(outputs)),
		OutputSamples: samples,
	}
	for _, ref := range outputs {
		st := Summarize(samples[ref], cfg.HistogramBins)
		result.OutputStats[ref] = st
		logger.Info("simulation output summarized",
			zap.String("op", "montecarlo.Run"),
			zap.String("cell", string(ref)),
			zap.Float64("mean", st.Mean),
			zap.Float64("stdDev", st.StdDev),
			zap.Float64("min", st.Min),
			zap.Float64("max", st.Max),
		)
	}
	return result, nil
}

// uniqueOutputs drops repeated output cells, keeping the first spelling.
func uniqueOutputs(refs []model.CellRef) []model.CellRef {
	seen := make(map[model.CellRef]struct{}, len(refs))
	out := make([]model.CellRef, 0, len(refs))
	for _, ref := range refs {
		key := ref.Normalize()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// sampler draws one vector of input values per iteration from a PCG stream.
type sampler struct {
	rng    *rand.Rand
	inputs []Input
	lower  *mat.TriDense

	u, z, out []float64
}

func newSampler(seed uint64, inputs []Input, lower *mat.TriDense) *sampler {
	n := len(inputs)
	return &sampler{
		rng:    rand.New(rand.NewPCG(seed, seed^constants.SeedMixer)),
		inputs: inputs,
		lower:  lower,
		u:      make([]float64, n),
		z:      make([]float64, n),
		out:    make([]float64, n),
	}
}

// next returns the draws for one iteration. The slice is reused.
func (s *sampler) next() []float64 {
	for i := range s.u {
		s.u[i] = openUniform(s.rng)
	}
	if s.lower != nil {
		for i := range s.u {
			s.z[i] = distuv.UnitNormal.Quantile(s.u[i])
		}
		n := len(s.u)
		for i := 0; i < n; i++ {
			corr := 0.0
			for j := 0; j <= i; j++ {
				corr += s.lower.At(i, j) * s.z[j]
			}
			s.u[i] = clampOpen(distuv.UnitNormal.CDF(corr))
		}
	}
	for i, in := range s.inputs {
		s.out[i] = in.Distribution.inverse(s.u[i])
	}
	return s.out
}

// openUniform returns a uniform draw strictly inside (0, 1).
func openUniform(rng *rand.Rand) float64 {
	return (float64(rng.Uint64()>>11) + 0.5) / (1 << 53)
}

func clampOpen(u float64) float64 {
	if u <= 0 {
		return math.SmallestNonzeroFloat64
	}
	if u >= 1 {
		return math.Nextafter(1, 0)
	}
	return u
}
