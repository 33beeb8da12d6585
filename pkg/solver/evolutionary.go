package solver

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/mathutil"
)

// evolutionarySolver is a seeded genetic search using tournament selection,
// blend crossover, Gaussian mutation and elitism. Candidates are ranked by
// Deb's feasibility rules.
type evolutionarySolver struct {
	ev     *evaluator
	opts   EvolutionaryOptions
	tol    float64
	maxGen int
	report func(iteration int) bool

	rng    *rand.Rand
	lo, hi []float64
}

func newEvolutionarySolver(ev *evaluator, o Options, report func(int) bool) *evolutionarySolver {
	seed := o.Evolutionary.Seed
	return &evolutionarySolver{
		ev:     ev,
		opts:   o.Evolutionary,
		tol:    o.Tolerance,
		maxGen: o.MaxIterations,
		report: report,
		rng:    rand.New(rand.NewPCG(seed, seed^constants.SeedMixer)),
	}
}

// window replaces open bound sides with start ± SearchRadius.
func (s *evolutionarySolver) window(start []float64) {
	n := len(start)
	s.lo, s.hi = make([]float64, n), make([]float64, n)
	r := s.opts.SearchRadius
	for j, b := range s.ev.bounds {
		s.lo[j], s.hi[j] = b.lower, b.upper
		if math.IsInf(b.lower, -1) {
			s.lo[j] = start[j] - r
		}
		if math.IsInf(b.upper, 1) {
			s.hi[j] = start[j] + r
		}
	}
}

func (s *evolutionarySolver) random() []float64 {
	x := make([]float64, len(s.lo))
	for j := range x {
		x[j] = s.lo[j] + s.rng.Float64()*(s.hi[j]-s.lo[j])
	}
	return x
}

func (s *evolutionarySolver) tournament(pop []*candidate) *candidate {
	var best *candidate
	for k := 0; k < s.opts.TournamentSize; k++ {
		c := pop[s.rng.IntN(len(pop))]
		if c.better(best) {
			best = c
		}
	}
	return best
}

func (s *evolutionarySolver) breed(p1, p2 *candidate) []float64 {
	child := make([]float64, len(p1.x))
	cross := s.rng.Float64() < s.opts.CrossoverRate
	for j := range child {
		v := p1.x[j]
		if cross {
			u := s.rng.Float64()*1.5 - 0.25
			v += u * (p2.x[j] - p1.x[j])
		}
		if s.rng.Float64() < s.opts.MutationRate {
			v += s.rng.NormFloat64() * 0.1 * (s.hi[j] - s.lo[j])
		}
		child[j] = mathutil.Clamp(v, s.lo[j], s.hi[j])
	}
	return child
}

// improves reports whether c beats best by more than the tolerance.
func (s *evolutionarySolver) improves(c, best *candidate) bool {
	if c.feasible != best.feasible {
		return c.feasible
	}
	if c.feasible {
		return best.score-c.score > s.tol*(1+math.Abs(best.score))
	}
	return best.violation-c.violation > s.tol
}

func (s *evolutionarySolver) run(start []float64) (Status, int, error) {
	s.window(start)

	pop := make([]*candidate, 0, s.opts.PopulationSize)
	for len(pop) < s.opts.PopulationSize {
		x := start
		if len(pop) > 0 {
			x = s.random()
		}
		c, err := s.ev.evaluate(x)
		if err != nil {
			return "", 0, err
		}
		pop = append(pop, c)
	}

	best := pop[0]
	for _, c := range pop[1:] {
		if c.better(best) {
			best = c
		}
	}

	gen, stale := 0, 0
	for gen < s.maxGen && stale < s.opts.Patience {
		if s.ev.targetMet(s.ev.bestFeasible) {
			break
		}
		if gen > 0 && !s.report(gen) {
			return StatusCancelled, gen, nil
		}
		gen++

		sort.SliceStable(pop, func(a, b int) bool { return pop[a].better(pop[b]) })
		next := make([]*candidate, 0, s.opts.PopulationSize)
		next = append(next, pop[:s.opts.EliteCount]...)
		for len(next) < s.opts.PopulationSize {
			child := s.breed(s.tournament(pop), s.tournament(pop))
			c, err := s.ev.evaluate(child)
			if err != nil {
				return "", gen, err
			}
			next = append(next, c)
		}
		pop = next

		genBest := pop[0]
		for _, c := range pop[1:] {
			if c.better(genBest) {
				genBest = c
			}
		}
		if s.improves(genBest, best) {
			best, stale = genBest, 0
		} else {
			stale++
		}
	}

	switch {
	case s.ev.targetMet(s.ev.bestFeasible):
		return StatusOptimal, gen, nil
	case s.ev.bestFeasible != nil:
		return StatusFeasible, gen, nil
	default:
		return StatusInfeasible, gen, nil
	}
}
