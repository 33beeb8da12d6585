package montecarlo

import (
	"math"
	"strings"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/validation"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution is a sampling distribution for one input cell. Every draw is
// an inverse-CDF transform of a uniform in (0,1), which keeps sampling
// reproducible for a given seed.
type Distribution interface {
	// Name is the distribution type as used in DistributionSpec.
	Name() string

	validate() error
	inverse(u float64) float64
	// correlatable reports whether the distribution may take part in a
	// Gaussian copula.
	correlatable() bool
}

// Normal is the normal distribution. A zero StdDev yields the mean.
type Normal struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

func (Normal) Name() string { return "normal" }

func (d Normal) validate() error {
	if err := validation.Finite("normal mean", d.Mean); err != nil {
		return err
	}
	return validation.NonNegativeFinite("normal stdDev", d.StdDev)
}

func (d Normal) inverse(u float64) float64 {
	if d.StdDev == 0 {
		return d.Mean
	}
	return distuv.Normal{Mu: d.Mean, Sigma: d.StdDev}.Quantile(u)
}

func (Normal) correlatable() bool { return true }

// Uniform is the continuous uniform distribution on [Min, Max].
type Uniform struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (Uniform) Name() string { return "uniform" }

func (d Uniform) validate() error {
	if err := validation.Finite("uniform min", d.Min); err != nil {
		return err
	}
	if err := validation.Finite("uniform max", d.Max); err != nil {
		return err
	}
	if d.Min > d.Max {
		return model.InvalidParams("uniform min %v exceeds max %v", d.Min, d.Max)
	}
	return nil
}

func (d Uniform) inverse(u float64) float64 {
	if d.Min == d.Max {
		return d.Min
	}
	return distuv.Uniform{Min: d.Min, Max: d.Max}.Quantile(u)
}

func (Uniform) correlatable() bool { return true }

// Triangular is the triangular distribution with the given mode.
type Triangular struct {
	Min  float64 `json:"min"`
	Mode float64 `json:"mode"`
	Max  float64 `json:"max"`
}

func (Triangular) Name() string { return "triangular" }

func (d Triangular) validate() error {
	if err := validation.Finite("triangular min", d.Min); err != nil {
		return err
	}
	if err := validation.Finite("triangular mode", d.Mode); err != nil {
		return err
	}
	if err := validation.Finite("triangular max", d.Max); err != nil {
		return err
	}
	if d.Min > d.Mode || d.Mode > d.Max {
		return model.InvalidParams("triangular requires min <= mode <= max, got %v, %v, %v", d.Min, d.Mode, d.Max)
	}
	return nil
}

func (d Triangular) inverse(u float64) float64 {
	if d.Min == d.Max {
		return d.Min
	}
	return distuv.NewTriangle(d.Min, d.Max, d.Mode, nil).Quantile(u)
}

func (Triangular) correlatable() bool { return true }

// LogNormal is parameterized by the mean and standard deviation of the
// underlying normal distribution.
type LogNormal struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

func (LogNormal) Name() string { return "lognormal" }

func (d LogNormal) validate() error {
	if err := validation.Finite("lognormal mu", d.Mu); err != nil {
		return err
	}
	return validation.PositiveFinite("lognormal sigma", d.Sigma)
}

func (d LogNormal) inverse(u float64) float64 {
	return distuv.LogNormal{Mu: d.Mu, Sigma: d.Sigma}.Quantile(u)
}

func (LogNormal) correlatable() bool { return true }

// Discrete draws one of Values with the given relative Probabilities. The
// probabilities are normalized by their sum.
type Discrete struct {
	Values        []float64 `json:"values"`
	Probabilities []float64 `json:"probabilities"`
}

func (Discrete) Name() string { return "discrete" }

func (d Discrete) validate() error {
	if len(d.Values) == 0 {
		return model.InvalidParams("discrete distribution needs at least one value")
	}
	if len(d.Values) != len(d.Probabilities) {
		return model.InvalidParams("discrete distribution has %d values but %d probabilities", len(d.Values), len(d.Probabilities))
	}
	sum := 0.0
	for i := range d.Values {
		if err := validation.Finite("discrete value", d.Values[i]); err != nil {
			return err
		}
		if err := validation.NonNegativeFinite("discrete probability", d.Probabilities[i]); err != nil {
			return err
		}
		sum += d.Probabilities[i]
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return model.InvalidParams("discrete probabilities must have a positive finite sum, got %v", sum)
	}
	return nil
}

func (d Discrete) inverse(u float64) float64 {
	sum := 0.0
	for _, p := range d.Probabilities {
		sum += p
	}
	target := u * sum
	cum := 0.0
	last := 0
	for i, p := range d.Probabilities {
		if p == 0 {
			continue
		}
		last = i
		cum += p
		if target <= cum {
			return d.Values[i]
		}
	}
	return d.Values[last]
}

func (Discrete) correlatable() bool { return false }

// Beta is the beta distribution on [0, 1].
type Beta struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

func (Beta) Name() string { return "beta" }

func (d Beta) validate() error {
	if err := validation.PositiveFinite("beta alpha", d.Alpha); err != nil {
		return err
	}
	return validation.PositiveFinite("beta beta", d.Beta)
}

func (d Beta) inverse(u float64) float64 {
	return distuv.Beta{Alpha: d.Alpha, Beta: d.Beta}.Quantile(u)
}

func (Beta) correlatable() bool { return true }

// Exponential is the exponential distribution with the given rate.
type Exponential struct {
	Rate float64 `json:"rate"`
}

func (Exponential) Name() string { return "exponential" }

func (d Exponential) validate() error {
	return validation.PositiveFinite("exponential rate", d.Rate)
}

func (d Exponential) inverse(u float64) float64 {
	return distuv.Exponential{Rate: d.Rate}.Quantile(u)
}

func (Exponential) correlatable() bool { return true }

// Poisson is the Poisson distribution with mean Lambda.
type Poisson struct {
	Lambda float64 `json:"lambda"`
}

func (Poisson) Name() string { return "poisson" }

// MaxPoissonLambda bounds Poisson means. Exact inversion walks about
// sqrt(lambda) pmf terms per draw, and far beyond this range a float64 count
// can no longer step by one.
const MaxPoissonLambda = 1e9

func (d Poisson) validate() error {
	if err := validation.PositiveFinite("poisson lambda", d.Lambda); err != nil {
		return err
	}
	if d.Lambda > MaxPoissonLambda {
		return model.InvalidParams("poisson lambda must not exceed %g, got %g", float64(MaxPoissonLambda), d.Lambda)
	}
	return nil
}

// inverse finds the smallest k with CDF(k) >= u, walking outwards from the
// mode so the number of pmf evaluations stays near sqrt(lambda).
func (d Poisson) inverse(u float64) float64 {
	dist := distuv.Poisson{Lambda: d.Lambda}
	k := math.Floor(d.Lambda)
	cdf := dist.CDF(k)

	if u <= cdf {
		for k > 0 {
			below := cdf - dist.Prob(k)
			if u > below {
				break
			}
			cdf = below
			k--
		}
		return k
	}
	for u > cdf {
		p := dist.Prob(k + 1)
		if p == 0 {
			break
		}
		k++
		cdf += p
	}
	return k
}

func (Poisson) correlatable() bool { return false }

// DistributionSpec is the serializable form of a Distribution.
type DistributionSpec struct {
	Type          string    `json:"type" yaml:"type" mapstructure:"type"`
	Mean          float64   `json:"mean,omitempty" yaml:"mean" mapstructure:"mean"`
	StdDev        float64   `json:"stdDev,omitempty" yaml:"stdDev" mapstructure:"stddev"`
	Min           float64   `json:"min,omitempty" yaml:"min" mapstructure:"min"`
	Mode          float64   `json:"mode,omitempty" yaml:"mode" mapstructure:"mode"`
	Max           float64   `json:"max,omitempty" yaml:"max" mapstructure:"max"`
	Mu            float64   `json:"mu,omitempty" yaml:"mu" mapstructure:"mu"`
	Sigma         float64   `json:"sigma,omitempty" yaml:"sigma" mapstructure:"sigma"`
	Alpha         float64   `json:"alpha,omitempty" yaml:"alpha" mapstructure:"alpha"`
	Beta          float64   `json:"beta,omitempty" yaml:"beta" mapstructure:"beta"`
	Rate          float64   `json:"rate,omitempty" yaml:"rate" mapstructure:"rate"`
	Lambda        float64   `json:"lambda,omitempty" yaml:"lambda" mapstructure:"lambda"`
	Values        []float64 `json:"values,omitempty" yaml:"values" mapstructure:"values"`
	Probabilities []float64 `json:"probabilities,omitempty" yaml:"probabilities" mapstructure:"probabilities"`
}

// Build converts the spec to a validated Distribution.
func (s DistributionSpec) Build() (Distribution, error) {
	var d Distribution
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "normal":
		d = Normal{Mean: s.Mean, StdDev: s.StdDev}
	case "uniform":
		d = Uniform{Min: s.Min, Max: s.Max}
	case "triangular":
		d = Triangular{Min: s.Min, Mode: s.Mode, Max: s.Max}
	case "lognormal":
		d = LogNormal{Mu: s.Mu, Sigma: s.Sigma}
	case "discrete":
		d = Discrete{Values: append([]float64(nil), s.Values...), Probabilities: append([]float64(nil), s.Probabilities...)}
	case "beta":
		d = Beta{Alpha: s.Alpha, Beta: s.Beta}
	case "exponential":
		d = Exponential{Rate: s.Rate}
	case "poisson":
		d = Poisson{Lambda: s.Lambda}
	default:
		return nil, model.InvalidParams("unknown distribution type %q", s.Type)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}
