package montecarlo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentiles holds the fixed report percentiles.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// Bin is one histogram bucket covering [Lower, Upper). The last bin also
// includes Upper.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram is an equal-width histogram over [Min, Max].
type Histogram struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	BinWidth float64 `json:"binWidth"`
	Bins     []Bin   `json:"bins"`
}

// Total returns the number of samples counted.
func (h Histogram) Total() int {
	n := 0
	for _, b := range h.Bins {
		n += b.Count
	}
	return n
}

// Statistics summarizes the samples of one output cell.
type Statistics struct {
	Mean        float64     `json:"mean"`
	Median      float64     `json:"median"`
	StdDev      float64     `json:"stdDev"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	Percentiles Percentiles `json:"percentiles"`
	Histogram   Histogram   `json:"histogram"`
}

// Summarize computes statistics for samples using bins histogram buckets.
// The standard deviation is the sample (n-1) estimate, zero for n <= 1.
func Summarize(samples []float64, bins int) Statistics {
	n := len(samples)
	if n == 0 {
		return Statistics{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	s := Statistics{
		Mean:   stat.Mean(samples, nil),
		Median: Percentile(sorted, 0.5),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Percentiles: Percentiles{
			P5:  Percentile(sorted, 0.05),
			P10: Percentile(sorted, 0.10),
			P25: Percentile(sorted, 0.25),
			P75: Percentile(sorted, 0.75),
			P90: Percentile(sorted, 0.90),
			P95: Percentile(sorted, 0.95),
		},
	}
	if n > 1 {
		s.StdDev = stat.StdDev(samples, nil)
	}
	s.Histogram = buildHistogram(sorted, bins)
	return s
}

// Percentile interpolates linearly between the closest ranks of sorted at
// rank p*(n-1), matching the inclusive spreadsheet definition.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	frac := rank - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}
	if d := sorted[hi] - sorted[lo]; !math.IsInf(d, 0) {
		return sorted[lo] + frac*d
	}
	return (1-frac)*sorted[lo] + frac*sorted[hi]
}

func buildHistogram(sorted []float64, bins int) Histogram {
	n := len(sorted)
	lo, hi := sorted[0], sorted[n-1]
	if lo == hi || bins <= 1 {
		return Histogram{
			Min:      lo,
			Max:      hi,
			BinWidth: hi - lo,
			Bins:     []Bin{{Lower: lo, Upper: hi, Count: n}},
		}
	}

	width := (hi - lo) / float64(bins)
	divider := func(i int) float64 { return lo + float64(i)*width }
	if math.IsInf(width, 0) {
		// The range exceeds MaxFloat64; interpolate between the endpoints.
		width = hi/float64(bins) - lo/float64(bins)
		divider = func(i int) float64 {
			t := float64(i) / float64(bins)
			return (1-t)*lo + t*hi
		}
	}
	dividers := make([]float64, bins+1)
	dividers[0] = lo
	for i := 1; i < bins; i++ {
		dividers[i] = divider(i)
	}
	// The maximum must land in the last bin, whose upper divider is exclusive.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)

	h := Histogram{Min: lo, Max: hi, BinWidth: width, Bins: make([]Bin, bins)}
	for i := 0; i < bins; i++ {
		upper := dividers[i+1]
		if i == bins-1 {
			upper = hi
		}
		h.Bins[i] = Bin{Lower: dividers[i], Upper: upper, Count: int(counts[i])}
	}
	return h
}
