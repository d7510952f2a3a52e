package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Pearson returns the correlation of the pairwise-complete observations of x
// and y (NaN entries are dropped pair by pair). ok is false when fewer than
// three pairs remain or either side is constant.
func Pearson(x, y []float64) (r float64, n int, ok bool) {
	xs, ys := completePairs(x, y)
	n = len(xs)
	if n < 3 {
		return 0, n, false
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return 0, n, false
	}
	r = stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0, n, false
	}
	return clamp(r, -1, 1), n, true
}

func completePairs(x, y []float64) ([]float64, []float64) {
	n := min(len(x), len(y))
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

// Trend is an ordinary least squares fit of values against their position.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	RSquared  float64 `json:"r_squared"`
	PValue    float64 `json:"p_value"`
	N         int     `json:"n"`
}

// LinearTrend regresses y on x and tests the slope against zero with a
// two-sided t test on n-2 degrees of freedom. ok is false for fewer than three
// points or a constant series.
func LinearTrend(x, y []float64) (Trend, bool) {
	if len(x) != len(y) || len(x) < 3 {
		return Trend{}, false
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return Trend{}, false
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r := clamp(stat.Correlation(x, y, nil), -1, 1)
	t := Trend{Slope: beta, Intercept: alpha, R: r, RSquared: r * r, N: len(x)}
	t.PValue = slopePValue(r, len(x))
	return t, true
}

func slopePValue(r float64, n int) float64 {
	df := float64(n - 2)
	if df <= 0 {
		return 1
	}
	denom := 1 - r*r
	if denom <= 0 {
		return 0
	}
	tstat := math.Abs(r) * math.Sqrt(df/denom)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - dist.CDF(tstat))
	return clamp(p, 0, 1)
}

// PopulationZScores standardizes with the population standard deviation.
// A constant input yields all zeros.
func PopulationZScores(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	mean, variance := stat.PopMeanVariance(vals, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, v := range vals {
		out[i] = (v - mean) / std
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
