// Package stats holds the statistical primitives shared by the analysis
// stages. Everything here is a pure function of its inputs.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary is the descriptive block for one numeric column.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Describe summarizes present values. It returns nil for an empty input.
func Describe(vals []float64) *Summary {
	if len(vals) == 0 {
		return nil
	}
	sorted := Sorted(vals)
	s := &Summary{
		Mean:   stat.Mean(vals, nil),
		Median: Quantile(sorted, 0.5),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Q25:    Quantile(sorted, 0.25),
		Q75:    Quantile(sorted, 0.75),
	}
	if len(vals) > 1 {
		s.Std = Finite(stat.StdDev(vals, nil))
	}
	return s
}

// Distribution describes the shape of a numeric column.
type Distribution struct {
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Shape    string  `json:"shape"`
	IsNormal bool    `json:"is_normal"`
}

// Shape labels.
const (
	ShapeSymmetric   = "symmetric"
	ShapeRightSkewed = "right_skewed"
	ShapeLeftSkewed  = "left_skewed"
)

// Shape computes bias-corrected skewness and excess kurtosis. Skewness needs
// three values and kurtosis four; below that, or for a constant column, the
// statistic is reported as zero.
func Shape(vals []float64) Distribution {
	var skew, kurt float64
	if len(vals) >= 3 && stat.StdDev(vals, nil) > 0 {
		skew = Finite(stat.Skew(vals, nil))
		if len(vals) >= 4 {
			kurt = Finite(stat.ExKurtosis(vals, nil))
		}
	}
	d := Distribution{Skewness: skew, Kurtosis: kurt}
	switch {
	case math.Abs(skew) < 0.5:
		d.Shape = ShapeSymmetric
	case skew > 0:
		d.Shape = ShapeRightSkewed
	default:
		d.Shape = ShapeLeftSkewed
	}
	d.IsNormal = math.Abs(skew) < 0.5 && math.Abs(kurt) < 3
	return d
}

// Sorted returns a sorted copy.
func Sorted(vals []float64) []float64 {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	return cp
}

// Quantile interpolates linearly between the closest ranks of a sorted slice.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Finite maps NaN and infinities to zero so results stay JSON encodable.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Round rounds to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
