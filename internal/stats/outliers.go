package stats

import (
	"gonum.org/v1/gonum/stat"
)

// Method names an outlier test.
type Method string

const (
	MethodIQR    Method = "iqr"
	MethodZScore Method = "zscore"
)

// DefaultMethods are the tests combined by DetectOutliers when none are given.
var DefaultMethods = []Method{MethodIQR, MethodZScore}

const (
	iqrFactor      = 1.5
	farOutFactor   = 3.0
	zScoreLimit    = 3.0
	SeverityNone   = "none"
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Outliers is the combined verdict of the enabled tests on one column.
type Outliers struct {
	Count int `json:"count"`
	// Percentage is on a 0-100 scale, relative to present values.
	Percentage float64   `json:"percentage"`
	Severity   string    `json:"severity"`
	Methods    []Method  `json:"methods_used"`
	Indices    []int     `json:"-"`
	Values     []float64 `json:"-"`
}

// DetectOutliers flags values by majority vote across methods: a value is an
// outlier when at least half of the tests flag it. Input order does not
// affect the count.
func DetectOutliers(vals []float64, methods ...Method) Outliers {
	if len(methods) == 0 {
		methods = DefaultMethods
	}
	res := Outliers{Severity: SeverityNone, Methods: methods}
	if len(vals) == 0 {
		return res
	}
	votes := make([]int, len(vals))
	for _, m := range methods {
		var flags []bool
		switch m {
		case MethodIQR:
			flags = iqrFlags(vals, iqrFactor)
		case MethodZScore:
			flags = zScoreFlags(vals, zScoreLimit)
		default:
			continue
		}
		for i, f := range flags {
			if f {
				votes[i]++
			}
		}
	}
	for i, v := range votes {
		if 2*v >= len(methods) && v > 0 {
			res.Indices = append(res.Indices, i)
			res.Values = append(res.Values, vals[i])
		}
	}
	res.Count = len(res.Indices)
	res.Percentage = float64(res.Count) / float64(len(vals)) * 100
	res.Severity = OutlierSeverity(res.Percentage)
	if res.Severity == SeverityLow && anyBeyondFarOut(vals, res.Values) {
		res.Severity = SeverityMedium
	}
	return res
}

// OutlierSeverity buckets a 0-100 outlier percentage.
func OutlierSeverity(pct float64) string {
	switch {
	case pct > 10:
		return SeverityHigh
	case pct > 5:
		return SeverityMedium
	case pct > 0:
		return SeverityLow
	}
	return SeverityNone
}

// IQRBounds returns Tukey's fences for the given factor.
func IQRBounds(vals []float64, factor float64) (lo, hi float64) {
	sorted := Sorted(vals)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - factor*iqr, q3 + factor*iqr
}

func iqrFlags(vals []float64, factor float64) []bool {
	lo, hi := IQRBounds(vals, factor)
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v < lo || v > hi
	}
	return out
}

func zScoreFlags(vals []float64, limit float64) []bool {
	out := make([]bool, len(vals))
	for i, z := range ZScores(vals) {
		out[i] = z > limit || z < -limit
	}
	return out
}

// ZScores standardizes values with the sample standard deviation. A constant
// or single-valued input yields all zeros.
func ZScores(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) < 2 {
		return out
	}
	mean, std := stat.MeanStdDev(vals, nil)
	if std == 0 || std != std {
		return out
	}
	for i, v := range vals {
		out[i] = (v - mean) / std
	}
	return out
}

// anyBeyondFarOut reports whether a flagged value lies past the 3*IQR fence,
// which marks a rare but extreme contamination as more than low severity.
func anyBeyondFarOut(all, flagged []float64) bool {
	lo, hi := IQRBounds(all, farOutFactor)
	for _, v := range flagged {
		if v < lo || v > hi {
			return true
		}
	}
	return false
}
