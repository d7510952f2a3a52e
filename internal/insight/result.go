package insight

// Result is the insight discovery block of an analysis.
type Result struct {
	Insights     []Insight     `json:"insights"`
	Correlations []Correlation `json:"correlations"`
	Trends       []Trend       `json:"trends"`
	Anomalies    []Anomaly     `json:"anomalies"`
	Patterns     []Pattern     `json:"patterns"`
	Summary      Summary       `json:"summary"`
}

type Summary struct {
	TotalInsights          int `json:"total_insights"`
	HighConfidenceInsights int `json:"high_confidence_insights"`
	CorrelationsFound      int `json:"correlations_found"`
	TrendsFound            int `json:"trends_found"`
	AnomaliesFound         int `json:"anomalies_found"`
}

// Correlation is a significant pairwise relationship. Column1 precedes
// Column2 in dataset order.
type Correlation struct {
	Column1     string  `json:"column1"`
	Column2     string  `json:"column2"`
	Coefficient float64 `json:"correlation"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
	Confidence  float64 `json:"confidence"`
}

type Trend struct {
	Column           string  `json:"column"`
	Type             string  `json:"type"`
	Slope            float64 `json:"slope"`
	RSquared         float64 `json:"r_squared"`
	PValue           float64 `json:"p_value"`
	PercentageChange float64 `json:"percentage_change"`
	Confidence       float64 `json:"confidence"`
	Significance     string  `json:"significance"`
}

// Anomaly summarizes z-score outliers in one column. Percentage is a 0-1
// share of all rows.
type Anomaly struct {
	Column       string    `json:"column"`
	Count        int       `json:"count"`
	Percentage   float64   `json:"percentage"`
	SampleValues []float64 `json:"sample_values"`
	Method       string    `json:"method"`
	Threshold    float64   `json:"threshold"`
	Severity     string    `json:"severity"`
}

// Pattern kinds.
const (
	PatternDominantCategory   = "dominant_category"
	PatternConcentratedValues = "concentrated_values"
)

type Pattern struct {
	Type        string    `json:"type"`
	Column      string    `json:"column"`
	Value       string    `json:"value,omitempty"`
	Percentage  float64   `json:"percentage,omitempty"`
	Range       []float64 `json:"range,omitempty"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
}

// Insight kinds.
const (
	TypeCorrelation = "correlation"
	TypeTrend       = "trend"
	TypeAnomaly     = "anomaly"
	TypePattern     = "pattern"
)

// Insight is a ranked natural-language finding.
type Insight struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Evidence    map[string]any `json:"evidence"`
	Actionable  bool           `json:"actionable"`
	Action      string         `json:"action,omitempty"`
}

// StrongCorrelations returns correlations with |r| above threshold.
func (r *Result) StrongCorrelations(threshold float64) []Correlation {
	var out []Correlation
	for _, c := range r.Correlations {
		if c.Coefficient > threshold || c.Coefficient < -threshold {
			out = append(out, c)
		}
	}
	return out
}
