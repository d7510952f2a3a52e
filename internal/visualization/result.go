package visualization

// Chart kinds.
const (
	ChartHistogram = "histogram"
	ChartScatter   = "scatter"
	ChartBar       = "bar"
	ChartHeatmap   = "heatmap"
)

// Result is the visualization block of an analysis.
type Result struct {
	Charts          []Chart          `json:"charts"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
}

type Summary struct {
	TotalCharts          int      `json:"total_charts"`
	ChartTypes           []string `json:"chart_types"`
	RecommendationsCount int      `json:"recommendations_count"`
}

// Chart is a renderable chart descriptor. Config is a Plotly-style figure
// (data traces plus layout); it is kept out of the JSON encoding of the
// result and persisted on its own.
type Chart struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Column      string         `json:"column,omitempty"`
	Columns     []string       `json:"columns,omitempty"`
	Description string         `json:"description"`
	Config      map[string]any `json:"-"`
}

// Recommendation suggests a chart the stage did not build.
type Recommendation struct {
	Type           string `json:"type"`
	Priority       string `json:"priority"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	SuggestedChart string `json:"suggested_chart"`
}
