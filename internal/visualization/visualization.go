// Package visualization decides which charts describe a dataset best and
// builds renderable chart descriptors for them.
package visualization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/stats"
)

const (
	Name        = "visualization"
	Description = "Chart generation and visualization"
)

const (
	maxHistograms     = 5
	maxScatter        = 3
	maxBars           = 3
	maxBarCategories  = 20
	barTopN           = 10
	scatterMinR       = 0.5
	explorationCutoff = 3
)

var geoKeywords = []string{"country", "state", "city", "region", "location", "lat", "lon", "latitude", "longitude"}

// Selector is the visualization stage.
type Selector struct {
	*agent.Agent
	newID func() string
}

// New creates a visualization stage.
func New(log *zap.Logger) *Selector {
	s := &Selector{newID: uuid.NewString}
	s.Agent = agent.New(Name, Description, s, log)
	return s
}

// FromContext returns the visualization block written earlier in the run.
func FromContext(actx *agent.Context) *Result {
	if o, ok := agent.Lookup[*agent.Outcome](actx, Name); ok && o.OK() {
		if r, ok := o.Results.(*Result); ok {
			return r
		}
	}
	return nil
}

// Analyze implements agent.Analyzer.
func (s *Selector) Analyze(ctx context.Context, ds *dataset.Dataset, actx *agent.Context) (any, error) {
	if ds == nil {
		return nil, fmt.Errorf("%s: no dataset", Name)
	}
	s.Emit("Analyzing data for visualization", agent.StatusRunning, map[string]any{
		"rows": ds.Rows(), "columns": ds.Width(),
	})
	res := &Result{Charts: []Chart{}}

	s.Emit("Generating distribution charts", agent.StatusRunning, nil)
	res.Charts = append(res.Charts, s.histograms(ds)...)

	s.Emit("Generating relationship charts", agent.StatusRunning, nil)
	res.Charts = append(res.Charts, s.scatters(ds)...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Emit("Generating categorical charts", agent.StatusRunning, nil)
	res.Charts = append(res.Charts, s.bars(ds)...)

	s.Emit("Generating correlation heatmap", agent.StatusRunning, nil)
	res.Charts = append(res.Charts, s.heatmap(ds)...)

	res.Recommendations = recommendations(ds, profiler.FromContext(actx), len(res.Charts))
	res.Summary = Summary{
		TotalCharts:          len(res.Charts),
		ChartTypes:           chartTypes(res.Charts),
		RecommendationsCount: len(res.Recommendations),
	}
	s.Emit("Visualization generation completed", agent.StatusCompleted, map[string]any{
		"total_charts":          res.Summary.TotalCharts,
		"chart_types":           res.Summary.ChartTypes,
		"recommendations_count": res.Summary.RecommendationsCount,
	})
	return res, nil
}

func (s *Selector) histograms(ds *dataset.Dataset) []Chart {
	var out []Chart
	for _, col := range ds.NumericColumns() {
		if len(out) >= maxHistograms {
			break
		}
		if len(col.Values()) == 0 {
			continue
		}
		title := "Distribution of " + col.Name
		out = append(out, Chart{
			ID:          s.newID(),
			Type:        ChartHistogram,
			Title:       title,
			Column:      col.Name,
			Description: "Shows the frequency distribution of " + col.Name,
			Config:      histogramFigure(col, title),
		})
	}
	return out
}

// scatters walks numeric pairs in column order and keeps the first three
// whose |r| exceeds 0.5.
func (s *Selector) scatters(ds *dataset.Dataset) []Chart {
	cols := ds.NumericColumns()
	var out []Chart
	for i := 0; i < len(cols) && len(out) < maxScatter; i++ {
		for j := i + 1; j < len(cols) && len(out) < maxScatter; j++ {
			r, _, ok := stats.Pearson(cols[i].Floats(), cols[j].Floats())
			if !ok || math.Abs(r) <= scatterMinR {
				continue
			}
			c1, c2 := cols[i].Name, cols[j].Name
			out = append(out, Chart{
				ID:          s.newID(),
				Type:        ChartScatter,
				Title:       c1 + " vs " + c2,
				Columns:     []string{c1, c2},
				Description: fmt.Sprintf("Relationship between %s and %s (correlation: %s)", c1, c2, formatR(r)),
				Config:      scatterFigure(cols[i], cols[j], r),
			})
		}
	}
	return out
}

func (s *Selector) bars(ds *dataset.Dataset) []Chart {
	var out []Chart
	for _, col := range ds.ObjectColumns() {
		if len(out) >= maxBars {
			break
		}
		counts := col.Counts()
		if len(counts) == 0 || len(counts) > maxBarCategories {
			continue
		}
		if len(counts) > barTopN {
			counts = counts[:barTopN]
		}
		out = append(out, Chart{
			ID:          s.newID(),
			Type:        ChartBar,
			Title:       "Distribution of " + col.Name,
			Column:      col.Name,
			Description: "Shows the frequency of each category in " + col.Name,
			Config:      barFigure(col.Name, counts),
		})
	}
	return out
}

func (s *Selector) heatmap(ds *dataset.Dataset) []Chart {
	cols := ds.NumericColumns()
	if len(cols) < 2 {
		return nil
	}
	names := make([]string, len(cols))
	floats := make([][]float64, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		floats[i] = c.Floats()
	}
	matrix := make([][]float64, len(cols))
	for i := range matrix {
		matrix[i] = make([]float64, len(cols))
		matrix[i][i] = 1
	}
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			if r, _, ok := stats.Pearson(floats[i], floats[j]); ok {
				matrix[i][j], matrix[j][i] = r, r
			}
		}
	}
	return []Chart{{
		ID:          s.newID(),
		Type:        ChartHeatmap,
		Title:       "Correlation Heatmap",
		Columns:     names,
		Description: "Shows correlations between all numeric variables",
		Config:      heatmapFigure(names, matrix),
	}}
}

func recommendations(ds *dataset.Dataset, prof *profiler.Result, charts int) []Recommendation {
	out := []Recommendation{}
	if col := temporalColumn(ds, prof); col != "" {
		out = append(out, Recommendation{
			Type:           "time_series",
			Priority:       "high",
			Title:          "Create time series visualization for " + col,
			Description:    fmt.Sprintf("Column '%s' appears to be temporal. Consider line charts to show trends over time.", col),
			SuggestedChart: "line",
		})
	}
	if geo := geoColumns(ds); len(geo) > 0 {
		out = append(out, Recommendation{
			Type:           "geographic",
			Priority:       "medium",
			Title:          "Create geographic visualization",
			Description:    fmt.Sprintf("Geographic columns detected: %s. Consider map visualizations.", strings.Join(geo, ", ")),
			SuggestedChart: "map",
		})
	}
	if charts < explorationCutoff {
		out = append(out, Recommendation{
			Type:           "exploration",
			Priority:       "low",
			Title:          "Explore more visualizations",
			Description:    "Consider creating additional charts to explore different aspects of your data.",
			SuggestedChart: "various",
		})
	}
	return out
}

// temporalColumn prefers a column the profiler typed as datetime and
// otherwise returns the first text column whose values all parse as dates.
func temporalColumn(ds *dataset.Dataset, prof *profiler.Result) string {
	if prof != nil {
		if cols := prof.ColumnsOfType(stats.TypeDatetime); len(cols) > 0 {
			return cols[0]
		}
	}
	for _, col := range ds.ObjectColumns() {
		present := col.Present()
		if len(present) == 0 {
			continue
		}
		all := true
		for _, v := range present {
			if _, ok := stats.ParseDate(v); !ok {
				all = false
				break
			}
		}
		if all {
			return col.Name
		}
	}
	return ""
}

func geoColumns(ds *dataset.Dataset) []string {
	var out []string
	for _, name := range ds.ColumnNames() {
		lower := strings.ToLower(name)
		for _, kw := range geoKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

func chartTypes(charts []Chart) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, c := range charts {
		if _, ok := seen[c.Type]; ok {
			continue
		}
		seen[c.Type] = struct{}{}
		out = append(out, c.Type)
	}
	sort.Strings(out)
	return out
}

func formatR(r float64) string { return fmt.Sprintf("%.2f", r) }
