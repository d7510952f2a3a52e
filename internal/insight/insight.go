// Package insight finds correlations, trends, anomalies and patterns in a
// dataset and turns the strongest of them into ranked insights.
package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/stats"
)

const (
	Name        = "insight_discovery"
	Description = "Pattern and trend discovery"
	// ContextKey holds the *Result for downstream stages.
	ContextKey = "insights"
)

const (
	correlationThreshold = 0.5
	maxCorrelations      = 10
	trendPValue          = 0.05
	trendMinR            = 0.3
	anomalyZ             = 3.0
	anomalySamples       = 5
	dominantMaxUnique    = 20
	dominantShare        = 0.5
	concentratedIQRShare = 0.3
)

// Discoverer is the insight discovery stage.
type Discoverer struct {
	*agent.Agent
}

// New creates an insight discovery stage.
func New(log *zap.Logger) *Discoverer {
	d := &Discoverer{}
	d.Agent = agent.New(Name, Description, d, log)
	return d
}

// FromContext returns insights written earlier in the run, or nil.
func FromContext(actx *agent.Context) *Result {
	if r, ok := agent.Lookup[*Result](actx, ContextKey); ok {
		return r
	}
	if o, ok := agent.Lookup[*agent.Outcome](actx, Name); ok && o.OK() {
		if r, ok := o.Results.(*Result); ok {
			return r
		}
	}
	return nil
}

// Analyze implements agent.Analyzer.
func (d *Discoverer) Analyze(ctx context.Context, ds *dataset.Dataset, _ *agent.Context) (any, error) {
	if ds == nil {
		return nil, fmt.Errorf("%s: no dataset", Name)
	}
	d.Emit("Starting insight discovery", agent.StatusRunning, map[string]any{
		"rows": ds.Rows(), "columns": ds.Width(),
	})
	res := &Result{}

	d.Emit("Analyzing correlations", agent.StatusRunning, nil)
	res.Correlations = FindCorrelations(ds)

	d.Emit("Detecting trends", agent.StatusRunning, nil)
	res.Trends = DetectTrends(ds)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.Emit("Detecting anomalies", agent.StatusRunning, nil)
	res.Anomalies = DetectAnomalies(ds)

	d.Emit("Finding patterns", agent.StatusRunning, nil)
	res.Patterns = FindPatterns(ds)

	d.Emit("Generating insights", agent.StatusRunning, nil)
	res.Insights = synthesize(res)

	res.Summary = Summary{
		TotalInsights:          len(res.Insights),
		HighConfidenceInsights: countHighConfidence(res.Insights),
		CorrelationsFound:      len(res.Correlations),
		TrendsFound:            len(res.Trends),
		AnomaliesFound:         len(res.Anomalies),
	}
	d.Emit("Insight discovery completed", agent.StatusCompleted, map[string]any{
		"total_insights":           res.Summary.TotalInsights,
		"high_confidence_insights": res.Summary.HighConfidenceInsights,
		"correlations_found":       res.Summary.CorrelationsFound,
		"trends_found":             res.Summary.TrendsFound,
		"anomalies_found":          res.Summary.AnomaliesFound,
	})
	return res, nil
}

// FindCorrelations tests every unordered pair of numeric columns and keeps
// those with |r| >= 0.5, strongest first.
func FindCorrelations(ds *dataset.Dataset) []Correlation {
	cols := ds.NumericColumns()
	if len(cols) < 2 {
		return []Correlation{}
	}
	floats := make([][]float64, len(cols))
	for i, c := range cols {
		floats[i] = c.Floats()
	}
	out := []Correlation{}
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			r, _, ok := stats.Pearson(floats[i], floats[j])
			if !ok || math.Abs(r) < correlationThreshold {
				continue
			}
			out = append(out, Correlation{
				Column1:     cols[i].Name,
				Column2:     cols[j].Name,
				Coefficient: r,
				Strength:    strength(r),
				Direction:   direction(r),
				Confidence:  math.Min(math.Abs(r), 0.95),
			})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Coefficient) > math.Abs(out[b].Coefficient)
	})
	if len(out) > maxCorrelations {
		out = out[:maxCorrelations]
	}
	return out
}

func strength(r float64) string {
	switch a := math.Abs(r); {
	case a > 0.8:
		return "strong"
	case a > 0.6:
		return "moderate"
	}
	return "weak"
}

func direction(r float64) string {
	if r > 0 {
		return "positive"
	}
	return "negative"
}

// DetectTrends regresses each numeric column on its row index and keeps
// significant fits (p < 0.05 and |r| > 0.3).
func DetectTrends(ds *dataset.Dataset) []Trend {
	out := []Trend{}
	for _, col := range ds.NumericColumns() {
		var xs, ys []float64
		for i, v := range col.Floats() {
			if math.IsNaN(v) {
				continue
			}
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
		if len(ys) < 3 {
			continue
		}
		fit, ok := stats.LinearTrend(xs, ys)
		if !ok || fit.PValue >= trendPValue || math.Abs(fit.R) <= trendMinR {
			continue
		}
		first, last := ys[0], ys[len(ys)-1]
		var change float64
		if first != 0 {
			change = (last - first) / first * 100
		}
		kind := "increasing"
		if fit.Slope < 0 {
			kind = "decreasing"
		}
		sig := "medium"
		if fit.PValue < 0.01 {
			sig = "high"
		}
		out = append(out, Trend{
			Column:           col.Name,
			Type:             kind,
			Slope:            fit.Slope,
			RSquared:         fit.RSquared,
			PValue:           fit.PValue,
			PercentageChange: change,
			Confidence:       math.Abs(fit.R),
			Significance:     sig,
		})
	}
	return out
}

// DetectAnomalies flags values whose population z-score exceeds 3.
func DetectAnomalies(ds *dataset.Dataset) []Anomaly {
	out := []Anomaly{}
	for _, col := range ds.NumericColumns() {
		vals := col.Values()
		if len(vals) == 0 {
			continue
		}
		var flagged []float64
		for i, z := range stats.PopulationZScores(vals) {
			if math.Abs(z) > anomalyZ {
				flagged = append(flagged, vals[i])
			}
		}
		if len(flagged) == 0 {
			continue
		}
		share := float64(len(flagged)) / float64(ds.Rows())
		sev := "medium"
		if share > 0.05 {
			sev = "high"
		}
		samples := flagged
		if len(samples) > anomalySamples {
			samples = samples[:anomalySamples]
		}
		out = append(out, Anomaly{
			Column:       col.Name,
			Count:        len(flagged),
			Percentage:   share,
			SampleValues: append([]float64(nil), samples...),
			Method:       "z_score",
			Threshold:    anomalyZ,
			Severity:     sev,
		})
	}
	return out
}

// FindPatterns reports dominant categories and numeric columns whose middle
// half is narrow relative to the full range.
func FindPatterns(ds *dataset.Dataset) []Pattern {
	out := []Pattern{}
	for _, col := range ds.ObjectColumns() {
		counts := col.Counts()
		if len(counts) == 0 || len(counts) > dominantMaxUnique {
			continue
		}
		share := float64(counts[0].Count) / float64(ds.Rows())
		if share <= dominantShare {
			continue
		}
		out = append(out, Pattern{
			Type:        PatternDominantCategory,
			Column:      col.Name,
			Value:       counts[0].Value,
			Percentage:  share,
			Description: fmt.Sprintf("'%s' appears in %.1f%% of records", counts[0].Value, share*100),
			Confidence:  0.9,
		})
	}
	for _, col := range ds.NumericColumns() {
		vals := col.Values()
		if len(vals) == 0 {
			continue
		}
		sorted := stats.Sorted(vals)
		span := sorted[len(sorted)-1] - sorted[0]
		if span == 0 {
			continue
		}
		q1 := stats.Quantile(sorted, 0.25)
		q3 := stats.Quantile(sorted, 0.75)
		if (q3-q1)/span >= concentratedIQRShare {
			continue
		}
		out = append(out, Pattern{
			Type:        PatternConcentratedValues,
			Column:      col.Name,
			Range:       []float64{q1, q3},
			Description: fmt.Sprintf("50%% of values fall in narrow range [%.2f, %.2f]", q1, q3),
			Confidence:  0.8,
		})
	}
	return out
}

func synthesize(res *Result) []Insight {
	out := []Insight{}
	for _, c := range head(res.Correlations, 5) {
		out = append(out, Insight{
			Type:  TypeCorrelation,
			Title: fmt.Sprintf("%s %s correlation detected", titleCase(c.Strength), c.Direction),
			Description: fmt.Sprintf("'%s' and '%s' show a %s %s correlation (r=%.2f)",
				c.Column1, c.Column2, c.Strength, c.Direction, c.Coefficient),
			Confidence: c.Confidence,
			Evidence: map[string]any{
				"correlation_value": c.Coefficient,
				"columns":           []string{c.Column1, c.Column2},
			},
			Actionable: true,
			Action:     fmt.Sprintf("Investigate relationship between %s and %s", c.Column1, c.Column2),
		})
	}
	for _, t := range head(res.Trends, 3) {
		out = append(out, Insight{
			Type:  TypeTrend,
			Title: fmt.Sprintf("%s trend in %s", titleCase(t.Type), t.Column),
			Description: fmt.Sprintf("'%s' shows a %s trend with %.1f%% change (R²=%.2f)",
				t.Column, t.Type, math.Abs(t.PercentageChange), t.RSquared),
			Confidence: t.Confidence,
			Evidence: map[string]any{
				"percentage_change": t.PercentageChange,
				"r_squared":         t.RSquared,
				"p_value":           t.PValue,
			},
			Actionable: true,
			Action:     fmt.Sprintf("Monitor %s for continued %s pattern", t.Column, t.Type),
		})
	}
	for _, a := range head(res.Anomalies, 3) {
		if a.Severity != "high" {
			continue
		}
		out = append(out, Insight{
			Type:  TypeAnomaly,
			Title: "Unusual values detected in " + a.Column,
			Description: fmt.Sprintf("Found %d anomalous values in '%s' (%.1f%% of data)",
				a.Count, a.Column, a.Percentage*100),
			Confidence: 0.85,
			Evidence: map[string]any{
				"count":         a.Count,
				"sample_values": a.SampleValues,
			},
			Actionable: true,
			Action:     fmt.Sprintf("Review anomalous values in %s for data quality issues", a.Column),
		})
	}
	for _, p := range head(res.Patterns, 3) {
		if p.Type != PatternDominantCategory {
			continue
		}
		out = append(out, Insight{
			Type:        TypePattern,
			Title:       "Dominant category in " + p.Column,
			Description: p.Description,
			Confidence:  p.Confidence,
			Evidence: map[string]any{
				"value":      p.Value,
				"percentage": p.Percentage,
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func countHighConfidence(in []Insight) int {
	n := 0
	for _, i := range in {
		if i.Confidence > 0.8 {
			n++
		}
	}
	return n
}
