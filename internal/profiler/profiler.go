// Package profiler computes structural and quality metadata for a dataset:
// column types, missing values, descriptive statistics, outliers,
// distribution shape and an overall quality score.
package profiler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/stats"
)

const (
	// Name is the stage name and its context key.
	Name        = "data_profiler"
	Description = "Data quality and profiling analysis"
	// ContextKey holds the *Result for downstream stages.
	ContextKey = "profiler_results"
)

// ErrUnsupportedInput is returned when the profiler receives no table.
var ErrUnsupportedInput = errors.New("unsupported input: expected a dataset")

// Thresholds drive issue and recommendation rules.
type Thresholds struct {
	MissingRatio    float64
	MinQualityScore float64
}

// DefaultThresholds match the documented rules.
func DefaultThresholds() Thresholds {
	return Thresholds{MissingRatio: 0.3, MinQualityScore: 0.7}
}

// Profiler is the profiling stage.
type Profiler struct {
	*agent.Agent
	thresholds Thresholds
}

// New creates a profiler stage.
func New(log *zap.Logger) *Profiler {
	p := &Profiler{thresholds: DefaultThresholds()}
	p.Agent = agent.New(Name, Description, p, log)
	return p
}

// FromContext returns the profile written by an earlier run of this stage,
// or nil.
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
func (p *Profiler) Analyze(ctx context.Context, ds *dataset.Dataset, _ *agent.Context) (any, error) {
	if ds == nil {
		return nil, ErrUnsupportedInput
	}
	p.Emit("Analyzing data structure", agent.StatusRunning, map[string]any{
		"rows": ds.Rows(), "columns": ds.Width(),
	})

	res := &Result{Overview: overview(ds)}

	p.Emit("Analyzing data types", agent.StatusRunning, nil)
	res.DataTypes = analyzeTypes(ds)
	res.Overview.TypeDistribution = res.DataTypes.Distribution

	p.Emit("Analyzing missing values", agent.StatusRunning, nil)
	res.MissingValues = stats.AnalyzeMissing(ds)

	p.Emit("Calculating statistics", agent.StatusRunning, nil)
	res.Statistics = describe(ds)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.Emit("Detecting outliers", agent.StatusRunning, nil)
	res.Outliers = detectOutliers(ds)

	p.Emit("Analyzing distributions", agent.StatusRunning, nil)
	res.Distributions = distributions(ds)

	q := stats.ScoreQuality(ds)
	res.QualityScore = q.Overall
	res.QualityBreakdown = q
	res.LegacyScore = stats.LegacyQuality(
		res.MissingValues.OverallPercentage,
		res.Outliers.TotalOutlierColumns,
		res.DataTypes.Distribution[stats.TypeText],
		ds.Width(),
	)

	res.QualityIssues = p.issues(res)
	res.Recommendations = p.recommendations(res)

	p.Emit("Data profiling completed", agent.StatusCompleted, map[string]any{
		"quality_score": res.QualityScore,
		"issues_found":  len(res.QualityIssues),
	})
	p.Logger().Debug("profile computed",
		zap.Int("rows", ds.Rows()),
		zap.Int("columns", ds.Width()),
		zap.Float64("quality", res.QualityScore))
	return res, nil
}

func overview(ds *dataset.Dataset) Overview {
	return Overview{
		Rows:          ds.Rows(),
		Columns:       ds.Width(),
		MemoryUsageMB: float64(ds.MemoryBytes()) / 1024 / 1024,
		ColumnNames:   ds.ColumnNames(),
	}
}

func analyzeTypes(ds *dataset.Dataset) DataTypes {
	dt := DataTypes{Distribution: map[string]int{
		stats.TypeNumeric: 0, stats.TypeCategorical: 0, stats.TypeDatetime: 0,
		stats.TypeText: 0, stats.TypeBoolean: 0, "other": 0,
	}}
	for _, col := range ds.Columns() {
		info := stats.InferType(col)
		ct := ColumnType{
			Column:      col.Name,
			StorageType: storageType(col),
			TypeInfo:    info,
			UniqueCount: col.Unique(),
		}
		if ds.Rows() > 0 {
			ct.UniqueRatio = float64(ct.UniqueCount) / float64(ds.Rows())
		}
		dt.Columns = append(dt.Columns, ct)
		if _, known := dt.Distribution[info.Type]; known {
			dt.Distribution[info.Type]++
		} else {
			dt.Distribution["other"]++
		}
	}
	return dt
}

func storageType(col *dataset.Column) string {
	switch {
	case !col.IsNumeric():
		return "object"
	case col.IsInteger() && col.MissingCount() == 0:
		return "int64"
	}
	return "float64"
}

func describe(ds *dataset.Dataset) []ColumnStats {
	var out []ColumnStats
	for _, col := range ds.NumericColumns() {
		out = append(out, ColumnStats{Column: col.Name, Summary: stats.Describe(col.Values())})
	}
	return out
}

func detectOutliers(ds *dataset.Dataset) Outliers {
	var o Outliers
	for _, col := range ds.NumericColumns() {
		vals := col.Values()
		if len(vals) == 0 {
			continue
		}
		r := stats.DetectOutliers(vals)
		if r.Count == 0 {
			continue
		}
		o.Columns = append(o.Columns, ColumnOutliers{Column: col.Name, Outliers: r})
	}
	o.TotalOutlierColumns = len(o.Columns)
	return o
}

func distributions(ds *dataset.Dataset) []ColumnDistribution {
	var out []ColumnDistribution
	for _, col := range ds.NumericColumns() {
		vals := col.Values()
		if len(vals) == 0 {
			continue
		}
		out = append(out, ColumnDistribution{Column: col.Name, Distribution: stats.Shape(vals)})
	}
	return out
}

func (p *Profiler) issues(res *Result) []Issue {
	var out []Issue
	for _, m := range res.MissingValues.Columns {
		if m.Severity != stats.SeverityHigh && m.Severity != stats.SeverityMedium {
			continue
		}
		out = append(out, Issue{
			Type:        IssueMissingValues,
			Severity:    m.Severity,
			Column:      m.Column,
			Description: fmt.Sprintf("Column '%s' has %.1f%% missing values", m.Column, m.Percentage*100),
			Impact:      "May affect analysis accuracy",
		})
	}
	for _, c := range res.Outliers.Columns {
		if c.Severity != stats.SeverityHigh {
			continue
		}
		out = append(out, Issue{
			Type:        IssueOutliers,
			Severity:    c.Severity,
			Column:      c.Column,
			Description: fmt.Sprintf("Column '%s' has %d outliers (%.1f%%)", c.Column, c.Count, c.Percentage),
			Impact:      "May skew statistical analysis",
		})
	}
	if res.QualityScore < p.thresholds.MinQualityScore {
		out = append(out, Issue{
			Type:        IssueOverallQuality,
			Severity:    stats.SeverityHigh,
			Description: fmt.Sprintf("Overall data quality score is %.1f%%", res.QualityScore*100),
			Impact:      "Dataset may require cleaning before analysis",
		})
	}
	return out
}

func (p *Profiler) recommendations(res *Result) []Recommendation {
	var out []Recommendation
	if res.MissingValues.OverallPercentage > 0.1 || res.HasHighMissing() {
		out = append(out, Recommendation{
			Type:        "data_cleaning",
			Priority:    "high",
			Title:       "Handle missing values",
			Description: "Consider imputation or removal of rows/columns with missing data",
			Action:      "Review columns with high missing percentages",
		})
	}
	if res.Outliers.TotalOutlierColumns > 0 {
		out = append(out, Recommendation{
			Type:        "data_cleaning",
			Priority:    "medium",
			Title:       "Investigate outliers",
			Description: "Outliers detected in numeric columns. Verify if they are errors or valid extreme values",
			Action:      "Review outlier detection results",
		})
	}
	dist := res.DataTypes.Distribution
	if dist[stats.TypeText] > dist[stats.TypeNumeric] {
		out = append(out, Recommendation{
			Type:        "data_transformation",
			Priority:    "medium",
			Title:       "Convert text to numeric",
			Description: "Many text columns detected. Consider encoding categorical variables",
			Action:      "Apply one-hot encoding or label encoding",
		})
	}
	return out
}
