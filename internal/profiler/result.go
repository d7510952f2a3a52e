package profiler

import (
	"github.com/KaramelBytes/datalens/internal/stats"
)

// Result is the profiling block of an analysis.
type Result struct {
	Overview         Overview             `json:"overview"`
	DataTypes        DataTypes            `json:"data_types"`
	MissingValues    stats.Missing        `json:"missing_values"`
	Statistics       []ColumnStats        `json:"statistics"`
	Outliers         Outliers             `json:"outliers"`
	Distributions    []ColumnDistribution `json:"distributions"`
	QualityScore     float64              `json:"quality_score"`
	QualityBreakdown stats.Quality        `json:"quality_breakdown"`
	LegacyScore      float64              `json:"legacy_score"`
	QualityIssues    []Issue              `json:"quality_issues"`
	Recommendations  []Recommendation     `json:"recommendations"`
}

// Overview is the dataset shape summary.
type Overview struct {
	Rows             int            `json:"rows"`
	Columns          int            `json:"columns"`
	MemoryUsageMB    float64        `json:"memory_usage_mb"`
	ColumnNames      []string       `json:"column_names"`
	TypeDistribution map[string]int `json:"type_distribution"`
}

// DataTypes lists the inferred type of every column.
type DataTypes struct {
	Columns      []ColumnType   `json:"columns"`
	Distribution map[string]int `json:"type_distribution"`
}

// ColumnType is one column's inferred type.
type ColumnType struct {
	Column      string `json:"column"`
	StorageType string `json:"storage_type"`
	stats.TypeInfo
	UniqueCount int     `json:"unique_values"`
	UniqueRatio float64 `json:"unique_ratio"`
}

// ColumnStats holds the summary of a numeric column; Summary is nil when the
// column has no values.
type ColumnStats struct {
	Column  string         `json:"column"`
	Summary *stats.Summary `json:"summary"`
}

// Outliers lists the numeric columns with at least one outlier.
type Outliers struct {
	Columns             []ColumnOutliers `json:"columns_with_outliers"`
	TotalOutlierColumns int              `json:"total_outlier_columns"`
}

type ColumnOutliers struct {
	Column string `json:"column"`
	stats.Outliers
}

type ColumnDistribution struct {
	Column string `json:"column"`
	stats.Distribution
}

// Issue kinds.
const (
	IssueMissingValues  = "missing_values"
	IssueOutliers       = "outliers"
	IssueOverallQuality = "overall_quality"
)

// Issue is a flagged data quality problem.
type Issue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Column      string `json:"column,omitempty"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// Recommendation is a remediation hint derived from the profile.
type Recommendation struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// HasHighMissing reports whether any column is more than 30% missing.
func (r *Result) HasHighMissing() bool {
	for _, m := range r.MissingValues.Columns {
		if m.Severity == stats.SeverityHigh {
			return true
		}
	}
	return false
}

// ColumnsOfType returns the names of columns inferred as typ.
func (r *Result) ColumnsOfType(typ string) []string {
	var out []string
	for _, c := range r.DataTypes.Columns {
		if c.Type == typ {
			out = append(out, c.Column)
		}
	}
	return out
}

// Stats returns the summary for a column, or nil.
func (r *Result) Stats(column string) *stats.Summary {
	for _, s := range r.Statistics {
		if s.Column == column {
			return s.Summary
		}
	}
	return nil
}

// TotalOutliers sums outlier counts across columns.
func (r *Result) TotalOutliers() int {
	n := 0
	for _, c := range r.Outliers.Columns {
		n += c.Count
	}
	return n
}
