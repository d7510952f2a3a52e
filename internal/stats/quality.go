package stats

import (
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// ColumnMissing is the missing-value summary of one column.
type ColumnMissing struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
	// Percentage is a 0-1 fraction of rows.
	Percentage float64 `json:"percentage"`
	Severity   string  `json:"severity"`
}

// Missing summarizes missing cells across a dataset.
type Missing struct {
	TotalMissingCells int             `json:"total_missing_cells"`
	TotalCells        int             `json:"total_cells"`
	OverallPercentage float64         `json:"overall_missing_percentage"`
	Columns           []ColumnMissing `json:"columns_with_missing"`
	ColumnsAffected   int             `json:"columns_affected"`
}

// Column looks up a column's entry.
func (m Missing) Column(name string) (ColumnMissing, bool) {
	for _, c := range m.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnMissing{}, false
}

// MissingSeverity buckets a 0-1 missing fraction.
func MissingSeverity(frac float64) string {
	switch {
	case frac > 0.3:
		return SeverityHigh
	case frac > 0.1:
		return SeverityMedium
	case frac > 0:
		return SeverityLow
	}
	return SeverityNone
}

// AnalyzeMissing reports every column with at least one missing cell.
func AnalyzeMissing(ds *dataset.Dataset) Missing {
	m := Missing{TotalCells: ds.Rows() * ds.Width()}
	for _, col := range ds.Columns() {
		n := col.MissingCount()
		if n == 0 {
			continue
		}
		frac := float64(n) / float64(ds.Rows())
		m.TotalMissingCells += n
		m.Columns = append(m.Columns, ColumnMissing{
			Column:     col.Name,
			Count:      n,
			Percentage: frac,
			Severity:   MissingSeverity(frac),
		})
	}
	if m.TotalCells > 0 {
		m.OverallPercentage = float64(m.TotalMissingCells) / float64(m.TotalCells)
	}
	m.ColumnsAffected = len(m.Columns)
	return m
}

// Quality is the weighted data quality score with its components, all in
// [0, 1].
type Quality struct {
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Accuracy     float64 `json:"accuracy"`
	Uniqueness   float64 `json:"uniqueness"`
	Overall      float64 `json:"overall"`
}

// Quality weights.
const (
	weightCompleteness = 0.4
	weightConsistency  = 0.2
	weightAccuracy     = 0.2
	weightUniqueness   = 0.2
)

// ScoreQuality combines completeness, consistency, accuracy and uniqueness.
// Accuracy is derived from the outlier share of each numeric column.
func ScoreQuality(ds *dataset.Dataset) Quality {
	q := Quality{Completeness: 1, Consistency: 1, Accuracy: 1, Uniqueness: 1}
	cells := ds.Rows() * ds.Width()
	if cells > 0 {
		missing := 0
		for _, col := range ds.Columns() {
			missing += col.MissingCount()
		}
		q.Completeness = float64(cells-missing) / float64(cells)
	}

	var consistency []float64
	for _, col := range ds.Columns() {
		present := col.Present()
		if len(present) == 0 {
			continue
		}
		if col.IsNumeric() {
			consistency = append(consistency, 1)
			continue
		}
		consistency = append(consistency, lengthConsistency(present))
	}
	if len(consistency) > 0 {
		q.Consistency = stat.Mean(consistency, nil)
	}

	var accuracy []float64
	for _, col := range ds.NumericColumns() {
		o := DetectOutliers(col.Values())
		accuracy = append(accuracy, max(0, 1-2*o.Percentage/100))
	}
	if len(accuracy) > 0 {
		q.Accuracy = stat.Mean(accuracy, nil)
	}

	if ds.Rows() > 0 {
		q.Uniqueness = float64(ds.UniqueRows()) / float64(ds.Rows())
	}
	q.Overall = clamp(weightCompleteness*q.Completeness+
		weightConsistency*q.Consistency+
		weightAccuracy*q.Accuracy+
		weightUniqueness*q.Uniqueness, 0, 1)
	return q
}

// lengthConsistency scores how uniform string lengths are: one minus half the
// coefficient of variation, floored at zero.
func lengthConsistency(present []string) float64 {
	if len(present) < 2 {
		return 1
	}
	lengths := make([]float64, len(present))
	for i, s := range present {
		lengths[i] = float64(utf8.RuneCountInString(s))
	}
	mean, std := stat.MeanStdDev(lengths, nil)
	if mean == 0 {
		return 1
	}
	return max(0, 1-(std/mean)*0.5)
}

// LegacyQuality is the older three-factor score kept for comparison with
// earlier reports: missing share, outlier columns and text-heavy columns.
func LegacyQuality(missingFrac float64, outlierColumns, textColumns, columns int) float64 {
	if columns == 0 {
		return 1
	}
	missing := max(0, 1-missingFrac/0.3)
	outliers := 1 - float64(outlierColumns)/float64(columns)
	text := 1 - 0.5*float64(textColumns)/float64(columns)
	return Round((missing+outliers+text)/3, 3)
}
