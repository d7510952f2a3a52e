// Package report renders an analysis result as a standalone Markdown document.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/datalens/internal/orchestrator"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/recommend"
)

// Options trims the longer sections.
type Options struct {
	MaxCorrelations    int
	MaxInsights        int
	MaxRecommendations int
	// IncludeActivities appends the run log.
	IncludeActivities bool
}

func DefaultOptions() Options {
	return Options{MaxCorrelations: 10, MaxInsights: 10, MaxRecommendations: 20}
}

// Write renders res to w.
func Write(w io.Writer, res *orchestrator.Result, opt Options) error {
	_, err := io.WriteString(w, Markdown(res, opt))
	return err
}

// Markdown renders res. Sections for stages that did not succeed are left out
// and listed under notes instead.
func Markdown(res *orchestrator.Result, opt Options) string {
	var b strings.Builder
	name := res.Dataset
	if name == "" {
		name = "dataset"
	}
	fmt.Fprintf(&b, "# Analysis of %s\n\n", safeVal(name))
	fmt.Fprintf(&b, "- Run: `%s`\n", res.RunID)
	fmt.Fprintf(&b, "- Status: %s\n", res.Status)
	if !res.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", res.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "- Duration: %.2fs\n", res.DurationSeconds)
	if len(res.AgentsRun) > 0 {
		fmt.Fprintf(&b, "- Stages: %s\n", strings.Join(res.AgentsRun, ", "))
	}

	if p := res.Profile(); p != nil {
		writeProfile(&b, p)
	}
	if ins := res.Insights(); ins != nil {
		if len(ins.Insights) > 0 {
			b.WriteString("\n## Insights\n\n")
			for i, in := range head(ins.Insights, opt.MaxInsights) {
				fmt.Fprintf(&b, "%d. **%s** (%s, confidence %.0f%%): %s\n", i+1, in.Title, in.Type, in.Confidence*100, in.Description)
			}
		}
		if len(ins.Correlations) > 0 {
			b.WriteString("\n## Correlations\n\n| Column A | Column B | r | Strength |\n| --- | --- | --- | --- |\n")
			for _, c := range head(ins.Correlations, opt.MaxCorrelations) {
				fmt.Fprintf(&b, "| %s | %s | %.3f | %s |\n", safeVal(c.Column1), safeVal(c.Column2), c.Coefficient, c.Strength)
			}
		}
	}
	if vis := res.Visualization(); vis != nil && len(vis.Charts) > 0 {
		b.WriteString("\n## Charts\n\n")
		for _, c := range vis.Charts {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.Title, c.Type, c.Description)
		}
	}
	if rec := res.Recommendations(); rec != nil && len(rec.Recommendations) > 0 {
		writeRecommendations(&b, rec, opt.MaxRecommendations)
	}

	var notes []string
	for _, name := range res.Failed() {
		notes = append(notes, fmt.Sprintf("Stage %s failed: %s", name, res.Results[name].Error))
	}
	if res.Error != "" {
		notes = append(notes, "Run error: "+res.Error)
	}
	if len(notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	if opt.IncludeActivities && len(res.Activities) > 0 {
		b.WriteString("\n## Activity Log\n\n")
		for _, a := range res.Activities {
			fmt.Fprintf(&b, "- `%s` %s: %s\n", a.Timestamp.UTC().Format("15:04:05.000"), a.Agent, a.Action)
		}
	}
	return b.String()
}

func writeProfile(b *strings.Builder, p *profiler.Result) {
	fmt.Fprintf(b, "\n## Overview\n\n- Rows: %d\n- Columns: %d\n- Memory: %.2f MB\n", p.Overview.Rows, p.Overview.Columns, p.Overview.MemoryUsageMB)

	q := p.QualityBreakdown
	fmt.Fprintf(b, "\n## Data Quality\n\n**Score: %.1f%%**\n\n", p.QualityScore*100)
	fmt.Fprintf(b, "| Completeness | Consistency | Accuracy | Uniqueness |\n| --- | --- | --- | --- |\n| %.1f%% | %.1f%% | %.1f%% | %.1f%% |\n",
		q.Completeness*100, q.Consistency*100, q.Accuracy*100, q.Uniqueness*100)
	if len(p.QualityIssues) > 0 {
		b.WriteString("\n")
		for _, is := range p.QualityIssues {
			fmt.Fprintf(b, "- [%s] %s\n", strings.ToUpper(is.Severity), is.Description)
		}
	}

	b.WriteString("\n## Schema\n\n| Column | Type | Confidence | Missing | Unique |\n| --- | --- | --- | --- | --- |\n")
	for _, ct := range p.DataTypes.Columns {
		miss := "0.0%"
		if m, ok := p.MissingValues.Column(ct.Column); ok {
			miss = fmt.Sprintf("%.1f%%", m.Percentage*100)
		}
		typ := ct.Type
		if ct.Subtype != "" {
			typ += "/" + ct.Subtype
		}
		fmt.Fprintf(b, "| %s | %s | %.2f | %s | %d |\n", safeName(ct.Column), typ, ct.Confidence, miss, ct.UniqueCount)
	}

	var numeric []profiler.ColumnStats
	for _, cs := range p.Statistics {
		if cs.Summary != nil {
			numeric = append(numeric, cs)
		}
	}
	if len(numeric) > 0 {
		b.WriteString("\n## Numeric Summary\n\n| Column | Mean | Median | Std | Min | Max |\n| --- | --- | --- | --- | --- | --- |\n")
		for _, cs := range numeric {
			s := cs.Summary
			fmt.Fprintf(b, "| %s | %.4g | %.4g | %.4g | %.4g | %.4g |\n", safeName(cs.Column), s.Mean, s.Median, s.Std, s.Min, s.Max)
		}
	}
	if len(p.Outliers.Columns) > 0 {
		b.WriteString("\n## Outliers\n\n")
		cols := append([]profiler.ColumnOutliers(nil), p.Outliers.Columns...)
		sort.SliceStable(cols, func(i, j int) bool { return cols[i].Count > cols[j].Count })
		for _, c := range cols {
			fmt.Fprintf(b, "- %s: %d values (%.1f%%, %s)\n", safeName(c.Column), c.Count, c.Percentage, c.Severity)
		}
	}
}

func writeRecommendations(b *strings.Builder, rec *recommend.Result, limit int) {
	b.WriteString("\n## Recommendations\n")
	for i, r := range head(rec.Recommendations, limit) {
		fmt.Fprintf(b, "\n### %d. %s\n\n*%s priority, %s. Impact %s, effort %s.*\n\n%s\n", i+1, r.Title, r.Priority, strings.ReplaceAll(r.Category, "_", " "), r.Impact, r.Effort, r.Description)
		if r.Action != "" {
			fmt.Fprintf(b, "\n**Action:** %s\n", r.Action)
		}
		for j, s := range r.Steps {
			fmt.Fprintf(b, "%d. %s\n", j+1, s)
		}
	}
	parts := make([]string, 0, len(recommend.Priorities))
	for _, p := range recommend.Priorities {
		parts = append(parts, fmt.Sprintf("%s %d", p, rec.Summary.ByPriority[p]))
	}
	fmt.Fprintf(b, "\nTotal: %d (%s)\n", rec.Summary.Total, strings.Join(parts, ", "))
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return safeVal(s)
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

func head[T any](s []T, n int) []T {
	if n <= 0 {
		n = math.MaxInt
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
