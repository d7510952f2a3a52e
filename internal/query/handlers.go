package query

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/KaramelBytes/datalens/internal/insight"
	"github.com/KaramelBytes/datalens/internal/orchestrator"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/recommend"
	"github.com/KaramelBytes/datalens/internal/stats"
	"github.com/KaramelBytes/datalens/internal/visualization"
)

// view is the slice of a stored run the formatters read.
type view struct {
	res     *orchestrator.Result
	prof    *profiler.Result
	ins     *insight.Result
	vis     *visualization.Result
	rec     *recommend.Result
	rows    int
	columns []string
	types   map[string]string
}

func newView(res *orchestrator.Result) view {
	v := view{
		res:   res,
		prof:  res.Profile(),
		ins:   res.Insights(),
		vis:   res.Visualization(),
		rec:   res.Recommendations(),
		types: map[string]string{},
	}
	if v.prof != nil {
		v.rows = v.prof.Overview.Rows
		v.columns = v.prof.Overview.ColumnNames
		for _, ct := range v.prof.DataTypes.Columns {
			v.types[ct.Column] = ct.Type
		}
	}
	return v
}

type handler func(v view, e Entities) string

var handlers = map[string]handler{
	IntentDatasetSize:     answerDatasetSize,
	IntentColumns:         answerColumns,
	IntentMissingValues:   answerMissing,
	IntentQuality:         answerQuality,
	IntentOutliers:        answerOutliers,
	IntentInsights:        answerInsights,
	IntentCorrelations:    answerCorrelations,
	IntentRecommendations: answerRecommendations,
	IntentCharts:          answerCharts,
	IntentSummary:         answerSummary,
	IntentStatistics:      answerStatistics,
	IntentComparison:      answerComparison,
}

func comma(n int) string { return humanize.Comma(int64(n)) }

func pct(frac float64) string { return fmt.Sprintf("%.1f%%", frac*100) }

func noProfile() string {
	return "Profiling results are not available for this run. Re-run the analysis with the data_profiler stage enabled."
}

func answerDatasetSize(v view, _ Entities) string {
	if v.prof == nil {
		return noProfile()
	}
	return fmt.Sprintf("Your dataset contains **%s rows** and **%d columns** (about %.2f MB in memory).",
		comma(v.rows), len(v.columns), v.prof.Overview.MemoryUsageMB)
}

func answerColumns(v view, _ Entities) string {
	if v.prof == nil {
		return noProfile()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Dataset Columns (%d total):**\n\n", len(v.columns))
	for i, col := range head(v.columns, 15) {
		fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, col, typeOf(v, col))
	}
	if len(v.columns) > 15 {
		fmt.Fprintf(&b, "\n*...and %d more columns*\n", len(v.columns)-15)
	}
	b.WriteString("\n**Data Type Distribution:**\n")
	dist := v.prof.DataTypes.Distribution
	for _, t := range sortedKeys(dist) {
		fmt.Fprintf(&b, "• %s: %d columns\n", t, dist[t])
	}
	return strings.TrimRight(b.String(), "\n")
}

func answerMissing(v view, e Entities) string {
	if v.prof == nil {
		return noProfile()
	}
	m := v.prof.MissingValues
	if m.TotalMissingCells == 0 {
		return "Your dataset has **no missing values**. No imputation is needed before analysis."
	}
	if cols := e.ColumnNames(); len(cols) > 0 {
		if cm, ok := m.Column(cols[0]); ok {
			return fmt.Sprintf("**%s** has %s missing values (%s of rows, %s severity).",
				cm.Column, comma(cm.Count), pct(cm.Percentage), cm.Severity)
		}
		return fmt.Sprintf("**%s** has no missing values.", cols[0])
	}
	affected := append([]stats.ColumnMissing(nil), m.Columns...)
	sort.SliceStable(affected, func(i, j int) bool { return affected[i].Count > affected[j].Count })
	var b strings.Builder
	fmt.Fprintf(&b, "**Missing Values Analysis:**\n\n**Total Missing:** %s values (%s of all cells)\n\n**Top Columns with Missing Data:**\n",
		comma(m.TotalMissingCells), pct(m.OverallPercentage))
	for _, c := range head(affected, 5) {
		fmt.Fprintf(&b, "• **%s**: %s missing (%s)\n", c.Column, comma(c.Count), pct(c.Percentage))
	}
	b.WriteString("\nMissing data can affect analysis accuracy. See the recommendations for handling these gaps.")
	return b.String()
}

func qualityLabel(score float64) (string, string) {
	switch {
	case score >= 0.9:
		return "Excellent", "Your data is in excellent condition."
	case score >= 0.7:
		return "Good", "Your data quality is good with minor issues."
	case score >= 0.5:
		return "Fair", "Your data has some quality issues to address."
	default:
		return "Needs Improvement", "Significant data quality improvements are recommended."
	}
}

func answerQuality(v view, _ Entities) string {
	if v.prof == nil {
		return noProfile()
	}
	p := v.prof
	label, msg := qualityLabel(p.QualityScore)
	q := p.QualityBreakdown
	return fmt.Sprintf(`**Data Quality Score: %d%%** (%s)

%s

**Quality Metrics:**
• Completeness: %s
• Consistency: %s
• Accuracy: %s
• Uniqueness: %s
• Missing Values: %s
• Outliers Detected: %d columns affected`,
		int(p.QualityScore*100), label, msg,
		pct(q.Completeness), pct(q.Consistency), pct(q.Accuracy), pct(q.Uniqueness),
		comma(p.MissingValues.TotalMissingCells), p.Outliers.TotalOutlierColumns)
}

func answerOutliers(v view, e Entities) string {
	if v.prof == nil {
		return noProfile()
	}
	cols := v.prof.Outliers.Columns
	if want := e.ColumnNames(); len(want) > 0 {
		cols = filterOutliers(cols, want)
		if len(cols) == 0 {
			return fmt.Sprintf("No outliers were detected in **%s**.", strings.Join(want, ", "))
		}
	}
	if len(cols) == 0 {
		return "**No significant outliers detected.** Your numeric columns look well distributed without extreme values."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Outliers Found in %d Column(s):**\n\n", len(cols))
	total := 0
	for _, c := range cols {
		total += c.Count
	}
	for _, c := range head(cols, 5) {
		fmt.Fprintf(&b, "**%s**\n  • Count: %d outliers (%.1f%%)\n  • Severity: %s\n", c.Column, c.Count, c.Percentage, strings.ToUpper(c.Severity))
	}
	fmt.Fprintf(&b, "\n**Total Outliers:** %s data points\n\nOutliers may be entry errors, measurement errors or genuine extremes worth investigating.", comma(total))
	return b.String()
}

func filterOutliers(cols []profiler.ColumnOutliers, want []string) []profiler.ColumnOutliers {
	var out []profiler.ColumnOutliers
	for _, c := range cols {
		for _, w := range want {
			if c.Column == w {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func answerInsights(v view, _ Entities) string {
	if v.ins == nil || len(v.ins.Insights) == 0 {
		return "No insights were discovered for this dataset. Insight discovery looks for correlations, trends, anomalies and recurring patterns."
	}
	counts := map[string]int{}
	for _, in := range v.ins.Insights {
		counts[in.Type]++
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Key Insights Discovered (%d total):**\n\n**Insight Categories:**\n", len(v.ins.Insights))
	for _, t := range sortedKeys(counts) {
		fmt.Fprintf(&b, "• **%s**: %d insights\n", title(t), counts[t])
	}
	b.WriteString("\n**Top Insights:**\n")
	for i, in := range head(v.ins.Insights, 3) {
		fmt.Fprintf(&b, "\n**%d. %s**\n%s\n*Confidence: %.0f%%*\n", i+1, in.Title, in.Description, in.Confidence*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func strengthLabel(r float64) string {
	switch a := math.Abs(r); {
	case a > 0.7:
		return "Strong"
	case a > 0.4:
		return "Moderate"
	default:
		return "Weak"
	}
}

func answerCorrelations(v view, e Entities) string {
	if v.ins == nil || len(v.ins.Correlations) == 0 {
		return "No notable correlations were found between the numeric columns."
	}
	corr := v.ins.Correlations
	if want := e.ColumnNames(); len(want) > 0 {
		corr = correlationsFor(corr, want)
		if len(corr) == 0 {
			return fmt.Sprintf("No notable correlations involve **%s**.", strings.Join(want, ", "))
		}
	}
	var b strings.Builder
	b.WriteString("**Correlation Analysis:**\n\n**Top Correlations Found:**\n")
	for _, c := range head(corr, 5) {
		fmt.Fprintf(&b, "• **%s** ↔ **%s**: %.3f (%s)\n", c.Column1, c.Column2, c.Coefficient, strengthLabel(c.Coefficient))
	}
	b.WriteString("\nValues above 0.7 in magnitude indicate a strong relationship and 0.4 to 0.7 a moderate one.")
	return b.String()
}

// correlationsFor keeps pairs touching any wanted column; with two or more
// columns named it keeps only pairs between them.
func correlationsFor(corr []insight.Correlation, want []string) []insight.Correlation {
	in := map[string]bool{}
	for _, w := range want {
		in[w] = true
	}
	var out []insight.Correlation
	for _, c := range corr {
		if len(want) >= 2 {
			if in[c.Column1] && in[c.Column2] {
				out = append(out, c)
			}
			continue
		}
		if in[c.Column1] || in[c.Column2] {
			out = append(out, c)
		}
	}
	return out
}

func answerRecommendations(v view, _ Entities) string {
	if v.rec == nil || len(v.rec.Recommendations) == 0 {
		return "No recommendations are available for this run."
	}
	recs := v.rec.Recommendations
	urgent := append(v.rec.ByPriority(recommend.PriorityCritical), v.rec.ByPriority(recommend.PriorityHigh)...)
	var b strings.Builder
	fmt.Fprintf(&b, "**Recommendations (%d total):**\n\n", len(recs))
	list := recs
	if len(urgent) > 0 {
		b.WriteString("**High Priority Actions:**\n")
		list = urgent
	}
	for i, r := range head(list, 3) {
		fmt.Fprintf(&b, "\n**%d. %s** (Priority: %s)\n%s\n", i+1, r.Title, title(r.Priority), r.Description)
	}
	b.WriteString("\n**Priority Breakdown:**\n")
	for _, p := range recommend.Priorities {
		fmt.Fprintf(&b, "• %s: %d\n", title(p), v.rec.Summary.ByPriority[p])
	}
	return strings.TrimRight(b.String(), "\n")
}

func answerCharts(v view, _ Entities) string {
	if v.vis == nil || len(v.vis.Charts) == 0 {
		return "No visualizations were created for this run."
	}
	charts := v.vis.Charts
	var b strings.Builder
	fmt.Fprintf(&b, "**%d visualizations** were created:\n\n", len(charts))
	for _, c := range head(charts, 8) {
		fmt.Fprintf(&b, "• %s (%s)\n", c.Title, c.Type)
	}
	if len(charts) > 8 {
		fmt.Fprintf(&b, "\n*...and %d more visualizations*\n", len(charts)-8)
	}
	for _, r := range v.vis.Recommendations {
		fmt.Fprintf(&b, "\nSuggested: %s\n", r.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func answerSummary(v view, _ Entities) string {
	var b strings.Builder
	b.WriteString("**Complete Dataset Overview:**\n\n")
	if v.prof != nil {
		fmt.Fprintf(&b, "**Dataset Dimensions:**\n• **Rows:** %s records\n• **Columns:** %d features\n\n", comma(v.rows), len(v.columns))
		fmt.Fprintf(&b, "**Data Quality:**\n• **Quality Score:** %d%%\n• **Missing Values:** %s\n• **Completeness:** %s\n\n",
			int(v.prof.QualityScore*100), comma(v.prof.MissingValues.TotalMissingCells), pct(1-v.prof.MissingValues.OverallPercentage))
	}
	insights, recs, charts := 0, 0, 0
	if v.ins != nil {
		insights = len(v.ins.Insights)
	}
	if v.rec != nil {
		recs = len(v.rec.Recommendations)
	}
	if v.vis != nil {
		charts = len(v.vis.Charts)
	}
	fmt.Fprintf(&b, "**Analysis Results:**\n• **Insights:** %d discovered\n• **Recommendations:** %d available\n• **Charts:** %d created", insights, recs, charts)
	if len(v.columns) > 0 {
		more := ""
		if len(v.columns) > 5 {
			more = "..."
		}
		fmt.Fprintf(&b, "\n\n**Sample Columns:**\n%s%s", strings.Join(head(v.columns, 5), ", "), more)
	}
	return b.String()
}

var statLines = []struct {
	op    string
	label string
	get   func(s *stats.Summary) float64
}{
	{"AVG", "Mean", func(s *stats.Summary) float64 { return s.Mean }},
	{"MEDIAN", "Median", func(s *stats.Summary) float64 { return s.Median }},
	{"STD", "Std Dev", func(s *stats.Summary) float64 { return s.Std }},
	{"MIN", "Min", func(s *stats.Summary) float64 { return s.Min }},
	{"MAX", "Max", func(s *stats.Summary) float64 { return s.Max }},
}

// answerStatistics reports the summary of the first mentioned numeric
// column. Aggregation operators in the question narrow the lines shown.
func answerStatistics(v view, e Entities) string {
	if v.prof == nil {
		return noProfile()
	}
	for _, col := range e.ColumnNames() {
		s := columnSummary(v.prof, col)
		if s == nil {
			continue
		}
		wanted := map[string]bool{}
		for _, op := range e.Operators {
			wanted[op] = true
		}
		var lines []string
		for _, l := range statLines {
			if len(wanted) == 0 || wanted[l.op] {
				lines = append(lines, fmt.Sprintf("• %s: %s", l.label, humanize.CommafWithDigits(l.get(s), 4)))
			}
		}
		if len(lines) == 0 {
			for _, l := range statLines {
				lines = append(lines, fmt.Sprintf("• %s: %s", l.label, humanize.CommafWithDigits(l.get(s), 4)))
			}
		}
		return fmt.Sprintf("**Statistics for '%s':**\n\n%s", col, strings.Join(lines, "\n"))
	}
	var numeric []string
	for _, cs := range v.prof.Statistics {
		if cs.Summary != nil {
			numeric = append(numeric, cs.Column)
		}
	}
	if len(numeric) == 0 {
		return "The dataset has no numeric columns to summarize."
	}
	return fmt.Sprintf("Summary statistics (mean, median, std, min, max, quartiles) are available for %d numeric columns: %s.\n\nAsk about a specific column for its figures.",
		len(numeric), strings.Join(head(numeric, 10), ", "))
}

func columnSummary(p *profiler.Result, col string) *stats.Summary {
	for _, cs := range p.Statistics {
		if cs.Column == col {
			return cs.Summary
		}
	}
	return nil
}

func answerComparison(v view, e Entities) string {
	cols := e.ColumnNames()
	if len(cols) < 2 {
		return "To compare columns, mention two of them by name, for example \"compare price vs quantity\"."
	}
	a, b := cols[0], cols[1]
	var out strings.Builder
	fmt.Fprintf(&out, "**Comparing '%s' vs '%s':**\n", a, b)
	if v.ins != nil {
		for _, c := range v.ins.Correlations {
			if (c.Column1 == a && c.Column2 == b) || (c.Column1 == b && c.Column2 == a) {
				fmt.Fprintf(&out, "\n• Correlation: %.3f (%s, %s)", c.Coefficient, strengthLabel(c.Coefficient), c.Direction)
			}
		}
	}
	if v.prof != nil {
		sa, sb := columnSummary(v.prof, a), columnSummary(v.prof, b)
		if sa != nil && sb != nil {
			fmt.Fprintf(&out, "\n• Mean: %s vs %s", humanize.CommafWithDigits(sa.Mean, 4), humanize.CommafWithDigits(sb.Mean, 4))
			fmt.Fprintf(&out, "\n• Median: %s vs %s", humanize.CommafWithDigits(sa.Median, 4), humanize.CommafWithDigits(sb.Median, 4))
			fmt.Fprintf(&out, "\n• Range: [%s, %s] vs [%s, %s]",
				humanize.CommafWithDigits(sa.Min, 4), humanize.CommafWithDigits(sa.Max, 4),
				humanize.CommafWithDigits(sb.Min, 4), humanize.CommafWithDigits(sb.Max, 4))
		}
	}
	return out.String()
}

func answerGeneral(v view, _ Entities) string {
	insights, recs := 0, 0
	if v.ins != nil {
		insights = len(v.ins.Insights)
	}
	if v.rec != nil {
		recs = len(v.rec.Recommendations)
	}
	return fmt.Sprintf(`**About your data:**
• %s rows × %d columns
• %d insights discovered
• %d recommendations available

**Try asking:**
• "What are the main insights?"
• "What's the data quality score?"
• "Are there any missing values?"
• "What columns are in the dataset?"
• "Show me the correlations"
• "What recommendations do you have?"`, comma(v.rows), len(v.columns), insights, recs)
}

func typeOf(v view, col string) string {
	if t, ok := v.types[col]; ok {
		return t
	}
	return "unknown"
}

func title(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
