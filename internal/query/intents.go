package query

import (
	"math"
	"strings"
)

// Intents the engine knows how to answer.
const (
	IntentDatasetSize     = "dataset_size"
	IntentColumns         = "columns"
	IntentMissingValues   = "missing_values"
	IntentQuality         = "data_quality"
	IntentOutliers        = "outliers"
	IntentInsights        = "insights"
	IntentCorrelations    = "correlations"
	IntentRecommendations = "recommendations"
	IntentCharts          = "charts"
	IntentSummary         = "summary"
	IntentStatistics      = "statistics"
	IntentComparison      = "comparison"
	IntentGeneral         = "general"
)

const (
	exactWeight       = 10.0
	keywordWeight     = 2.0
	fuzzyWeight       = 8.0
	fuzzyThreshold    = 0.85
	generalConfidence = 0.5
)

type intentPattern struct {
	intent   string
	exact    []string
	keywords []string
}

// intentTable is ordered; on equal scores the earlier intent wins.
var intentTable = []intentPattern{
	{IntentDatasetSize,
		[]string{"how many rows", "dataset size", "number of rows", "row count"},
		[]string{"rows", "size", "count", "records", "entries", "observations"}},
	{IntentColumns,
		[]string{"what columns", "column names", "list columns", "show columns"},
		[]string{"columns", "fields", "variables", "attributes"}},
	{IntentMissingValues,
		[]string{"missing values", "missing data", "null values", "empty values"},
		[]string{"missing", "null", "nan", "empty", "blank", "incomplete"}},
	{IntentQuality,
		[]string{"data quality", "quality score", "data health"},
		[]string{"quality", "health", "validity", "accuracy", "completeness"}},
	{IntentOutliers,
		[]string{"outliers", "anomalies", "unusual values", "unusual data"},
		[]string{"outlier", "anomaly", "unusual", "extreme", "abnormal"}},
	{IntentInsights,
		[]string{"key insights", "main insights", "discoveries", "findings"},
		[]string{"insight", "finding", "discovery", "pattern", "trend"}},
	{IntentCorrelations,
		[]string{"correlations", "relationships", "associations"},
		[]string{"correlation", "relationship", "association", "connection", "related"}},
	{IntentRecommendations,
		[]string{"recommendations", "suggestions", "advice"},
		[]string{"recommend", "suggest", "advice", "should", "improve"}},
	{IntentCharts,
		[]string{"charts", "visualizations", "graphs", "plots"},
		[]string{"chart", "visualization", "graph", "plot", "visual"}},
	{IntentSummary,
		[]string{"summary", "overview", "summarize"},
		[]string{"summary", "overview", "brief", "quick"}},
	{IntentStatistics,
		[]string{"statistics", "stats", "statistical analysis"},
		[]string{"statistics", "stats", "mean", "median", "std", "distribution"}},
	{IntentComparison,
		[]string{"compare", "difference between", "versus"},
		[]string{"compare", "comparison", "difference", "versus", "vs", "between"}},
}

// Intents lists every intent Classify can return, general last.
func Intents() []string {
	out := make([]string, 0, len(intentTable)+1)
	for _, p := range intentTable {
		out = append(out, p.intent)
	}
	return append(out, IntentGeneral)
}

// Normalize collapses whitespace, drops trailing punctuation and lowercases.
func Normalize(question string) string {
	q := strings.Join(strings.Fields(question), " ")
	q = strings.TrimRight(q, "?!.,")
	return strings.TrimSpace(strings.ToLower(q))
}

// Classify scores q, which should already be normalized, against the intent
// table. A single matching exact phrase adds 10 and each keyword found adds 2.
// Intents with no hit at all may still score through a fuzzy comparison of
// the whole question with their exact phrases. Confidence is the score over
// 10, capped at 1; nothing scoring yields general at 0.5.
func Classify(q string) (string, float64) {
	best, bestScore := IntentGeneral, 0.0
	for _, p := range intentTable {
		score := scoreIntent(p, q)
		if score > bestScore {
			best, bestScore = p.intent, score
		}
	}
	if bestScore == 0 {
		return IntentGeneral, generalConfidence
	}
	return best, math.Min(bestScore/exactWeight, 1)
}

func scoreIntent(p intentPattern, q string) float64 {
	score := 0.0
	for _, phrase := range p.exact {
		if strings.Contains(q, phrase) {
			score += exactWeight
			break
		}
	}
	for _, kw := range p.keywords {
		if strings.Contains(q, kw) {
			score += keywordWeight
		}
	}
	if score > 0 {
		return score
	}
	for _, phrase := range p.exact {
		if sim := similarity(phrase, q); sim >= fuzzyThreshold {
			score += sim * fuzzyWeight
		}
	}
	return score
}
