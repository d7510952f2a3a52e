package stats

import (
	"strings"
	"time"
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// Semantic column types, in detection order.
const (
	TypeNull        = "null"
	TypeBoolean     = "boolean"
	TypeDatetime    = "datetime"
	TypeNumeric     = "numeric"
	TypeCategorical = "categorical"
	TypeText        = "text"
)

// TypeInfo is the inferred semantic type of a column.
type TypeInfo struct {
	Type       string         `json:"semantic_type"`
	Subtype    string         `json:"subtype,omitempty"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var boolTokens = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {}, "y": {}, "n": {}, "1": {}, "0": {},
	"t": {}, "f": {}, "True": {}, "False": {}, "Yes": {}, "No": {}, "TRUE": {}, "FALSE": {},
}

// DateLayouts are tried in order; the first that parses most of a sample wins.
var DateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2-1-2006",
	"2/1/2006",
	"2006-1-2 15:04:05",
	"2006/1/2 15:04:05",
	"2-1-2006 15:04:05",
	"1/2/2006",
	"20060102",
}

const (
	dateSample     = 100
	dateThreshold  = 0.9
	longTextLength = 50
	topValueLimit  = 10
)

// InferType classifies a column as null, boolean, datetime, numeric,
// categorical or text, checked in that order.
func InferType(col *dataset.Column) TypeInfo {
	present := col.Present()
	if len(present) == 0 {
		return TypeInfo{Type: TypeNull, Confidence: 1}
	}
	if isBoolean(col, present) {
		return TypeInfo{Type: TypeBoolean, Confidence: 1}
	}
	if info, ok := inferDatetime(present); ok {
		return info
	}
	if col.IsNumeric() {
		vals := col.Values()
		sorted := Sorted(vals)
		sub := "float"
		if col.IsInteger() {
			sub = "integer"
		}
		return TypeInfo{
			Type:       TypeNumeric,
			Subtype:    sub,
			Confidence: 1,
			Metadata: map[string]any{
				"min":    sorted[0],
				"max":    sorted[len(sorted)-1],
				"mean":   stat.Mean(vals, nil),
				"median": Quantile(sorted, 0.5),
			},
		}
	}
	counts := col.Counts()
	ratio := float64(len(counts)) / float64(len(present))
	if ratio < 0.1 || len(counts) < 50 {
		top := counts
		if len(top) > topValueLimit {
			top = top[:topValueLimit]
		}
		return TypeInfo{
			Type:       TypeCategorical,
			Confidence: 1 - ratio,
			Metadata: map[string]any{
				"unique_count":      len(counts),
				"cardinality_ratio": ratio,
				"top_values":        top,
			},
		}
	}
	total, longest := 0, 0
	for _, s := range present {
		n := utf8.RuneCountInString(s)
		total += n
		if n > longest {
			longest = n
		}
	}
	avg := float64(total) / float64(len(present))
	sub := "short"
	if avg > longTextLength {
		sub = "long"
	}
	return TypeInfo{
		Type:       TypeText,
		Subtype:    sub,
		Confidence: 0.8,
		Metadata:   map[string]any{"avg_length": avg, "max_length": longest},
	}
}

func isBoolean(col *dataset.Column, present []string) bool {
	if col.IsNumeric() {
		seen := map[float64]struct{}{}
		for _, v := range col.Values() {
			if v != 0 && v != 1 {
				return false
			}
			seen[v] = struct{}{}
		}
		return len(seen) <= 2
	}
	seen := map[string]struct{}{}
	for _, s := range present {
		if _, ok := boolTokens[s]; !ok {
			return false
		}
		seen[s] = struct{}{}
		if len(seen) > 2 {
			return false
		}
	}
	return true
}

func inferDatetime(present []string) (TypeInfo, bool) {
	sample := present
	if len(sample) > dateSample {
		sample = sample[:dateSample]
	}
	for _, layout := range DateLayouts {
		var parsed []time.Time
		for _, s := range sample {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				parsed = append(parsed, t)
			}
		}
		rate := float64(len(parsed)) / float64(len(sample))
		if rate < dateThreshold {
			continue
		}
		lo, hi := parsed[0], parsed[0]
		for _, t := range parsed[1:] {
			if t.Before(lo) {
				lo = t
			}
			if t.After(hi) {
				hi = t
			}
		}
		return TypeInfo{
			Type:       TypeDatetime,
			Confidence: rate,
			Metadata: map[string]any{
				"format":     layout,
				"min_date":   lo.Format("2006-01-02 15:04:05"),
				"max_date":   hi.Format("2006-01-02 15:04:05"),
				"range_days": int(hi.Sub(lo).Hours() / 24),
			},
		}, true
	}
	return TypeInfo{}, false
}

// ParseDate tries every known layout and reports the first match.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "Jan 2, 2006", "2 Jan 2006", "01-02-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
