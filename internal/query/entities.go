package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Number kinds.
const (
	NumberPercentage = "percentage"
	NumberRange      = "range"
	NumberFloat      = "float"
	NumberInteger    = "integer"
)

// Entities is what a question mentions beyond its intent.
type Entities struct {
	Columns   []ColumnMatch `json:"columns"`
	Numbers   []Number      `json:"numbers"`
	Operators []string      `json:"operators"`
}

// ColumnMatch is a column the question refers to, with match confidence.
type ColumnMatch struct {
	Column     string  `json:"column"`
	Confidence float64 `json:"confidence"`
}

// Number is a numeric literal. High is set for ranges only.
type Number struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	High  float64 `json:"high,omitempty"`
	Raw   string  `json:"raw"`
}

// ColumnNames returns the matched columns, best first.
func (e Entities) ColumnNames() []string {
	out := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		out[i] = c.Column
	}
	return out
}

const (
	columnThreshold = 0.8
	wordThreshold   = 0.85
	wordShare       = 0.7
	shortColumn     = 4
)

var (
	wordRe       = regexp.MustCompile(`\w+`)
	percentRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	rangeRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:-|to|and)\s*(\d+(?:\.\d+)?)`)
	floatRe      = regexp.MustCompile(`\b(\d+\.\d+)\b`)
	integerRe    = regexp.MustCompile(`\b(\d+)\b`)
	comparisonOp = []operatorPattern{
		{regexp.MustCompile(`(?i)\b(greater|more|higher|above|over)\b`), ">"},
		{regexp.MustCompile(`(?i)\b(less|fewer|lower|below|under)\b`), "<"},
		{regexp.MustCompile(`(?i)\b(equal|same|exactly)\b`), "=="},
		{regexp.MustCompile(`(?i)\b(not equal|different)\b`), "!="},
		{regexp.MustCompile(`(?i)\bbetween\b`), "BETWEEN"},
		{regexp.MustCompile(`(?i)\b(in|within)\b`), "IN"},
	}
	aggregationOp = []operatorPattern{
		{regexp.MustCompile(`(?i)\b(average|mean|avg)\b`), "AVG"},
		{regexp.MustCompile(`(?i)\b(sum|total)\b`), "SUM"},
		{regexp.MustCompile(`(?i)\b(count|number of|how many)\b`), "COUNT"},
		{regexp.MustCompile(`(?i)\b(max|maximum|highest)\b`), "MAX"},
		{regexp.MustCompile(`(?i)\b(min|minimum|lowest)\b`), "MIN"},
		{regexp.MustCompile(`(?i)\b(median|middle)\b`), "MEDIAN"},
		{regexp.MustCompile(`(?i)\b(std|standard deviation)\b`), "STD"},
	}
)

type operatorPattern struct {
	re *regexp.Regexp
	op string
}

// ExtractEntities finds columns, numbers and operators in a question.
func ExtractEntities(q string, columns []string) Entities {
	return Entities{
		Columns:   MatchColumns(q, columns),
		Numbers:   ExtractNumbers(q),
		Operators: ExtractOperators(q),
	}
}

// MatchColumns resolves column references in text. Each column is tried
// against progressively looser tiers and keeps the first tier that accepts
// it: exact containment (whole word for names under four characters), a
// single question word close to the name, most words of a multi-word name,
// a sliding window over the raw text, and finally an in-order subsequence.
func MatchColumns(text string, columns []string) []ColumnMatch {
	lower := strings.ToLower(text)
	tokens := wordRe.FindAllString(lower, -1)
	out := []ColumnMatch{}
	for _, col := range columns {
		if conf, ok := matchColumn(lower, tokens, col); ok {
			out = append(out, ColumnMatch{Column: col, Confidence: conf})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func matchColumn(text string, tokens []string, col string) (float64, bool) {
	c := strings.ToLower(col)
	n := len([]rune(c))
	if n == 0 {
		return 0, false
	}
	if n < shortColumn {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(c) + `\b`).MatchString(text) {
			return 1, true
		}
	} else if strings.Contains(text, c) {
		return 1, true
	}

	bestToken := 0.0
	for _, tok := range tokens {
		if r := similarity(c, tok); r > bestToken {
			bestToken = r
		}
	}
	if bestToken >= columnThreshold {
		return bestToken, true
	}

	if words := wordRe.FindAllString(c, -1); len(words) > 1 {
		hit := 0
		for _, w := range words {
			for _, tok := range tokens {
				if similarity(w, tok) >= wordThreshold {
					hit++
					break
				}
			}
		}
		if float64(hit) >= float64(len(words))*wordShare {
			return float64(hit) / float64(len(words)), true
		}
	}

	if n < shortColumn {
		return 0, false
	}
	if w := windowScore(text, c, n); w >= columnThreshold {
		return w, true
	}
	return subsequenceScore(text, c, n)
}

// windowScore compares col with every substring of text whose length is
// within two runes of the column name.
func windowScore(text, col string, n int) float64 {
	runes := []rune(text)
	best := 0.0
	for size := max(1, n-2); size <= n+2; size++ {
		for i := 0; i+size <= len(runes); i++ {
			if r := similarity(col, string(runes[i:i+size])); r > best {
				best = r
			}
		}
	}
	return best
}

// subsequenceScore accepts a column whose characters appear in order in the
// text within a span at most two runes longer than the name.
func subsequenceScore(text, col string, n int) (float64, bool) {
	matches := fuzzy.Find(col, []string{text})
	if len(matches) == 0 {
		return 0, false
	}
	idx := matches[0].MatchedIndexes
	if len(idx) == 0 {
		return 0, false
	}
	span := idx[len(idx)-1] - idx[0] + 1
	if span > n+2 {
		return 0, false
	}
	return columnThreshold * float64(n) / float64(span), true
}

// ExtractNumbers pulls percentages, ranges, decimals and integers from text.
// Kinds are tried in that order and a literal overlapping an earlier match
// is not reported again.
func ExtractNumbers(text string) []Number {
	var out []Number
	var taken [][2]int
	free := func(lo, hi int) bool {
		for _, t := range taken {
			if lo < t[1] && t[0] < hi {
				return false
			}
		}
		return true
	}
	scan := func(re *regexp.Regexp, build func(m []string) Number) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if !free(loc[0], loc[1]) {
				continue
			}
			taken = append(taken, [2]int{loc[0], loc[1]})
			m := make([]string, len(loc)/2)
			for i := range m {
				if loc[2*i] >= 0 {
					m[i] = text[loc[2*i]:loc[2*i+1]]
				}
			}
			out = append(out, build(m))
		}
	}
	scan(percentRe, func(m []string) Number {
		return Number{Kind: NumberPercentage, Value: parseFloat(m[1]), Raw: m[0]}
	})
	scan(rangeRe, func(m []string) Number {
		return Number{Kind: NumberRange, Value: parseFloat(m[1]), High: parseFloat(m[2]), Raw: m[0]}
	})
	scan(floatRe, func(m []string) Number {
		return Number{Kind: NumberFloat, Value: parseFloat(m[1]), Raw: m[0]}
	})
	scan(integerRe, func(m []string) Number {
		return Number{Kind: NumberInteger, Value: parseFloat(m[1]), Raw: m[0]}
	})
	return out
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// ExtractOperators returns comparison operators followed by aggregations,
// each at most once.
func ExtractOperators(text string) []string {
	var out []string
	for _, table := range [][]operatorPattern{comparisonOp, aggregationOp} {
		for _, p := range table {
			if p.re.MatchString(text) {
				out = append(out, p.op)
			}
		}
	}
	return out
}
