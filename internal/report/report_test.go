package report

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/orchestrator"
)

func run(t *testing.T, stages ...string) *orchestrator.Result {
	t.Helper()
	n := 60
	a := make([]string, n)
	b := make([]string, n)
	city := make([]string, n)
	for i := 0; i < n; i++ {
		a[i] = strconv.Itoa(i)
		b[i] = strconv.Itoa(3*i + 1)
		city[i] = []string{"Oslo", "Bergen", ""}[i%3]
	}
	a[7] = "9000"
	ds, err := dataset.FromColumns("metrics.csv", []string{"a", "b", "city"}, [][]string{a, b, city})
	require.NoError(t, err)
	res, err := orchestrator.New(nil).RunAnalysis(context.Background(), ds, stages...)
	require.NoError(t, err)
	return res
}

func TestMarkdownSections(t *testing.T) {
	res := run(t)
	md := Markdown(res, DefaultOptions())
	for _, want := range []string{
		"# Analysis of metrics.csv",
		"- Status: completed",
		"## Overview",
		"- Rows: 60",
		"## Data Quality",
		"## Schema",
		"| city |",
		"## Numeric Summary",
		"## Outliers",
		"- a: ",
		"## Correlations",
		"## Charts",
		"## Recommendations",
		"Total: ",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "## Notes")
	assert.NotContains(t, md, "## Activity Log")
}

func TestMarkdownSubsetAndFailures(t *testing.T) {
	res := run(t, "data_profiler")
	res.Results["data_profiler"] = &agent.Outcome{Agent: "data_profiler", Status: agent.StatusFailed, Error: "boom"}
	md := Markdown(res, Options{IncludeActivities: true})
	assert.NotContains(t, md, "## Overview")
	assert.Contains(t, md, "- Stage data_profiler failed: boom")
	assert.Contains(t, md, "## Activity Log")
	assert.Contains(t, md, "data_profiler: Starting Data quality and profiling analysis")
}

func TestWrite(t *testing.T) {
	res := run(t, "recommendation")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, res, Options{MaxRecommendations: 1}))
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n### "))
	assert.Contains(t, out, "### 1. ")
}
