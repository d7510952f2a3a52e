package recommend

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/insight"
	"github.com/KaramelBytes/datalens/internal/profiler"
)

func ids(recs []Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func execute(t *testing.T, ds *dataset.Dataset, actx *agent.Context) (*Engine, *Result) {
	t.Helper()
	e := New(nil)
	out := e.Execute(context.Background(), ds, actx)
	require.True(t, out.OK(), out.Error)
	return e, out.Results.(*Result)
}

func TestHighlyMissingColumnAsksForImputation(t *testing.T) {
	n := 50
	idCol := make([]string, n)
	region := make([]string, n)
	notes := make([]string, n)
	for i := 0; i < n; i++ {
		idCol[i] = strconv.Itoa(i + 1)
		region[i] = []string{"north", "south"}[i%2]
		if i >= 20 {
			notes[i] = "n" + strconv.Itoa(i)
		}
	}
	ds, err := dataset.FromColumns("m", []string{"id", "region", "notes"}, [][]string{idCol, region, notes})
	require.NoError(t, err)

	actx := agent.NewContext()
	prof := profiler.New(nil).Execute(context.Background(), ds, actx)
	require.True(t, prof.OK())
	require.NoError(t, actx.Put(profiler.Name, prof))
	require.NoError(t, actx.Put(profiler.ContextKey, prof.Results))

	_, res := execute(t, ds, actx)

	var missing *Recommendation
	for i := range res.Recommendations {
		if res.Recommendations[i].ID == "dq_002" {
			missing = &res.Recommendations[i]
		}
	}
	require.NotNil(t, missing, "got %v", ids(res.Recommendations))
	assert.Equal(t, "Handle missing values", missing.Title)
	assert.Equal(t, PriorityHigh, missing.Priority)
	assert.Len(t, missing.Steps, 4)
}

func TestOrderingAndSummary(t *testing.T) {
	ds, err := dataset.FromColumns("s", []string{"city", "v"}, [][]string{{"a", "b", "c"}, {"1", "2", "3"}})
	require.NoError(t, err)
	actx := agent.NewContext()
	require.NoError(t, actx.Put(insight.ContextKey, &insight.Result{
		Correlations: []insight.Correlation{
			{Column1: "a", Column2: "b", Coefficient: 0.95},
			{Column1: "a", Column2: "c", Coefficient: -0.9},
			{Column1: "b", Column2: "c", Coefficient: 0.6},
			{Column1: "b", Column2: "d", Coefficient: 0.8},
			{Column1: "c", Column2: "d", Coefficient: 0.75},
		},
		Trends: []insight.Trend{{Column: "v", Type: "increasing"}},
	}))

	e, res := execute(t, ds, actx)

	assert.Equal(t, []string{"an_001", "an_002", "ns_002", "an_003", "ns_003"}, ids(res.Recommendations))
	assert.Equal(t, []string{"a vs b", "a vs c", "b vs d"}, res.Recommendations[0].RelatedInsights)
	assert.Equal(t, "Found 4 strong correlations that warrant deeper investigation.", res.Recommendations[0].Description)
	assert.Equal(t, []string{"v"}, res.Recommendations[1].RelatedInsights)

	assert.Equal(t, 5, res.Summary.Total)
	assert.Equal(t, map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 2}, res.Summary.ByPriority)
	assert.Equal(t, map[string]int{"analysis": 3, "next_steps": 2}, res.Summary.ByCategory)
	assert.Len(t, res.ByPriority(PriorityLow), 2)

	acts := e.Activities()
	require.NotEmpty(t, acts)
	assert.Equal(t, "Recommendations generated", acts[len(acts)-2].Action)
}

func TestScaleDivergence(t *testing.T) {
	ds, err := dataset.FromFloats("f", []string{"small", "large"}, [][]float64{
		{0, 0.5, 1},
		{0, 500, 1000},
	})
	require.NoError(t, err)
	_, res := execute(t, ds, nil)
	assert.Equal(t, []string{"fe_002", "ns_002", "ns_003"}, ids(res.Recommendations))

	flat, err := dataset.FromFloats("f", []string{"const", "a", "b"}, [][]float64{
		{7, 7, 7},
		{0, 1, 2},
		{0, 25, 50},
	})
	require.NoError(t, err)
	assert.False(t, scalesDiverge(flat), "constant columns are ignored")
}

func TestQualityDrivenRecommendations(t *testing.T) {
	ds, err := dataset.FromFloats("q", []string{"v"}, [][]float64{make([]float64, 200)})
	require.NoError(t, err)

	low := &profiler.Result{QualityScore: 0.5}
	low.Overview.Rows = 200
	low.Outliers.TotalOutlierColumns = 2
	actx := agent.NewContext()
	require.NoError(t, actx.Put(profiler.ContextKey, low))
	_, res := execute(t, ds, actx)
	assert.Equal(t, []string{"dq_001", "dq_003", "ns_003"}, ids(res.Recommendations))
	assert.Equal(t, "Data quality score is 50.0%. Address missing values and outliers before proceeding with analysis.", res.Recommendations[0].Description)

	good := &profiler.Result{QualityScore: 0.95}
	good.Overview.Rows = 200
	actx = agent.NewContext()
	require.NoError(t, actx.Put(profiler.ContextKey, good))
	require.NoError(t, actx.Put(insight.ContextKey, &insight.Result{Insights: make([]insight.Insight, 4)}))
	_, res = execute(t, ds, actx)
	assert.Equal(t, []string{"ns_001", "ns_003"}, ids(res.Recommendations))
}
