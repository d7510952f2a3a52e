package visualization

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/profiler"
)

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return "chart-" + strconv.Itoa(n)
	}
}

func execute(t *testing.T, ds *dataset.Dataset, actx *agent.Context) *Result {
	t.Helper()
	s := New(nil)
	s.newID = counterIDs()
	out := s.Execute(context.Background(), ds, actx)
	require.True(t, out.OK(), out.Error)
	return out.Results.(*Result)
}

func wideDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	n := 40
	names := []string{"a", "b", "c", "d", "e", "f", "empty", "city", "day", "tier"}
	cols := make([][]string, len(names))
	for i := range cols {
		cols[i] = make([]string, n)
	}
	for i := 0; i < n; i++ {
		cols[0][i] = strconv.Itoa(i)
		cols[1][i] = strconv.Itoa(2 * i)
		cols[2][i] = strconv.Itoa(3*i + i%3)
		cols[3][i] = strconv.Itoa(100 - i)
		cols[4][i] = strconv.Itoa(i % 7)
		cols[5][i] = strconv.Itoa((i * 13) % 17)
		cols[6][i] = ""
		cols[7][i] = []string{"Oslo", "Bergen"}[i%2]
		cols[8][i] = "2024-03-" + strconv.Itoa(1+i%28)
		cols[9][i] = "t" + strconv.Itoa(i%4)
	}
	ds, err := dataset.FromColumns("wide", names, cols)
	require.NoError(t, err)
	return ds
}

func TestChartSelection(t *testing.T) {
	res := execute(t, wideDataset(t), agent.NewContext())

	var hist, scatter, bar, heat []Chart
	for _, c := range res.Charts {
		switch c.Type {
		case ChartHistogram:
			hist = append(hist, c)
		case ChartScatter:
			scatter = append(scatter, c)
		case ChartBar:
			bar = append(bar, c)
		case ChartHeatmap:
			heat = append(heat, c)
		}
		assert.NotEmpty(t, c.ID)
		assert.NotNil(t, c.Config["data"])
		assert.NotNil(t, c.Config["layout"])
	}
	require.Len(t, hist, 5)
	assert.Equal(t, "a", hist[0].Column)
	assert.Equal(t, "e", hist[4].Column)

	require.Len(t, scatter, 3)
	assert.Equal(t, []string{"a", "b"}, scatter[0].Columns)
	assert.Equal(t, []string{"a", "c"}, scatter[1].Columns)
	assert.Equal(t, []string{"a", "d"}, scatter[2].Columns)
	assert.Equal(t, "Relationship between a and d (correlation: -1.00)", scatter[2].Description)

	require.Len(t, bar, 2, "day has more than 20 distinct values")
	assert.Equal(t, "city", bar[0].Column)
	assert.Equal(t, "tier", bar[1].Column)

	require.Len(t, heat, 1)
	assert.Len(t, heat[0].Columns, 7)

	assert.Equal(t, len(res.Charts), res.Summary.TotalCharts)
	assert.Equal(t, []string{"bar", "heatmap", "histogram", "scatter"}, res.Summary.ChartTypes)

	var recTypes []string
	for _, r := range res.Recommendations {
		recTypes = append(recTypes, r.Type)
	}
	assert.Equal(t, []string{"time_series", "geographic"}, recTypes)
	assert.Equal(t, "Create time series visualization for day", res.Recommendations[0].Title)
}

func TestConfigStaysOutOfResultJSON(t *testing.T) {
	res := execute(t, wideDataset(t), agent.NewContext())
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plotly_white")
	assert.Contains(t, string(raw), "Correlation Heatmap")
}

func TestSparseDatasetSuggestsExploration(t *testing.T) {
	ds, err := dataset.FromColumns("s", []string{"notes"}, [][]string{{"x", "y", "z"}})
	require.NoError(t, err)
	res := execute(t, ds, nil)
	require.Len(t, res.Charts, 1)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, "exploration", res.Recommendations[0].Type)
}

func TestTemporalColumnFromProfile(t *testing.T) {
	ds, err := dataset.FromColumns("p", []string{"stamp", "v"}, [][]string{{"20240101", "20240102", "20240103"}, {"1", "2", "3"}})
	require.NoError(t, err)
	actx := agent.NewContext()
	p := profiler.New(nil)
	out := p.Execute(context.Background(), ds, actx)
	require.NoError(t, actx.Put(profiler.Name, out))
	res := execute(t, ds, actx)
	require.NotEmpty(t, res.Recommendations)
	assert.Equal(t, "Create time series visualization for stamp", res.Recommendations[0].Title)
}
