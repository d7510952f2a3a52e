package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

func uniformWithSpikes() []float64 {
	vals := make([]float64, 0, 1010)
	for i := 0; i < 1000; i++ {
		vals = append(vals, float64(i)/1000)
	}
	for i := 0; i < 10; i++ {
		vals = append(vals, 10000)
	}
	return vals
}

func TestDetectOutliersFindsExtremeSpikes(t *testing.T) {
	res := DetectOutliers(uniformWithSpikes())
	assert.Equal(t, 10, res.Count)
	assert.InDelta(t, 100*10.0/1010, res.Percentage, 1e-9)
	assert.Equal(t, SeverityMedium, res.Severity, "far-out spikes escalate low severity")
	for _, v := range res.Values {
		assert.Equal(t, 10000.0, v)
	}
}

func TestDetectOutliersIsOrderIndependent(t *testing.T) {
	vals := uniformWithSpikes()
	want := DetectOutliers(vals)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		rng.Shuffle(len(vals), func(a, b int) { vals[a], vals[b] = vals[b], vals[a] })
		got := DetectOutliers(vals)
		assert.Equal(t, want.Count, got.Count)
		assert.Equal(t, want.Severity, got.Severity)
	}
}

func TestDetectOutliersConstantAndEmpty(t *testing.T) {
	assert.Equal(t, 0, DetectOutliers(nil).Count)
	res := DetectOutliers([]float64{5, 5, 5, 5})
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, SeverityNone, res.Severity)
}

func TestOutlierSeverityBuckets(t *testing.T) {
	assert.Equal(t, SeverityHigh, OutlierSeverity(10.5))
	assert.Equal(t, SeverityMedium, OutlierSeverity(6))
	assert.Equal(t, SeverityLow, OutlierSeverity(0.1))
	assert.Equal(t, SeverityNone, OutlierSeverity(0))
}

func TestQuantileInterpolates(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, Quantile(s, 0.5))
	assert.Equal(t, 1.75, Quantile(s, 0.25))
	assert.Equal(t, 4.0, Quantile(s, 1))
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}

func TestDescribe(t *testing.T) {
	assert.Nil(t, Describe(nil))
	s := Describe([]float64{4, 1, 3, 2})
	require.NotNil(t, s)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 2.5, s.Median)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 1.2909944, s.Std, 1e-6)
	one := Describe([]float64{7})
	assert.Equal(t, 0.0, one.Std)
}

func TestShape(t *testing.T) {
	d := Shape([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, ShapeSymmetric, d.Shape)
	assert.True(t, d.IsNormal)

	skewed := Shape([]float64{1, 1, 1, 1, 1, 2, 2, 3, 10, 40})
	assert.Equal(t, ShapeRightSkewed, skewed.Shape)
	assert.Greater(t, skewed.Skewness, 0.5)

	flat := Shape([]float64{3, 3, 3})
	assert.Equal(t, 0.0, flat.Skewness)
}

func TestPearsonPerfectLine(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2*v + 1
	}
	r, n, ok := Pearson(x, y)
	require.True(t, ok)
	assert.Equal(t, 6, n)
	assert.InDelta(t, 1.0, r, 1e-12)
}

func TestPearsonDropsIncompletePairs(t *testing.T) {
	nan := math.NaN()
	x := []float64{1, 2, nan, 4, 5}
	y := []float64{2, 4, 6, nan, 10}
	r, n, ok := Pearson(x, y)
	require.True(t, ok)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 1.0, r, 1e-12)

	_, _, ok = Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.False(t, ok, "constant side has no correlation")
}

func TestLinearTrend(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	y := []float64{1, 3.2, 4.8, 7.1, 9, 11.2, 12.8, 15.1, 17, 18.9}
	tr, ok := LinearTrend(x, y)
	require.True(t, ok)
	assert.InDelta(t, 2.0, tr.Slope, 0.05)
	assert.Greater(t, tr.RSquared, 0.99)
	assert.Less(t, tr.PValue, 0.001)

	noisy := []float64{5, 1, 4, 2, 5, 1, 4, 2, 5, 1}
	tr, ok = LinearTrend(x, noisy)
	require.True(t, ok)
	assert.Greater(t, tr.PValue, 0.05)

	_, ok = LinearTrend([]float64{0, 1}, []float64{1, 2})
	assert.False(t, ok)
}

func TestPopulationZScores(t *testing.T) {
	z := PopulationZScores([]float64{1, 3})
	assert.InDelta(t, -1, z[0], 1e-12)
	assert.InDelta(t, 1, z[1], 1e-12)
	assert.Equal(t, []float64{0, 0}, PopulationZScores([]float64{2, 2}))
}

func mustColumns(t *testing.T, names []string, values [][]string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromColumns("t", names, values)
	require.NoError(t, err)
	return ds
}

func TestInferType(t *testing.T) {
	ds := mustColumns(t,
		[]string{"empty", "flag", "when", "qty", "price", "color"},
		[][]string{
			{"", "", "", ""},
			{"yes", "no", "yes", "no"},
			{"2024-01-01", "2024-01-05", "2024-02-01", "2024-03-01"},
			{"10", "20", "30", "40"},
			{"1.5", "2.5", "3.5", "4.5"},
			{"red", "blue", "red", "red"},
		})
	get := func(name string) TypeInfo {
		col, ok := ds.Column(name)
		require.True(t, ok)
		return InferType(col)
	}
	assert.Equal(t, TypeNull, get("empty").Type)
	assert.Equal(t, TypeBoolean, get("flag").Type)

	when := get("when")
	assert.Equal(t, TypeDatetime, when.Type)
	assert.Equal(t, 60, when.Metadata["range_days"])

	qty := get("qty")
	assert.Equal(t, TypeNumeric, qty.Type)
	assert.Equal(t, "integer", qty.Subtype)
	assert.Equal(t, "float", get("price").Subtype)

	color := get("color")
	assert.Equal(t, TypeCategorical, color.Type)
	assert.Equal(t, 2, color.Metadata["unique_count"])
}

func TestInferTypeText(t *testing.T) {
	vals := make([]string, 60)
	for i := range vals {
		vals[i] = "a free form comment that keeps going and going past fifty chars #" + string(rune('A'+i%26)) + string(rune('a'+i/26))
	}
	ds := mustColumns(t, []string{"comment"}, [][]string{vals})
	col, _ := ds.Column("comment")
	info := InferType(col)
	assert.Equal(t, TypeText, info.Type)
	assert.Equal(t, "long", info.Subtype)
	assert.Equal(t, 0.8, info.Confidence)
}

func TestAnalyzeMissing(t *testing.T) {
	ds := mustColumns(t, []string{"a", "b", "c"}, [][]string{
		{"1", "", "", "", "5", "6", "7", "8", "9", "10"},
		{"1", "2", "3", "4", "5", "6", "7", "8", "", "10"},
		{"x", "y", "z", "x", "y", "z", "x", "y", "z", "x"},
	})
	m := AnalyzeMissing(ds)
	assert.Equal(t, 4, m.TotalMissingCells)
	assert.Equal(t, 30, m.TotalCells)
	assert.InDelta(t, 4.0/30, m.OverallPercentage, 1e-12)
	assert.Equal(t, 2, m.ColumnsAffected)
	a, ok := m.Column("a")
	require.True(t, ok)
	assert.Equal(t, SeverityMedium, a.Severity)
	b, _ := m.Column("b")
	assert.Equal(t, SeverityLow, b.Severity)
	_, ok = m.Column("c")
	assert.False(t, ok)
}

func TestScoreQualityBounds(t *testing.T) {
	clean := mustColumns(t, []string{"n", "s"}, [][]string{
		{"1", "2", "3", "4"},
		{"ab", "cd", "ef", "gh"},
	})
	q := ScoreQuality(clean)
	assert.InDelta(t, 1.0, q.Overall, 1e-12)

	dirty := mustColumns(t, []string{"n", "s"}, [][]string{
		{"1", "", "1", ""},
		{"a", "", "a", ""},
	})
	q = ScoreQuality(dirty)
	assert.InDelta(t, 0.5, q.Completeness, 1e-12)
	assert.InDelta(t, 0.5, q.Uniqueness, 1e-12)
	assert.GreaterOrEqual(t, q.Overall, 0.0)
	assert.LessOrEqual(t, q.Overall, 1.0)

	empty := mustColumns(t, nil, nil)
	assert.InDelta(t, 1.0, ScoreQuality(empty).Overall, 1e-12)
}

func TestLegacyQuality(t *testing.T) {
	assert.Equal(t, 1.0, LegacyQuality(0, 0, 0, 0))
	assert.Equal(t, 1.0, LegacyQuality(0, 0, 0, 4))
	assert.InDelta(t, (0.5+0.75+0.875)/3, LegacyQuality(0.15, 1, 1, 4), 1e-3)
}
