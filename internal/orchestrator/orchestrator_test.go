package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/events"
	"github.com/KaramelBytes/datalens/internal/insight"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/recommend"
	"github.com/KaramelBytes/datalens/internal/visualization"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func salesDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	n := 60
	units := make([]string, n)
	revenue := make([]string, n)
	region := make([]string, n)
	for i := 0; i < n; i++ {
		units[i] = strconv.Itoa(10 + i)
		revenue[i] = strconv.Itoa(25*(10+i) + i%3)
		region[i] = []string{"north", "south", "west"}[i%3]
	}
	ds, err := dataset.FromColumns("sales.csv", []string{"units", "revenue", "region"}, [][]string{units, revenue, region})
	require.NoError(t, err)
	return ds
}

func fixedIDs() func() string {
	n := 0
	return func() string {
		n++
		return "run-" + strconv.Itoa(n)
	}
}

func TestRunAnalysisAllStages(t *testing.T) {
	broker := events.NewBroker(256, nil)
	defer broker.Close()
	o := New(nil, WithSink(broker), WithIDs(fixedIDs()))

	sub := broker.Subscribe("run-1")
	received := make(chan []events.Event)
	go func() {
		var got []events.Event
		for ev := range sub.C() {
			got = append(got, ev)
		}
		received <- got
	}()

	res, err := o.RunAnalysis(context.Background(), salesDataset(t))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, []string{profiler.Name, insight.Name, visualization.Name, recommend.Name}, res.AgentsRun)
	for _, name := range res.AgentsRun {
		assert.True(t, res.Results[name].OK(), "%s: %s", name, res.Results[name].Error)
	}
	require.NotNil(t, res.Profile())
	require.NotNil(t, res.Insights())
	require.NotNil(t, res.Visualization())
	require.NotNil(t, res.Recommendations())

	s := res.Summary
	require.NotNil(t, s)
	assert.Equal(t, 4, s.TotalAgents)
	assert.Equal(t, 4, s.SuccessfulAgents)
	assert.Zero(t, s.FailedAgents)
	assert.Equal(t, len(res.Activities), s.TotalActivities)
	assert.Equal(t, res.Profile().QualityScore, *s.DataQualityScore)
	assert.Equal(t, len(res.Insights().Correlations), *s.CorrelationsFound)
	assert.Equal(t, len(res.Visualization().Charts), *s.ChartsGenerated)
	assert.Equal(t, len(res.Recommendations().Recommendations), *s.RecommendationsCount)

	var recIDs []string
	for _, r := range res.Recommendations().Recommendations {
		recIDs = append(recIDs, r.ID)
	}
	assert.Contains(t, recIDs, "an_001", "recommendation stage reads insights from the shared context")
	assert.Contains(t, recIDs, "fe_001", "recommendation stage reads the profile from the shared context")

	got := <-received
	require.Len(t, got, len(res.Activities)+2)
	assert.Equal(t, events.TypeConnected, got[0].Type)
	assert.Equal(t, events.TypeFinished, got[len(got)-1].Type)
	for i, act := range res.Activities {
		assert.Equal(t, act.Action, got[i+1].Activity.Action)
	}
	assert.Equal(t, "Starting Data quality and profiling analysis", res.Activities[0].Action)
	assert.Equal(t, agent.StatusCompleted, o.Status())
	assert.Same(t, res, o.Last())
}

func TestSubsetKeepsFixedOrder(t *testing.T) {
	o := New(nil)
	res, err := o.RunAnalysis(context.Background(), salesDataset(t), recommend.Name, profiler.Name)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{profiler.Name, recommend.Name}, res.AgentsRun); diff != "" {
		t.Fatalf("agents run mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, res.Summary.InsightsFound)
	assert.Nil(t, res.Summary.ChartsGenerated)
	require.NotNil(t, res.Summary.DataQualityScore)
	assert.Equal(t, agent.StatusIdle, o.Statuses()[insight.Name])
}

func TestUnknownStageRejectedBeforeRunning(t *testing.T) {
	o := New(nil)
	_, err := o.RunAnalysis(context.Background(), salesDataset(t), "data_profiler", "sentiment")
	require.ErrorIs(t, err, ErrUnknownStage)
	assert.Equal(t, agent.StatusIdle, o.Statuses()[profiler.Name])

	_, err = o.RunSingle(context.Background(), "sentiment", salesDataset(t), nil)
	require.ErrorIs(t, err, ErrUnknownStage)

	_, err = o.RunAnalysis(context.Background(), nil)
	require.ErrorIs(t, err, profiler.ErrUnsupportedInput)
}

func TestFailingStageDoesNotAbortRun(t *testing.T) {
	broken := agent.New(insight.Name, "Pattern and trend discovery", agent.AnalyzerFunc(
		func(context.Context, *dataset.Dataset, *agent.Context) (any, error) {
			return nil, errors.New("boom")
		}), nil)
	o := New(nil, WithStages(profiler.New(nil), broken, recommend.New(nil)))

	res, err := o.RunAnalysis(context.Background(), salesDataset(t))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	failed := res.Results[insight.Name]
	assert.Equal(t, agent.StatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
	assert.True(t, res.Results[recommend.Name].OK())
	assert.Equal(t, []string{insight.Name}, res.Failed())
	assert.Equal(t, 1, res.Summary.FailedAgents)
	assert.Equal(t, 0, *res.Summary.InsightsFound)
	assert.Nil(t, res.Insights())
}

func TestAggregationFailureMarksRunFailed(t *testing.T) {
	o := New(nil, WithStages(profiler.New(nil)))
	o.summarize = func(*Result) *Summary { panic("bad summary") }

	res, err := o.RunAnalysis(context.Background(), salesDataset(t))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, agent.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "bad summary")
	assert.True(t, res.Results[profiler.Name].OK(), "stage results survive")
	assert.Equal(t, agent.StatusFailed, o.Status())
}

func TestOverlappingRunsAreRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := agent.New("slow", "Slow stage", agent.AnalyzerFunc(
		func(context.Context, *dataset.Dataset, *agent.Context) (any, error) {
			close(started)
			<-release
			return "ok", nil
		}), nil)
	o := New(nil, WithStages(slow))
	ds := salesDataset(t)

	done := make(chan error)
	go func() {
		_, err := o.RunAnalysis(context.Background(), ds)
		done <- err
	}()
	<-started

	_, err := o.RunAnalysis(context.Background(), ds)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, o.Reset(), ErrBusy)
	assert.Equal(t, agent.StatusRunning, o.Status())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, agent.StatusCompleted, o.Status())
}

func TestResetClearsState(t *testing.T) {
	o := New(nil)
	_, err := o.RunAnalysis(context.Background(), salesDataset(t))
	require.NoError(t, err)
	require.NotEmpty(t, o.Activities())

	require.NoError(t, o.Reset())
	assert.Empty(t, o.Activities())
	assert.Nil(t, o.Last())
	assert.Equal(t, agent.StatusIdle, o.Status())
	for _, info := range o.AvailableStages() {
		assert.Equal(t, agent.StatusIdle, info.Status, info.Name)
	}

	res, err := o.RunAnalysis(context.Background(), salesDataset(t))
	require.NoError(t, err)
	assert.Equal(t, len(res.Activities), len(o.Activities()))
}

func TestRunSingleUsesItsOwnContext(t *testing.T) {
	o := New(nil)
	out, err := o.RunSingle(context.Background(), visualization.Name, salesDataset(t), nil)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.IsType(t, &visualization.Result{}, out.Results)
	assert.Nil(t, o.Last())
	assert.Equal(t, agent.StatusIdle, o.Status())
}

func TestAvailableStages(t *testing.T) {
	var names []string
	for _, s := range New(nil).AvailableStages() {
		names = append(names, s.Name)
		assert.NotEmpty(t, s.Description)
	}
	assert.Equal(t, []string{"data_profiler", "insight_discovery", "visualization", "recommendation"}, names)
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(nil).RunAnalysis(ctx, salesDataset(t))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCancelled, res.Status)
	assert.Equal(t, agent.StatusCancelled, res.Results[profiler.Name].Status)
}

func TestRunFileLoadError(t *testing.T) {
	o := New(nil)
	_, err := o.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), dataset.DefaultOptions())
	require.Error(t, err)
	assert.Nil(t, o.Last())
}

func TestStoredResultDecodesTypedBlocks(t *testing.T) {
	res, err := New(nil).RunAnalysis(context.Background(), salesDataset(t))
	require.NoError(t, err)
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var back Result
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, res.RunID, back.RunID)
	assert.Equal(t, res.AgentsRun, back.AgentsRun)
	require.NotNil(t, back.Profile())
	assert.Equal(t, res.Profile().Overview.Rows, back.Profile().Overview.Rows)
	require.NotNil(t, back.Recommendations())
	assert.Equal(t, res.Recommendations().Summary.Total, back.Recommendations().Summary.Total)
	assert.Equal(t, *res.Summary.ChartsGenerated, len(back.Visualization().Charts))
}
