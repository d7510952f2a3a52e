// Package orchestrator runs the analysis stages in dependency order over a
// dataset and folds their outcomes into one aggregate result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/events"
	"github.com/KaramelBytes/datalens/internal/insight"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/recommend"
	"github.com/KaramelBytes/datalens/internal/visualization"
)

var (
	// ErrUnknownStage is returned for a stage name that is not registered.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrBusy is returned when a run is started while another is in flight
	// on the same orchestrator.
	ErrBusy = errors.New("orchestrator is busy")
)

// Stage is an analysis step driven by the orchestrator. Every stage type in
// this module satisfies it through its embedded *agent.Agent.
type Stage interface {
	Name() string
	Description() string
	Status() agent.Status
	SetCallback(func(agent.Activity))
	Execute(ctx context.Context, ds *dataset.Dataset, actx *agent.Context) *agent.Outcome
	Reset()
}

// StageInfo describes a registered stage.
type StageInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      agent.Status `json:"status"`
}

// aliases publishes a stage's results under a second context key on success.
var aliases = map[string]string{
	profiler.Name: profiler.ContextKey,
	insight.Name:  insight.ContextKey,
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink forwards every activity to s as it is emitted.
func WithSink(s events.Sink) Option { return func(o *Orchestrator) { o.sink = s } }

// WithStages replaces the default stage list. Order is the execution order.
func WithStages(stages ...Stage) Option { return func(o *Orchestrator) { o.stages = stages } }

// WithIDs overrides run ID generation.
func WithIDs(fn func() string) Option { return func(o *Orchestrator) { o.newID = fn } }

// Orchestrator owns one instance of each stage. It runs at most one analysis
// at a time; use separate orchestrators for concurrent runs.
type Orchestrator struct {
	log    *zap.Logger
	stages []Stage
	byName map[string]Stage
	sink   events.Sink
	newID  func() string
	now    func() time.Time

	summarize func(*Result) *Summary

	mu         sync.Mutex
	busy       bool
	status     agent.Status
	activities []agent.Activity
	last       *Result
}

// DefaultStages returns fresh stage instances in dependency order.
func DefaultStages(log *zap.Logger) []Stage {
	return []Stage{
		profiler.New(log),
		insight.New(log),
		visualization.New(log),
		recommend.New(log),
	}
}

// New creates an orchestrator with the four analysis stages.
func New(log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		log:       log.Named("orchestrator"),
		newID:     uuid.NewString,
		now:       time.Now,
		status:    agent.StatusIdle,
		summarize: summarize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.stages == nil {
		o.stages = DefaultStages(log)
	}
	o.byName = make(map[string]Stage, len(o.stages))
	for _, s := range o.stages {
		o.byName[s.Name()] = s
	}
	o.log.Debug("stages registered", zap.Int("count", len(o.stages)))
	return o
}

// Status returns the state of the last run.
func (o *Orchestrator) Status() agent.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Last returns the result of the most recent run, or nil.
func (o *Orchestrator) Last() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Activities returns the aggregate activity log since the last Reset.
func (o *Orchestrator) Activities() []agent.Activity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]agent.Activity(nil), o.activities...)
}

// AvailableStages lists registered stages in execution order.
func (o *Orchestrator) AvailableStages() []StageInfo {
	out := make([]StageInfo, 0, len(o.stages))
	for _, s := range o.stages {
		out = append(out, StageInfo{Name: s.Name(), Description: s.Description(), Status: s.Status()})
	}
	return out
}

// Statuses maps stage name to its current state.
func (o *Orchestrator) Statuses() map[string]agent.Status {
	out := make(map[string]agent.Status, len(o.stages))
	for _, s := range o.stages {
		out[s.Name()] = s.Status()
	}
	return out
}

// Reset returns every stage to idle and clears the aggregate state.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	for _, s := range o.stages {
		s.Reset()
	}
	o.activities = nil
	o.last = nil
	o.status = agent.StatusIdle
	o.log.Debug("orchestrator reset")
	return nil
}

// RunFile loads path and runs the analysis over it. A load failure is
// returned as is and no stage runs.
func (o *Orchestrator) RunFile(ctx context.Context, path string, opt dataset.Options, stages ...string) (*Result, error) {
	ds, err := dataset.Load(path, opt)
	if err != nil {
		return nil, err
	}
	return o.RunAnalysis(ctx, ds, stages...)
}

// RunAnalysis executes the requested stages, or all of them, in dependency
// order. A stage failure is recorded in its outcome and the run continues.
// The returned error is non-nil only for invalid input or a busy
// orchestrator; otherwise a Result is always returned.
func (o *Orchestrator) RunAnalysis(ctx context.Context, ds *dataset.Dataset, stages ...string) (*Result, error) {
	if ds == nil {
		return nil, profiler.ErrUnsupportedInput
	}
	selected, err := o.selectStages(stages)
	if err != nil {
		return nil, err
	}
	if err := o.acquire(true); err != nil {
		return nil, err
	}
	defer o.release()

	res := &Result{
		RunID:     o.newID(),
		Dataset:   ds.Name,
		Status:    agent.StatusRunning,
		StartedAt: o.now(),
		AgentsRun: []string{},
		Results:   map[string]*agent.Outcome{},
	}
	log := o.log.With(zap.String("run_id", res.RunID), zap.String("dataset", ds.Name))
	log.Info("analysis started", zap.Int("rows", ds.Rows()), zap.Int("columns", ds.Width()), zap.Int("stages", len(selected)))

	actx := agent.NewContext()
	for _, s := range selected {
		out := o.runStage(ctx, res, s, ds, actx)
		if err := actx.Put(s.Name(), out); err != nil {
			log.Warn("context write failed", zap.String("stage", s.Name()), zap.Error(err))
		}
		if key, ok := aliases[s.Name()]; ok && out.OK() {
			if err := actx.Put(key, out.Results); err != nil {
				log.Warn("context write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	o.finish(ctx, res, log)
	return res, nil
}

// RunSingle executes one stage outside the fixed order, against actx or a
// fresh context when actx is nil. It does not touch the state of any full
// run.
func (o *Orchestrator) RunSingle(ctx context.Context, name string, ds *dataset.Dataset, actx *agent.Context) (*agent.Outcome, error) {
	s, ok := o.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	if ds == nil {
		return nil, profiler.ErrUnsupportedInput
	}
	if err := o.acquire(false); err != nil {
		return nil, err
	}
	defer o.release()
	if actx == nil {
		actx = agent.NewContext()
	}
	runID := o.newID()
	o.log.Info("running single stage", zap.String("stage", name), zap.String("run_id", runID))

	s.Reset()
	s.SetCallback(o.forward(runID, nil))
	defer s.SetCallback(nil)
	out := s.Execute(ctx, ds, actx)
	o.finishStream(runID, out.Status)
	return out, nil
}

func (o *Orchestrator) runStage(ctx context.Context, res *Result, s Stage, ds *dataset.Dataset, actx *agent.Context) *agent.Outcome {
	s.Reset()
	s.SetCallback(o.forward(res.RunID, res))
	defer s.SetCallback(nil)

	out := s.Execute(ctx, ds, actx)
	if out == nil {
		out = &agent.Outcome{Agent: s.Name(), Status: agent.StatusFailed, Error: "stage returned no outcome", Timestamp: o.now()}
	}
	res.AgentsRun = append(res.AgentsRun, s.Name())
	res.Results[s.Name()] = out
	if !out.OK() {
		o.log.Warn("stage did not complete",
			zap.String("run_id", res.RunID),
			zap.String("stage", s.Name()),
			zap.String("status", string(out.Status)),
			zap.String("error", out.Error))
	}
	return out
}

// forward returns the live callback for a stage: it records the activity
// on the run and hands it to the sink immediately.
func (o *Orchestrator) forward(runID string, res *Result) func(agent.Activity) {
	return func(act agent.Activity) {
		o.mu.Lock()
		o.activities = append(o.activities, act)
		if res != nil {
			res.Activities = append(res.Activities, act)
		}
		o.mu.Unlock()
		if o.sink != nil {
			o.sink.Publish(runID, act)
		}
	}
}

// finish builds the summary. Any panic while aggregating marks the run as
// failed; the partial result is still returned.
func (o *Orchestrator) finish(ctx context.Context, res *Result, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			res.Status = agent.StatusFailed
			res.Error = fmt.Sprintf("aggregation failed: %v", r)
			log.Error("analysis failed", zap.String("error", res.Error))
		}
		res.DurationSeconds = o.now().Sub(res.StartedAt).Seconds()
		o.mu.Lock()
		o.status = res.Status
		o.last = res
		o.mu.Unlock()
		o.finishStream(res.RunID, res.Status)
	}()

	res.Summary = o.summarize(res)
	res.Status = agent.StatusCompleted
	if err := ctx.Err(); err != nil {
		res.Status = agent.StatusCancelled
		res.Error = err.Error()
	}
	log.Info("analysis finished",
		zap.String("status", string(res.Status)),
		zap.Int("failed_stages", res.Summary.FailedAgents),
		zap.Duration("elapsed", o.now().Sub(res.StartedAt)))
}

// finisher is implemented by sinks that close a run's stream.
type finisher interface {
	Finish(runID string, status agent.Status)
}

func (o *Orchestrator) finishStream(runID string, status agent.Status) {
	if f, ok := o.sink.(finisher); ok {
		f.Finish(runID, status)
	}
}

func (o *Orchestrator) selectStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return o.stages, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := o.byName[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, n)
		}
		want[n] = true
	}
	var out []Stage
	for _, s := range o.stages {
		if want[s.Name()] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (o *Orchestrator) acquire(run bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	o.busy = true
	if run {
		o.status = agent.StatusRunning
	}
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	if o.status == agent.StatusRunning {
		o.status = agent.StatusIdle
	}
	o.mu.Unlock()
}
