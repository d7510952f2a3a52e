// Package agent defines the execution contract shared by every analysis
// stage: status tracking, activity emission, timing and error capture.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// Status is the lifecycle state of a stage or a run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrRunning is returned when Execute is called on an agent that is already
// executing.
var ErrRunning = errors.New("agent is already running")

// Activity is a timestamped progress event emitted by a stage.
type Activity struct {
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	Status    Status         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Outcome is the uniform value returned by Execute.
type Outcome struct {
	Agent           string    `json:"agent"`
	Status          Status    `json:"status"`
	Results         any       `json:"results,omitempty"`
	Error           string    `json:"error,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// OK reports whether the outcome completed successfully.
func (o *Outcome) OK() bool { return o != nil && o.Status == StatusCompleted }

// Analyzer performs a stage's computation. It returns an error on
// unrecoverable input; Execute turns errors and panics into a failed Outcome.
type Analyzer interface {
	Analyze(ctx context.Context, ds *dataset.Dataset, actx *Context) (any, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, ds *dataset.Dataset, actx *Context) (any, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, ds *dataset.Dataset, actx *Context) (any, error) {
	return f(ctx, ds, actx)
}

// Agent wraps an Analyzer with lifecycle bookkeeping. An Agent carries
// run-scoped state and must not execute two runs at once; call Reset between
// independent runs.
type Agent struct {
	name        string
	description string
	analyzer    Analyzer
	log         *zap.Logger

	mu         sync.Mutex
	status     Status
	results    any
	err        string
	start      time.Time
	end        time.Time
	activities []Activity
	callback   func(Activity)

	now func() time.Time
}

// New creates an idle agent. A nil logger is replaced by a no-op logger.
func New(name, description string, a Analyzer, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		name:        name,
		description: description,
		analyzer:    a,
		log:         log.Named(name),
		status:      StatusIdle,
		now:         time.Now,
	}
}

func (a *Agent) Name() string        { return a.name }
func (a *Agent) Description() string { return a.description }

// Logger returns the agent's named logger.
func (a *Agent) Logger() *zap.Logger { return a.log }

// Status returns the current lifecycle state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Results returns the last successful results, or nil.
func (a *Agent) Results() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results
}

// Err returns the last captured error message.
func (a *Agent) Err() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// SetCallback registers fn to receive every activity as it is emitted.
// Passing nil removes the callback.
func (a *Agent) SetCallback(fn func(Activity)) {
	a.mu.Lock()
	a.callback = fn
	a.mu.Unlock()
}

// Activities returns a copy of the activity log.
func (a *Agent) Activities() []Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Activity, len(a.activities))
	copy(out, a.activities)
	return out
}

// Duration is the wall-clock time between start and end, or start and now
// while running. ok is false if the agent never started.
func (a *Agent) Duration() (d time.Duration, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.start.IsZero() {
		return 0, false
	}
	if a.end.IsZero() {
		return a.now().Sub(a.start), true
	}
	return a.end.Sub(a.start), true
}

// Reset returns the agent to idle and clears results, error, timestamps and
// the activity log. The callback is kept.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusIdle
	a.results = nil
	a.err = ""
	a.start = time.Time{}
	a.end = time.Time{}
	a.activities = nil
}

// Emit appends an activity to the log and forwards it to the callback. A
// panicking callback is logged and swallowed.
func (a *Agent) Emit(action string, status Status, details map[string]any) {
	act := Activity{
		Agent:     a.name,
		Action:    action,
		Status:    status,
		Details:   details,
		Timestamp: a.now(),
	}
	a.mu.Lock()
	a.activities = append(a.activities, act)
	cb := a.callback
	a.mu.Unlock()
	if cb != nil {
		a.notify(cb, act)
	}
}

func (a *Agent) notify(cb func(Activity), act Activity) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Warn("activity callback panicked",
				zap.String("action", act.Action),
				zap.Any("panic", r))
		}
	}()
	cb(act)
}

// Execute runs the analyzer under the lifecycle contract. It never returns an
// error or panics; failures are reported through the Outcome.
func (a *Agent) Execute(ctx context.Context, ds *dataset.Dataset, actx *Context) *Outcome {
	a.mu.Lock()
	if a.status == StatusRunning {
		a.mu.Unlock()
		return &Outcome{Agent: a.name, Status: StatusFailed, Error: ErrRunning.Error(), Timestamp: a.now()}
	}
	a.status = StatusRunning
	a.start = a.now()
	a.end = time.Time{}
	a.results = nil
	a.err = ""
	a.mu.Unlock()

	a.log.Debug("stage started")
	a.Emit("Starting "+a.description, StatusRunning, nil)

	results, err := a.safeAnalyze(ctx, ds, actx)

	a.mu.Lock()
	a.end = a.now()
	elapsed := a.end.Sub(a.start).Seconds()
	switch {
	case err == nil:
		a.status = StatusCompleted
		a.results = results
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		a.status = StatusCancelled
		a.err = err.Error()
	default:
		a.status = StatusFailed
		a.err = err.Error()
	}
	out := &Outcome{
		Agent:           a.name,
		Status:          a.status,
		Results:         a.results,
		Error:           a.err,
		DurationSeconds: &elapsed,
		Timestamp:       a.end,
	}
	a.mu.Unlock()

	switch out.Status {
	case StatusCompleted:
		a.log.Debug("stage completed", zap.Float64("duration_seconds", elapsed))
		a.Emit("Completed "+a.description, StatusCompleted, map[string]any{"duration_seconds": elapsed})
	case StatusCancelled:
		a.log.Info("stage cancelled", zap.Error(err))
		a.Emit("Cancelled: "+out.Error, StatusCancelled, map[string]any{"error": out.Error})
	default:
		a.log.Warn("stage failed", zap.Error(err))
		a.Emit("Failed: "+out.Error, StatusFailed, map[string]any{"error": out.Error})
	}
	return out
}

func (a *Agent) safeAnalyze(ctx context.Context, ds *dataset.Dataset, actx *Context) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", a.name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.analyzer == nil {
		return nil, fmt.Errorf("%s: no analyzer configured", a.name)
	}
	return a.analyzer.Analyze(ctx, ds, actx)
}
