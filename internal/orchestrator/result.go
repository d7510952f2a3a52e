package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/insight"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/recommend"
	"github.com/KaramelBytes/datalens/internal/visualization"
)

// Result is the aggregate output of one run. Results holds the outcome of
// every stage that ran, keyed by stage name.
type Result struct {
	RunID           string                    `json:"run_id"`
	Dataset         string                    `json:"dataset"`
	Status          agent.Status              `json:"status"`
	Error           string                    `json:"error,omitempty"`
	StartedAt       time.Time                 `json:"started_at"`
	DurationSeconds float64                   `json:"duration"`
	AgentsRun       []string                  `json:"agents_run"`
	Results         map[string]*agent.Outcome `json:"results"`
	Activities      []agent.Activity          `json:"activities"`
	Summary         *Summary                  `json:"summary,omitempty"`
}

// Summary condenses the stage results. Pointer fields are nil when the
// stage that produces them did not run.
type Summary struct {
	TotalAgents          int      `json:"total_agents"`
	SuccessfulAgents     int      `json:"successful_agents"`
	FailedAgents         int      `json:"failed_agents"`
	TotalActivities      int      `json:"total_activities"`
	DataQualityScore     *float64 `json:"data_quality_score,omitempty"`
	QualityIssues        *int     `json:"quality_issues,omitempty"`
	InsightsFound        *int     `json:"insights_found,omitempty"`
	CorrelationsFound    *int     `json:"correlations_found,omitempty"`
	TrendsFound          *int     `json:"trends_found,omitempty"`
	ChartsGenerated      *int     `json:"charts_generated,omitempty"`
	RecommendationsCount *int     `json:"recommendations_count,omitempty"`
}

// Profile returns the profiler block, or nil if the stage did not succeed.
func (r *Result) Profile() *profiler.Result {
	v, _ := stageResult[*profiler.Result](r, profiler.Name)
	return v
}

// Insights returns the insight block, or nil.
func (r *Result) Insights() *insight.Result {
	v, _ := stageResult[*insight.Result](r, insight.Name)
	return v
}

// Visualization returns the chart block, or nil.
func (r *Result) Visualization() *visualization.Result {
	v, _ := stageResult[*visualization.Result](r, visualization.Name)
	return v
}

// Recommendations returns the recommendation block, or nil.
func (r *Result) Recommendations() *recommend.Result {
	v, _ := stageResult[*recommend.Result](r, recommend.Name)
	return v
}

// Failed lists the stages whose outcome is not completed.
func (r *Result) Failed() []string {
	var out []string
	for _, name := range r.AgentsRun {
		if o := r.Results[name]; o != nil && !o.OK() {
			out = append(out, name)
		}
	}
	return out
}

func stageResult[T any](r *Result, name string) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	o := r.Results[name]
	if !o.OK() {
		return zero, false
	}
	v, ok := o.Results.(T)
	return v, ok
}

// decoders maps a stage name to a constructor for its typed result.
var decoders = map[string]func() any{
	profiler.Name:      func() any { return new(profiler.Result) },
	insight.Name:       func() any { return new(insight.Result) },
	visualization.Name: func() any { return new(visualization.Result) },
	recommend.Name:     func() any { return new(recommend.Result) },
}

// UnmarshalJSON restores typed stage results so a stored run reads the same
// as a fresh one.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	type rawOutcome struct {
		agent.Outcome
		Results json.RawMessage `json:"results,omitempty"`
	}
	aux := struct {
		*plain
		Results map[string]rawOutcome `json:"results"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Results = make(map[string]*agent.Outcome, len(aux.Results))
	for name, ro := range aux.Results {
		o := ro.Outcome
		if len(ro.Results) > 0 && string(ro.Results) != "null" {
			if mk, ok := decoders[name]; ok {
				v := mk()
				if err := json.Unmarshal(ro.Results, v); err != nil {
					return fmt.Errorf("decode %s results: %w", name, err)
				}
				o.Results = v
			} else {
				var v any
				if err := json.Unmarshal(ro.Results, &v); err != nil {
					return fmt.Errorf("decode %s results: %w", name, err)
				}
				o.Results = v
			}
		}
		r.Results[name] = &o
	}
	return nil
}

func summarize(r *Result) *Summary {
	s := &Summary{
		TotalAgents:     len(r.Results),
		TotalActivities: len(r.Activities),
	}
	for _, o := range r.Results {
		switch o.Status {
		case agent.StatusCompleted:
			s.SuccessfulAgents++
		case agent.StatusFailed:
			s.FailedAgents++
		}
	}
	if _, ran := r.Results[profiler.Name]; ran {
		var score float64
		var issues int
		if p := r.Profile(); p != nil {
			score, issues = p.QualityScore, len(p.QualityIssues)
		}
		s.DataQualityScore, s.QualityIssues = &score, &issues
	}
	if _, ran := r.Results[insight.Name]; ran {
		var ins, corr, trends int
		if i := r.Insights(); i != nil {
			ins, corr, trends = len(i.Insights), len(i.Correlations), len(i.Trends)
		}
		s.InsightsFound, s.CorrelationsFound, s.TrendsFound = &ins, &corr, &trends
	}
	if _, ran := r.Results[visualization.Name]; ran {
		var charts int
		if v := r.Visualization(); v != nil {
			charts = len(v.Charts)
		}
		s.ChartsGenerated = &charts
	}
	if _, ran := r.Results[recommend.Name]; ran {
		var recs int
		if rec := r.Recommendations(); rec != nil {
			recs = len(rec.Recommendations)
		}
		s.RecommendationsCount = &recs
	}
	return s
}
