package recommend

// Priority levels, highest first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Priorities lists every level in rank order.
var Priorities = []string{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Categories.
const (
	CategoryDataQuality        = "data_quality"
	CategoryAnalysis           = "analysis"
	CategoryFeatureEngineering = "feature_engineering"
	CategoryNextSteps          = "next_steps"
)

// Result is the recommendation block of an analysis.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
}

type Summary struct {
	Total      int            `json:"total"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
}

// Recommendation is one actionable next step.
type Recommendation struct {
	ID              string   `json:"id"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Action          string   `json:"action"`
	Impact          string   `json:"estimated_impact"`
	Effort          string   `json:"effort"`
	Steps           []string `json:"steps"`
	RelatedInsights []string `json:"related_insights,omitempty"`
}

// ByPriority returns the recommendations at the given level.
func (r *Result) ByPriority(priority string) []Recommendation {
	var out []Recommendation
	for _, rec := range r.Recommendations {
		if rec.Priority == priority {
			out = append(out, rec)
		}
	}
	return out
}

func rank(priority string) int {
	for i, p := range Priorities {
		if p == priority {
			return i
		}
	}
	return len(Priorities)
}
