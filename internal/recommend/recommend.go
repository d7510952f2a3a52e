// Package recommend turns the profile and insights of a run into a
// prioritized list of next steps.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/insight"
	"github.com/KaramelBytes/datalens/internal/profiler"
	"github.com/KaramelBytes/datalens/internal/stats"
)

const (
	Name        = "recommendation"
	Description = "Actionable recommendations and next steps"
)

const (
	lowQuality       = 0.7
	goodQuality      = 0.8
	missingShare     = 0.1
	strongR          = 0.7
	relatedLimit     = 3
	scaleRatio       = 100.0
	modelingInsights = 3
	smallDatasetRows = 100
)

// Engine is the recommendation stage.
type Engine struct {
	*agent.Agent
}

// New creates a recommendation stage.
func New(log *zap.Logger) *Engine {
	e := &Engine{}
	e.Agent = agent.New(Name, Description, e, log)
	return e
}

// FromContext returns the recommendations written earlier in the run.
func FromContext(actx *agent.Context) *Result {
	if o, ok := agent.Lookup[*agent.Outcome](actx, Name); ok && o.OK() {
		if r, ok := o.Results.(*Result); ok {
			return r
		}
	}
	return nil
}

// Analyze implements agent.Analyzer. Missing profile or insight blocks are
// treated as empty.
func (e *Engine) Analyze(ctx context.Context, ds *dataset.Dataset, actx *agent.Context) (any, error) {
	if ds == nil {
		return nil, fmt.Errorf("%s: no dataset", Name)
	}
	e.Emit("Generating recommendations", agent.StatusRunning, nil)

	prof := profiler.FromContext(actx)
	ins := insight.FromContext(actx)

	var recs []Recommendation
	recs = append(recs, dataQuality(prof)...)
	recs = append(recs, analysis(ins, ds)...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs = append(recs, featureEngineering(ds, prof)...)
	recs = append(recs, nextSteps(ds, prof, ins)...)

	sort.SliceStable(recs, func(i, j int) bool {
		return rank(recs[i].Priority) < rank(recs[j].Priority)
	})

	res := &Result{Recommendations: recs, Summary: summarize(recs)}
	e.Emit("Recommendations generated", agent.StatusCompleted, map[string]any{
		"total":       res.Summary.Total,
		"by_priority": res.Summary.ByPriority,
		"by_category": res.Summary.ByCategory,
	})
	return res, nil
}

func qualityScore(prof *profiler.Result) float64 {
	if prof == nil {
		return 1.0
	}
	return prof.QualityScore
}

func pct(f float64) string { return fmt.Sprintf("%.1f%%", f*100) }

func dataQuality(prof *profiler.Result) []Recommendation {
	if prof == nil {
		return nil
	}
	var out []Recommendation
	if q := prof.QualityScore; q < lowQuality {
		out = append(out, Recommendation{
			ID:          "dq_001",
			Category:    CategoryDataQuality,
			Priority:    PriorityCritical,
			Title:       "Improve overall data quality",
			Description: fmt.Sprintf("Data quality score is %s. Address missing values and outliers before proceeding with analysis.", pct(q)),
			Action:      "Review and clean data",
			Impact:      "high",
			Effort:      "medium",
			Steps: []string{
				"Identify columns with high missing rates",
				"Decide on imputation or removal strategy",
				"Handle outliers appropriately",
				"Re-run analysis after cleaning",
			},
		})
	}
	mv := prof.MissingValues
	if mv.OverallPercentage > missingShare || prof.HasHighMissing() {
		out = append(out, Recommendation{
			ID:          "dq_002",
			Category:    CategoryDataQuality,
			Priority:    PriorityHigh,
			Title:       "Handle missing values",
			Description: fmt.Sprintf("%s of data is missing across %d columns.", pct(mv.OverallPercentage), mv.ColumnsAffected),
			Action:      "Implement missing value strategy",
			Impact:      "high",
			Effort:      "low",
			Steps: []string{
				"For numeric columns: Consider mean/median imputation",
				"For categorical columns: Consider mode or 'Unknown' category",
				"Consider removing columns with >50% missing",
				"Document imputation decisions",
			},
		})
	}
	if n := prof.Outliers.TotalOutlierColumns; n > 0 {
		out = append(out, Recommendation{
			ID:          "dq_003",
			Category:    CategoryDataQuality,
			Priority:    PriorityMedium,
			Title:       "Investigate outliers",
			Description: fmt.Sprintf("Outliers detected in %d columns.", n),
			Action:      "Review outlier values",
			Impact:      "medium",
			Effort:      "low",
			Steps: []string{
				"Verify if outliers are data errors or valid extreme values",
				"Consider winsorization or capping for extreme values",
				"Document outlier handling decisions",
				"Consider robust statistical methods",
			},
		})
	}
	return out
}

func analysis(ins *insight.Result, ds *dataset.Dataset) []Recommendation {
	var out []Recommendation
	if ins != nil {
		if strong := ins.StrongCorrelations(strongR); len(strong) > 0 {
			var related []string
			for _, c := range head(strong, relatedLimit) {
				related = append(related, c.Column1+" vs "+c.Column2)
			}
			out = append(out, Recommendation{
				ID:          "an_001",
				Category:    CategoryAnalysis,
				Priority:    PriorityHigh,
				Title:       "Investigate strong correlations",
				Description: fmt.Sprintf("Found %d strong correlations that warrant deeper investigation.", len(strong)),
				Action:      "Perform causal analysis",
				Impact:      "high",
				Effort:      "medium",
				Steps: []string{
					"Review correlation pairs for causation vs correlation",
					"Consider time-lagged relationships",
					"Look for confounding variables",
					"Build predictive models if appropriate",
				},
				RelatedInsights: related,
			})
		}
		if len(ins.Trends) > 0 {
			var related []string
			for _, t := range head(ins.Trends, relatedLimit) {
				related = append(related, t.Column)
			}
			out = append(out, Recommendation{
				ID:          "an_002",
				Category:    CategoryAnalysis,
				Priority:    PriorityMedium,
				Title:       "Analyze detected trends",
				Description: fmt.Sprintf("Found %d significant trends in your data.", len(ins.Trends)),
				Action:      "Perform trend analysis",
				Impact:      "medium",
				Effort:      "low",
				Steps: []string{
					"Forecast future values using trend lines",
					"Identify trend drivers",
					"Check for seasonality",
					"Consider external factors affecting trends",
				},
				RelatedInsights: related,
			})
		}
	}
	if len(ds.ObjectColumns()) > 0 {
		out = append(out, Recommendation{
			ID:          "an_003",
			Category:    CategoryAnalysis,
			Priority:    PriorityLow,
			Title:       "Perform segmentation analysis",
			Description: "Categorical columns detected. Consider segmenting data for deeper insights.",
			Action:      "Create segments",
			Impact:      "medium",
			Effort:      "medium",
			Steps: []string{
				"Group data by categorical variables",
				"Compare metrics across segments",
				"Identify high-performing segments",
				"Look for segment-specific patterns",
			},
		})
	}
	return out
}

func featureEngineering(ds *dataset.Dataset, prof *profiler.Result) []Recommendation {
	var out []Recommendation
	var dist map[string]int
	if prof != nil {
		dist = prof.DataTypes.Distribution
	}
	if n := dist[stats.TypeCategorical]; n > 0 {
		out = append(out, Recommendation{
			ID:          "fe_001",
			Category:    CategoryFeatureEngineering,
			Priority:    PriorityMedium,
			Title:       "Encode categorical variables",
			Description: fmt.Sprintf("Found %d categorical columns that may need encoding for modeling.", n),
			Action:      "Apply encoding techniques",
			Impact:      "high",
			Effort:      "low",
			Steps: []string{
				"Use one-hot encoding for low cardinality (<10 categories)",
				"Use label encoding for ordinal variables",
				"Consider target encoding for high cardinality",
				"Handle rare categories appropriately",
			},
		})
	}
	if scalesDiverge(ds) {
		out = append(out, Recommendation{
			ID:          "fe_002",
			Category:    CategoryFeatureEngineering,
			Priority:    PriorityMedium,
			Title:       "Normalize numeric features",
			Description: "Numeric columns have significantly different scales.",
			Action:      "Apply feature scaling",
			Impact:      "high",
			Effort:      "low",
			Steps: []string{
				"Use StandardScaler for normally distributed features",
				"Use MinMaxScaler for bounded features",
				"Use RobustScaler if outliers are present",
				"Document scaling decisions",
			},
		})
	}
	if dist[stats.TypeDatetime] > 0 {
		out = append(out, Recommendation{
			ID:          "fe_003",
			Category:    CategoryFeatureEngineering,
			Priority:    PriorityLow,
			Title:       "Extract datetime features",
			Description: "Datetime columns detected. Extract temporal features for better analysis.",
			Action:      "Create time-based features",
			Impact:      "medium",
			Effort:      "low",
			Steps: []string{
				"Extract year, month, day, day of week",
				"Create is_weekend, is_holiday flags",
				"Calculate time differences",
				"Consider cyclical encoding for periodic features",
			},
		})
	}
	return out
}

// scalesDiverge reports whether the widest numeric range is more than 100
// times the narrowest. Constant columns have a zero range and are ignored.
func scalesDiverge(ds *dataset.Dataset) bool {
	cols := ds.NumericColumns()
	if len(cols) < 2 {
		return false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range cols {
		s := stats.Describe(c.Values())
		if s == nil {
			continue
		}
		r := s.Max - s.Min
		if r <= 0 {
			continue
		}
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	if math.IsInf(lo, 1) {
		return false
	}
	return hi/lo > scaleRatio
}

func nextSteps(ds *dataset.Dataset, prof *profiler.Result, ins *insight.Result) []Recommendation {
	var out []Recommendation
	found := 0
	if ins != nil {
		found = len(ins.Insights)
	}
	if qualityScore(prof) > goodQuality && found > modelingInsights {
		out = append(out, Recommendation{
			ID:          "ns_001",
			Category:    CategoryNextSteps,
			Priority:    PriorityHigh,
			Title:       "Ready for predictive modeling",
			Description: "Data quality is good and insights are available. Consider building predictive models.",
			Action:      "Build models",
			Impact:      "high",
			Effort:      "high",
			Steps: []string{
				"Define prediction target",
				"Split data into train/test sets",
				"Try multiple algorithms",
				"Evaluate and compare models",
				"Deploy best performing model",
			},
		})
	}
	rows := ds.Rows()
	if prof != nil {
		rows = prof.Overview.Rows
	}
	if rows < smallDatasetRows {
		out = append(out, Recommendation{
			ID:          "ns_002",
			Category:    CategoryNextSteps,
			Priority:    PriorityMedium,
			Title:       "Collect more data",
			Description: "Dataset is small. Consider collecting more data for robust analysis.",
			Action:      "Expand dataset",
			Impact:      "high",
			Effort:      "high",
			Steps: []string{
				"Identify additional data sources",
				"Ensure data consistency",
				"Validate new data quality",
				"Re-run analysis with expanded dataset",
			},
		})
	}
	out = append(out, Recommendation{
		ID:          "ns_003",
		Category:    CategoryNextSteps,
		Priority:    PriorityLow,
		Title:       "Export and share results",
		Description: "Analysis complete. Export results for stakeholders.",
		Action:      "Create reports",
		Impact:      "medium",
		Effort:      "low",
		Steps: []string{
			"Export charts and visualizations",
			"Create executive summary",
			"Document key findings",
			"Share with stakeholders",
		},
	})
	return out
}

func summarize(recs []Recommendation) Summary {
	s := Summary{
		Total:      len(recs),
		ByPriority: make(map[string]int, len(Priorities)),
		ByCategory: map[string]int{},
	}
	for _, p := range Priorities {
		s.ByPriority[p] = 0
	}
	for _, r := range recs {
		s.ByPriority[r.Priority]++
		s.ByCategory[r.Category]++
	}
	return s
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
