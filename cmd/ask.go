package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/KaramelBytes/datalens/internal/orchestrator"
	"github.com/KaramelBytes/datalens/internal/query"
	"github.com/KaramelBytes/datalens/internal/utils"
)

var (
	askResultPath string
	askLLM        bool
	askProvider   string
	askModel      string
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <job-id> <question>...",
	Short: "Ask questions about a stored analysis",
	Example: `  datalens ask 3f6c... "how many rows?"
  datalens ask 3f6c... "missing values in price" "what should I improve"
  datalens ask --result sales.analysis.json "what correlations exist?"
  datalens ask 3f6c... "summarize the data quality" --llm --model openai/gpt-4o-mini`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, questions, err := loadAskTarget(cmd, args)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return fmt.Errorf("no question given")
		}
		engine, err := newQueryEngine(cmd.Flags().Changed("llm"))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, q := range questions {
			ans, err := engine.Ask(cmd.Context(), q, res)
			if err != nil {
				return fmt.Errorf("ask %q: %w", q, err)
			}
			if askJSON {
				b, err := utils.PrettyJSON(ans)
				if err != nil {
					return err
				}
				if _, err := out.Write(b); err != nil {
					return err
				}
				continue
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			if len(questions) > 1 {
				fmt.Fprintf(out, "Q: %s\n", q)
			}
			fmt.Fprintln(out, ans.Answer)
			fmt.Fprintf(out, "(%s, intent %s, confidence %.2f)\n", ans.Source, ans.Intent, ans.Confidence)
		}
		st := engine.Cache().Stats()
		log.Debug("answer cache", zap.Int("entries", st.Entries), zap.Int("hits", st.Hits), zap.Int("misses", st.Misses))
		return nil
	},
}

// loadAskTarget reads the result from --result or from the job store and
// returns the remaining arguments as questions.
func loadAskTarget(cmd *cobra.Command, args []string) (*orchestrator.Result, []string, error) {
	if askResultPath != "" {
		b, err := os.ReadFile(askResultPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read result: %w", err)
		}
		var res orchestrator.Result
		if err := json.Unmarshal(b, &res); err != nil {
			return nil, nil, fmt.Errorf("parse result %s: %w", askResultPath, err)
		}
		return &res, args, nil
	}
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()
	job, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("job %s: %w", args[0], err)
	}
	return job.Result, args[1:], nil
}

// newQueryEngine builds the engine from config. The LLM is used when --llm
// is set or llm_enabled is on; flagSet lets --llm=false override the config.
func newQueryEngine(flagSet bool) (*query.Engine, error) {
	c := cfg
	if c == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	opts := []query.Option{query.WithCache(query.NewCache(c.CacheMaxEntries, c.CacheTTL()))}
	useLLM := c.LLMEnabled
	if flagSet {
		useLLM = askLLM
	}
	if !useLLM {
		return query.New(log, opts...), nil
	}

	provider := askProvider
	if provider == "" {
		provider = c.DefaultProvider
	}
	model := askModel
	if model == "" {
		model = c.DefaultModel
	}
	if mi, ok := ai.LookupModel(model); ok && mi.Provider != provider {
		// configured model belongs to another provider
		model = ""
	}
	if model == "" {
		model = ai.DefaultModels[provider]
	}
	if provider == ai.ProviderOpenRouter && c.APIKey == "" && os.Getenv("OPENROUTER_API_KEY") == "" {
		return nil, fmt.Errorf("no API key: set api_key via 'datalens config set api_key <key>' or OPENROUTER_API_KEY")
	}
	apiKey := c.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	rt, err := ai.New(provider, ai.Config{
		HTTPTimeout:       c.HTTPTimeout(),
		RetryMax:          c.RetryMaxAttempts,
		BaseDelay:         c.RetryBaseDelay(),
		MaxDelay:          c.RetryMaxDelay(),
		RequestsPerMinute: c.LLMRequestsPerMinute,
		APIKey:            apiKey,
		Host:              c.OllamaHost,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}
	budget := query.DefaultPromptTokens
	if mi, ok := ai.LookupModel(model); ok && mi.ContextTokens > 0 {
		budget = min(budget, mi.ContextTokens-c.MaxTokens)
	}
	log.Debug("llm answering enabled", zap.String("provider", provider), zap.String("model", model), zap.Int("prompt_budget", budget))
	return query.New(log, append(opts,
		query.WithLLM(rt, model),
		query.WithSampling(c.Temperature, c.MaxTokens),
		query.WithPromptBudget(budget),
	)...), nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askResultPath, "result", "", "answer from an exported JSON result instead of a stored job; all arguments are questions")
	askCmd.Flags().BoolVar(&askLLM, "llm", false, "delegate answers to the configured language model (falls back to built-in answers on failure)")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "LLM provider: openrouter|ollama (default from config)")
	askCmd.Flags().StringVar(&askModel, "model", "", "LLM model (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print answers as JSON")
}
