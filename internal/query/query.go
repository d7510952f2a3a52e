// Package query answers free-text questions about a finished analysis.
//
// Questions are normalized, classified into one of a fixed set of intents
// and answered from the stored result by an intent-specific formatter. When
// a language model runtime is configured the engine asks it first and falls
// back to the formatters on any error.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/KaramelBytes/datalens/internal/orchestrator"
	"github.com/KaramelBytes/datalens/internal/utils"
)

// Answer sources.
const (
	SourceLLM       = "llm"
	SourceRuleBased = "rule_based"
)

const (
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 500
	DefaultPromptTokens = 3000

	llmConfidence     = 0.85
	matchedConfidence = 0.85
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoResult      = errors.New("no analysis result to answer from")
)

// Answer is the engine's reply to one question.
type Answer struct {
	Answer           string    `json:"answer"`
	Confidence       float64   `json:"confidence"`
	Source           string    `json:"source"`
	Intent           string    `json:"intent"`
	IntentConfidence float64   `json:"intent_confidence"`
	Entities         *Entities `json:"entities,omitempty"`
	Model            string    `json:"model,omitempty"`
	Question         string    `json:"question"`
	Timestamp        time.Time `json:"timestamp"`
	FromCache        bool      `json:"from_cache"`
}

// Engine answers questions. It is safe for concurrent use.
type Engine struct {
	log          *zap.Logger
	cache        *Cache
	runtime      ai.Runtime
	model        string
	temperature  float64
	maxTokens    int
	promptTokens int
	now          func() time.Time
}

type Option func(*Engine)

// WithLLM delegates answering to rt using model.
func WithLLM(rt ai.Runtime, model string) Option {
	return func(e *Engine) { e.runtime, e.model = rt, model }
}

// WithSampling overrides temperature and completion length for LLM answers.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(e *Engine) {
		e.temperature = temperature
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// WithPromptBudget caps the estimated size of the context prompt.
func WithPromptBudget(tokens int) Option {
	return func(e *Engine) {
		if tokens > 0 {
			e.promptTokens = tokens
		}
	}
}

// WithCache shares a response cache between engines.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// New creates an engine with a private default cache unless WithCache is given.
func New(log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		log:          log.Named("query"),
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		promptTokens: DefaultPromptTokens,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewCache(DefaultCacheEntries, DefaultCacheTTL)
	}
	return e
}

// Cache exposes the engine's response cache.
func (e *Engine) Cache() *Cache { return e.cache }

// Ask answers question against res.
func (e *Engine) Ask(ctx context.Context, question string, res *orchestrator.Result) (*Answer, error) {
	if res == nil {
		return nil, ErrNoResult
	}
	q := Normalize(question)
	if q == "" {
		return nil, ErrEmptyQuestion
	}
	key := q + "|" + fingerprint(res)
	if cached, ok := e.cache.Get(key); ok {
		e.log.Debug("cache hit", zap.String("intent", cached.Intent))
		cached.FromCache = true
		return &cached, nil
	}

	intent, intentConf := Classify(q)
	v := newView(res)
	ents := ExtractEntities(q, v.columns)
	ans := &Answer{
		Intent:           intent,
		IntentConfidence: intentConf,
		Entities:         &ents,
		Question:         question,
		Timestamp:        e.now().UTC(),
	}

	if e.runtime != nil {
		text, err := e.askLLM(ctx, question, v)
		if err == nil {
			ans.Answer, ans.Source, ans.Confidence, ans.Model = text, SourceLLM, llmConfidence, e.model
			e.cache.Set(key, *ans)
			return ans, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("llm answer failed, using rule-based answer", zap.Error(err))
	}

	ans.Answer, ans.Confidence = e.ruleBased(intent, v, ents)
	ans.Source = SourceRuleBased
	e.cache.Set(key, *ans)
	return ans, nil
}

func (e *Engine) ruleBased(intent string, v view, ents Entities) (string, float64) {
	if h, ok := handlers[intent]; ok {
		return h(v, ents), matchedConfidence
	}
	return answerGeneral(v, ents), generalConfidence
}

func (e *Engine) askLLM(ctx context.Context, question string, v view) (string, error) {
	prompt := utils.TruncateToTokenLimit(systemPrompt(v), e.promptTokens)
	resp, err := e.runtime.Generate(ctx, ai.GenerateRequest{
		Model: e.model,
		Messages: []ai.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: question},
		},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty completion from %s", e.model)
	}
	e.log.Debug("llm answer",
		zap.String("model", e.model),
		zap.String("request_id", resp.RequestID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return text, nil
}

func systemPrompt(v view) string {
	var b strings.Builder
	b.WriteString("You are an expert data analyst assistant. You help users understand their data by answering questions based on analysis results.\n\n")
	b.WriteString("Dataset Information:\n")
	if v.prof != nil {
		fmt.Fprintf(&b, "- Rows: %d\n- Columns: %d\n- Column Names: %s\n\n", v.rows, len(v.columns), strings.Join(head(v.columns, 10), ", "))
		missing, _ := json.Marshal(v.prof.MissingValues)
		types, _ := json.Marshal(v.prof.DataTypes.Distribution)
		fmt.Fprintf(&b, "Data Quality:\n- Quality Score: %.2f\n- Missing Values: %s\n- Data Types: %s\n\n", v.prof.QualityScore, missing, types)
	} else {
		b.WriteString("- Rows: unknown\n- Columns: unknown\n\n")
	}
	if v.ins != nil && len(v.ins.Insights) > 0 {
		b.WriteString("Key Insights Found:\n")
		for i, in := range head(v.ins.Insights, 3) {
			fmt.Fprintf(&b, "%d. %s\n", i+1, in.Description)
		}
		b.WriteString("\n")
	}
	if v.rec != nil && len(v.rec.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for i, r := range head(v.rec.Recommendations, 3) {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Title, r.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString(`Instructions:
- Answer questions clearly and concisely
- Use the provided data and analysis results
- If you don't have specific information, say so
- Provide actionable insights when possible
`)
	return b.String()
}

// fingerprint identifies the result a question was asked against: the run
// ID when present, otherwise a digest of the encoded result.
func fingerprint(res *orchestrator.Result) string {
	if res.RunID != "" {
		return res.RunID
	}
	raw, err := json.Marshal(res)
	if err != nil {
		raw = []byte(res.Dataset)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
