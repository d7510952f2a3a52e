// Package ai talks to chat-completion backends used to answer questions
// about an analysis in free form.
package ai

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Runtime is implemented by every backend.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Text returns the first choice's content, or "".
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Config carries the knobs shared by all runtimes. Zero values select
// provider defaults.
type Config struct {
	HTTPTimeout       time.Duration
	RetryMax          int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RequestsPerMinute int
	// OpenRouter
	APIKey  string
	BaseURL string
	// Ollama
	Host string

	Logger *zap.Logger
}

func (c Config) withDefaults(timeout time.Duration, retries int, base, maxDelay time.Duration) Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = timeout
	}
	if c.RetryMax <= 0 {
		c.RetryMax = retries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = base
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = maxDelay
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// limiter allows RequestsPerMinute calls per minute with a burst of one.
// Zero or negative means unlimited.
func (c Config) limiter() *rate.Limiter {
	if c.RequestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.RequestsPerMinute)), 1)
}

// Factory builds a Runtime from a Config.
type Factory func(Config) Runtime

var registry = map[string]Factory{
	ProviderOpenRouter: func(c Config) Runtime { return NewOpenRouter(c) },
	ProviderOllama:     func(c Config) Runtime { return NewOllama(c) },
}

// Register adds or replaces a provider.
func Register(name string, f Factory) { registry[name] = f }

// New creates the runtime registered under provider.
func New(provider string, cfg Config) (Runtime, error) {
	f, ok := registry[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", provider, Providers())
	}
	return f(cfg), nil
}

// Providers lists registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
