package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const ollamaHost = "http://127.0.0.1:11434"

// Ollama is a client for a local Ollama runtime's /api/chat endpoint.
type Ollama struct {
	host string
	t    *transport
}

// NewOllama creates a client for cfg.Host, defaulting to the local daemon.
func NewOllama(cfg Config) *Ollama {
	cfg = cfg.withDefaults(60*time.Second, 2, 200*time.Millisecond, time.Second)
	host := cfg.Host
	if host == "" {
		host = ollamaHost
	}
	cfg.Logger = cfg.Logger.Named("ollama")
	return &Ollama{host: host, t: newTransport(cfg)}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Generate implements Runtime.
func (c *Ollama) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	oreq := ollamaRequest{Model: req.Model, Messages: req.Messages, Options: map[string]any{}}
	if req.Temperature > 0 {
		oreq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	var oresp ollamaResponse
	if _, err := c.t.postJSON(ctx, c.host+"/api/chat", c.host, http.Header{}, oreq, &oresp); err != nil {
		return nil, err
	}
	return &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: oresp.Message.Content}}},
		Usage: Usage{
			PromptTokens:     oresp.PromptEvalCount,
			CompletionTokens: oresp.EvalCount,
			TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
		},
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}, nil
}
