package ai

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// OpenRouter is a client for the OpenRouter chat completions API.
type OpenRouter struct {
	apiKey  string
	baseURL string
	t       *transport
}

// NewOpenRouter creates a client. cfg.BaseURL overrides the public endpoint.
func NewOpenRouter(cfg Config) *OpenRouter {
	cfg = cfg.withDefaults(60*time.Second, 3, 500*time.Millisecond, 4*time.Second)
	base := cfg.BaseURL
	if base == "" {
		base = openRouterURL
	}
	cfg.Logger = cfg.Logger.Named("openrouter")
	return &OpenRouter{apiKey: cfg.APIKey, baseURL: base, t: newTransport(cfg)}
}

// Generate implements Runtime.
func (c *OpenRouter) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY is missing")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("HTTP-Referer", "https://github.com/KaramelBytes/datalens")
	h.Set("X-Title", "datalens")

	var out GenerateResponse
	id, err := c.t.postJSON(ctx, c.baseURL+"/chat/completions", c.baseURL, h, req, &out)
	if err != nil {
		return nil, err
	}
	out.RequestID = id
	return &out, nil
}
