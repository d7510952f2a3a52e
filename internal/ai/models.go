package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ModelInfo describes a chat model the query engine can delegate to.
type ModelInfo struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ContextTokens int    `json:"context_tokens"`
}

// DefaultModels is the model used per provider when none is configured.
var DefaultModels = map[string]string{
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderOllama:     "llama3.1:8b-instruct",
}

var catalog = map[string]ModelInfo{
	"openai/gpt-4o-mini":               {Provider: ProviderOpenRouter, ContextTokens: 128000},
	"openai/gpt-4o":                    {Provider: ProviderOpenRouter, ContextTokens: 128000},
	"openai/gpt-4.1-mini":              {Provider: ProviderOpenRouter, ContextTokens: 128000},
	"anthropic/claude-3.5-sonnet":      {Provider: ProviderOpenRouter, ContextTokens: 200000},
	"anthropic/claude-3-haiku":         {Provider: ProviderOpenRouter, ContextTokens: 200000},
	"google/gemini-1.5-flash":          {Provider: ProviderOpenRouter, ContextTokens: 1000000},
	"meta-llama/llama-3.1-8b-instruct": {Provider: ProviderOpenRouter, ContextTokens: 131072},
	"deepseek/deepseek-r1:free":        {Provider: ProviderOpenRouter, ContextTokens: 128000},
	"llama3:latest":                    {Provider: ProviderOllama, ContextTokens: 8192},
	"llama3.1:8b-instruct":             {Provider: ProviderOllama, ContextTokens: 8192},
	"mistral:7b-instruct":              {Provider: ProviderOllama, ContextTokens: 8192},
	"phi3:mini-4k-instruct":            {Provider: ProviderOllama, ContextTokens: 4096},
}

// LookupModel returns the catalog entry for name.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := catalog[name]
	if ok {
		mi.Name = name
	}
	return mi, ok
}

// Models lists the catalog sorted by provider then name. An empty provider
// lists everything.
func Models(provider string) []ModelInfo {
	var out []ModelInfo
	for name, mi := range catalog {
		if provider != "" && mi.Provider != provider {
			continue
		}
		mi.Name = name
		out = append(out, mi)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// MergeCatalogFile adds or overrides entries from a JSON object keyed by
// model name.
func MergeCatalogFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]ModelInfo
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for name, mi := range m {
		catalog[name] = mi
	}
	return nil
}
