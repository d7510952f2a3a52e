package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 0.7, c.Temperature)
	assert.Equal(t, 500, c.MaxTokens)
	assert.Equal(t, 30*time.Minute, c.CacheTTL())
	assert.Equal(t, 1000, c.CacheMaxEntries)
	assert.Equal(t, 64, c.EventBuffer)
	assert.Equal(t, filepath.Join(home, ".datalens", "datalens.db"), c.DBPath)
	assert.Equal(t, time.Minute, c.HTTPTimeout())
}

func TestDefaultsIgnoreEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DATALENS_API_KEY", "sk-secret")
	t.Setenv("DATALENS_MAX_TOKENS", "1200")
	c, err := Defaults()
	require.NoError(t, err)
	assert.Empty(t, c.APIKey)
	assert.Equal(t, 500, c.MaxTokens)
	assert.Equal(t, "openrouter", c.DefaultProvider)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_tokens: 900\ndefault_owner: ana\n"), 0o600))
	t.Setenv("DATALENS_MAX_TOKENS", "1200")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, c.MaxTokens)
	assert.Equal(t, "ana", c.DefaultOwner)
}

func TestSaveRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("default_provider", "Local"))
	require.NoError(t, c.Set("llm_enabled", "true"))
	require.NoError(t, c.Set("cache_ttl_sec", "60"))
	require.NoError(t, Save(c, ""))

	_, err = os.Stat(filepath.Join(home, ".datalens", "config.yaml"))
	require.NoError(t, err)

	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", again.DefaultProvider)
	assert.True(t, again.LLMEnabled)
	assert.Equal(t, time.Minute, again.CacheTTL())
}

func TestSetRejectsBadValues(t *testing.T) {
	c := &Global{}
	for key, val := range map[string]string{
		"temperature":      "hot",
		"max_tokens":       "-1",
		"default_provider": "gemini",
		"log_format":       "xml",
		"llm_enabled":      "maybe",
		"nope":             "1",
	} {
		assert.Error(t, c.Set(key, val), key)
	}
	assert.Contains(t, Keys(), "batch_concurrency")
}
