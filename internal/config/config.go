package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "DATALENS"
	dirName   = ".datalens"
)

// Global configuration structure.
type Global struct {
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format"`
	DBPath       string `mapstructure:"db_path" yaml:"db_path"`
	DefaultOwner string `mapstructure:"default_owner" yaml:"default_owner"`

	// Language model delegation for questions
	LLMEnabled      bool    `mapstructure:"llm_enabled" yaml:"llm_enabled"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	OllamaHost      string  `mapstructure:"ollama_host" yaml:"ollama_host"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`

	// HTTP/Retry configuration
	HTTPTimeoutSec       int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts     int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs     int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs      int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	LLMRequestsPerMinute int `mapstructure:"llm_requests_per_minute" yaml:"llm_requests_per_minute"`

	// Answer cache
	CacheTTLSec     int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	CacheMaxEntries int `mapstructure:"cache_max_entries" yaml:"cache_max_entries"`

	EventBuffer      int `mapstructure:"event_buffer" yaml:"event_buffer"`
	BatchConcurrency int `mapstructure:"batch_concurrency" yaml:"batch_concurrency"`
}

// Dir returns ~/.datalens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Path returns cfgFile, or ~/.datalens/config.yaml when it is empty.
func Path(cfgFile string) (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("db_path", "")
	v.SetDefault("default_owner", "local")
	v.SetDefault("llm_enabled", false)
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 500)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("llm_requests_per_minute", 0)
	v.SetDefault("cache_ttl_sec", 1800)
	v.SetDefault("cache_max_entries", 1000)
	v.SetDefault("event_buffer", 64)
	v.SetDefault("batch_concurrency", 4)
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Command flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var missing viper.ConfigFileNotFoundError
		if !errors.As(err, &missing) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

// Defaults returns the built-in configuration, ignoring any file and the
// environment.
func Defaults() (*Global, error) {
	v := viper.New()
	setDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*Global, error) {
	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.DBPath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.DBPath = filepath.Join(dir, "datalens.db")
	}
	return &c, nil
}

// Save writes the configuration as YAML, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path, err := Path(cfgFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Keys lists every settable key.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *Global, val string) error{
	"log_level": func(c *Global, v string) error {
		switch v {
		case "debug", "info", "warn", "error":
			c.LogLevel = v
			return nil
		}
		return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", v)
	},
	"log_format": func(c *Global, v string) error {
		switch v {
		case "console", "json":
			c.LogFormat = v
			return nil
		}
		return fmt.Errorf("invalid log_format: %s (use console or json)", v)
	},
	"db_path":       func(c *Global, v string) error { c.DBPath = v; return nil },
	"default_owner": func(c *Global, v string) error { c.DefaultOwner = v; return nil },
	"llm_enabled": func(c *Global, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid bool for llm_enabled: %v", v)
		}
		c.LLMEnabled = b
		return nil
	},
	"default_provider": func(c *Global, v string) error {
		switch strings.ToLower(v) {
		case "openrouter":
			c.DefaultProvider = "openrouter"
		case "ollama", "local":
			c.DefaultProvider = "ollama"
		default:
			return fmt.Errorf("invalid default_provider: %s (use openrouter or ollama)", v)
		}
		return nil
	},
	"default_model": func(c *Global, v string) error { c.DefaultModel = v; return nil },
	"api_key":       func(c *Global, v string) error { c.APIKey = v; return nil },
	"ollama_host":   func(c *Global, v string) error { c.OllamaHost = v; return nil },
	"temperature": func(c *Global, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %v", v)
		}
		c.Temperature = f
		return nil
	},
	"max_tokens":              intSetter("max_tokens", func(c *Global) *int { return &c.MaxTokens }),
	"http_timeout_sec":        intSetter("http_timeout_sec", func(c *Global) *int { return &c.HTTPTimeoutSec }),
	"retry_max_attempts":      intSetter("retry_max_attempts", func(c *Global) *int { return &c.RetryMaxAttempts }),
	"retry_base_delay_ms":     intSetter("retry_base_delay_ms", func(c *Global) *int { return &c.RetryBaseDelayMs }),
	"retry_max_delay_ms":      intSetter("retry_max_delay_ms", func(c *Global) *int { return &c.RetryMaxDelayMs }),
	"llm_requests_per_minute": intSetter("llm_requests_per_minute", func(c *Global) *int { return &c.LLMRequestsPerMinute }),
	"cache_ttl_sec":           intSetter("cache_ttl_sec", func(c *Global) *int { return &c.CacheTTLSec }),
	"cache_max_entries":       intSetter("cache_max_entries", func(c *Global) *int { return &c.CacheMaxEntries }),
	"event_buffer":            intSetter("event_buffer", func(c *Global) *int { return &c.EventBuffer }),
	"batch_concurrency":       intSetter("batch_concurrency", func(c *Global) *int { return &c.BatchConcurrency }),
}

func intSetter(key string, field func(*Global) *int) func(*Global, string) error {
	return func(c *Global, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, v)
		}
		*field(c) = i
		return nil
	}
}

// Set parses val and assigns it to key.
func (c *Global) Set(key, val string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown key: %s", key)
	}
	return set(c, val)
}

// HTTPTimeout and the helpers below convert the integer settings.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func (c *Global) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}
