// Package config loads process configuration from environment variables
// (with an optional config file via viper; no command-line flags are
// bound), the way cmd/cli/cmd in
// the detalhar pipeline's teacher lineage wires viper up, generalized from a
// single "redis" flag to the full settings surface a worker/intake/reaper
// binary needs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is every setting a detalhar binary reads at startup. Fields mirror
// the Python original's pydantic Settings one-for-one plus the ambient
// additions (HTTP address, log level, extractor/concurrency knobs, reaper
// schedule) introduced for the Go rewrite.
type Config struct {
	DatabaseURL string
	RedisURL    string
	APIKey      string

	CacheTTLSeconds int
	StreamHi        string
	StreamLo        string
	ConsumerGroup   string
	ConsumerName    string
	LockMinutes     int
	UseLLM          bool

	ReapCron                string
	HTTPAddr                string
	MetricsAddr             string
	LogLevel                string
	ExtractorTimeoutSeconds int
	MaxExtractConcurrency   int
	MaxAttempts             int

	ArtifactRoot      string
	OpenAIAPIKey      string
	BrowserbaseAPIKey string
	BrowserbaseProjID string
	SEIBaseURL        string
	APIKeyHeader      string
	AllowedOrigins    []string
}

// Load reads configuration from environment variables (unprefixed, matching
// the names documented in §6 — DATABASE_URL, REDIS_URL, API_KEY, etc.), an
// optional config file, and built-in defaults, in viper's usual precedence
// order (explicit calls > flags > env > config file > default).
func Load() (*Config, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.SetConfigName("detalhar")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/detalhar")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetDefault("cache_ttl_seconds", 43200)
	v.SetDefault("stream_hi", "detalhar:stream:hi")
	v.SetDefault("stream_lo", "detalhar:stream:lo")
	v.SetDefault("consumer_group", "detalhar-workers")
	v.SetDefault("consumer_name", "worker-1")
	v.SetDefault("lock_minutes", 25)
	v.SetDefault("use_llm", true)
	v.SetDefault("reap_cron", "* * * * *")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("extractor_timeout_seconds", 120)
	v.SetDefault("max_extract_concurrency", 4)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("artifact_root", "/var/lib/detalhar/artifacts")
	v.SetDefault("api_key_header", "X-API-Key")
	v.SetDefault("allowed_origins", []string{"*"})

	cfg := &Config{
		DatabaseURL:             v.GetString("database_url"),
		RedisURL:                v.GetString("redis_url"),
		APIKey:                  v.GetString("api_key"),
		CacheTTLSeconds:         v.GetInt("cache_ttl_seconds"),
		StreamHi:                v.GetString("stream_hi"),
		StreamLo:                v.GetString("stream_lo"),
		ConsumerGroup:           v.GetString("consumer_group"),
		ConsumerName:            v.GetString("consumer_name"),
		LockMinutes:             v.GetInt("lock_minutes"),
		UseLLM:                  v.GetBool("use_llm"),
		ReapCron:                v.GetString("reap_cron"),
		HTTPAddr:                v.GetString("http_addr"),
		MetricsAddr:             v.GetString("metrics_addr"),
		LogLevel:                v.GetString("log_level"),
		ExtractorTimeoutSeconds: v.GetInt("extractor_timeout_seconds"),
		MaxExtractConcurrency:   v.GetInt("max_extract_concurrency"),
		MaxAttempts:             v.GetInt("max_attempts"),
		ArtifactRoot:            v.GetString("artifact_root"),
		OpenAIAPIKey:            v.GetString("openai_api_key"),
		BrowserbaseAPIKey:       v.GetString("browserbase_api_key"),
		BrowserbaseProjID:       v.GetString("browserbase_project_id"),
		SEIBaseURL:              v.GetString("sei_base_url"),
		APIKeyHeader:            v.GetString("api_key_header"),
		AllowedOrigins:          v.GetStringSlice("allowed_origins"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("config: API_KEY is required")
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("config: cache_ttl_seconds must be positive")
	}
	if c.LockMinutes <= 0 {
		return fmt.Errorf("config: lock_minutes must be positive")
	}
	if c.UseLLM && c.OpenAIAPIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required when use_llm is true")
	}
	return nil
}

// CacheTTL is CacheTTLSeconds as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LockDuration is LockMinutes as a time.Duration.
func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LockMinutes) * time.Minute
}

// ExtractorTimeout is ExtractorTimeoutSeconds as a time.Duration.
func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.ExtractorTimeoutSeconds) * time.Second
}
