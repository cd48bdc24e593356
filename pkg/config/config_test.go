package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plattargus/detalhar/pkg/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/detalhar")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "detalhar:stream:hi", cfg.StreamHi)
	assert.Equal(t, "detalhar:stream:lo", cfg.StreamLo)
	assert.Equal(t, 4, cfg.MaxExtractConcurrency)
	assert.Equal(t, "/var/lib/detalhar/artifacts", cfg.ArtifactRoot)
	assert.Equal(t, "X-API-Key", cfg.APIKeyHeader)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.UseLLM)
}

func TestLoadRequiresOpenAIKeyWhenLLMEnabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadAllowsMissingOpenAIKeyWhenLLMDisabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("USE_LLM", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.UseLLM)
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("API_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestDurationHelpers(t *testing.T) {
	cfg := &config.Config{CacheTTLSeconds: 60, LockMinutes: 2, ExtractorTimeoutSeconds: 30}
	assert.Equal(t, 60, int(cfg.CacheTTL().Seconds()))
	assert.Equal(t, 2, int(cfg.LockDuration().Minutes()))
	assert.Equal(t, 30, int(cfg.ExtractorTimeout().Seconds()))
}
