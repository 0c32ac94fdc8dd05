package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_BASE_URL", "REPOX_STRONG_MODEL", "REPOX_WEAK_MODEL",
		"REPOX_MAX_FILE_SIZE", "REPOX_MAX_CONTEXT_SIZE", "REPOX_MAX_FILES_PER_REQUEST",
		"REPOX_VERBOSE", "REPOX_REDIS_URL",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 15, cfg.SelectionLimit())
	assert.Equal(t, 30*time.Second, cfg.ScoringTimeout())
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	content := `
[llm]
provider = "ollama"
weak_model = "llama3.2:3b"
base_url = "http://localhost:11434"

[ranking]
top_k = 40
max_files_per_request = 8

[context]
max_context_size = 8000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.2:3b", cfg.LLM.WeakModel)
	assert.Equal(t, "gpt-4", cfg.LLM.StrongModel)
	assert.Equal(t, 8000, cfg.Context.MaxContextSize)
	assert.Equal(t, 8, cfg.SelectionLimit())
	assert.False(t, cfg.RequiresAPIKey())
}

func TestLoadMalformed(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[llm\nprovider ="), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://proxy.local/v1")
	t.Setenv("REPOX_STRONG_MODEL", "gpt-4o")
	t.Setenv("REPOX_WEAK_MODEL", "gpt-4o-mini")
	t.Setenv("REPOX_MAX_FILE_SIZE", "2048")
	t.Setenv("REPOX_MAX_CONTEXT_SIZE", "12000")
	t.Setenv("REPOX_MAX_FILES_PER_REQUEST", "5")
	t.Setenv("REPOX_VERBOSE", "yes")
	t.Setenv("REPOX_REDIS_URL", "redis://cache:6379/2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "http://proxy.local/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.LLM.StrongModel)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.WeakModel)
	assert.Equal(t, int64(2048), cfg.Repository.MaxFileSize)
	assert.Equal(t, 12000, cfg.Context.MaxContextSize)
	assert.Equal(t, 5, cfg.Ranking.MaxFilesPerRequest)
	assert.True(t, cfg.Logging.Verbose)
	assert.Equal(t, "redis://cache:6379/2", cfg.Cache.Redis.URL)
}

func TestEnvOverrideNotInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPOX_MAX_CONTEXT_SIZE", "lots")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero file size", func(c *Config) { c.Repository.MaxFileSize = 0 }, false},
		{"huge file size", func(c *Config) { c.Repository.MaxFileSize = 20_000_000 }, false},
		{"small context", func(c *Config) { c.Context.MaxContextSize = 999 }, false},
		{"zero top k", func(c *Config) { c.Ranking.TopK = 0 }, false},
		{"negative weight", func(c *Config) { c.Ranking.PathWeight = -0.1 }, false},
		{"weights above one", func(c *Config) { c.Ranking.ContentWeight = 0.8 }, false},
		{"weights exactly one", func(c *Config) { c.Ranking.ContentWeight = 0.7 }, true},
		{"batch too large", func(c *Config) { c.Ranking.BatchSize = 51 }, false},
		{"negative workers", func(c *Config) { c.Ranking.Workers = -1 }, false},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }, false},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "api.openai.com" }, false},
		{"no penalty steps", func(c *Config) { c.Ranking.SizePenalty.Steps = nil }, false},
		{"unsorted penalty steps", func(c *Config) {
			c.Ranking.SizePenalty.Steps[1].Below = 5_000
		}, false},
		{"duplicate penalty step", func(c *Config) {
			c.Ranking.SizePenalty.Steps[1].Below = 10_000
		}, false},
		{"increasing penalty factor", func(c *Config) {
			c.Ranking.SizePenalty.Steps[2].Factor = 0.95
		}, false},
		{"zero penalty factor", func(c *Config) { c.Ranking.SizePenalty.Steps[0].Factor = 0 }, false},
		{"penalty factor above one", func(c *Config) { c.Ranking.SizePenalty.Steps[0].Factor = 1.5 }, false},
		{"zero penalty floor", func(c *Config) { c.Ranking.SizePenalty.Floor = 0 }, false},
		{"floor above last factor", func(c *Config) { c.Ranking.SizePenalty.Floor = 0.7 }, false},
		{"flat penalty", func(c *Config) {
			c.Ranking.SizePenalty = SizePenaltyConfig{Steps: []PenaltyStepConfig{{Below: 1, Factor: 1}}, Floor: 1}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestSizePenaltyDefaults(t *testing.T) {
	p := DefaultConfig().Ranking.SizePenalty

	assert.Equal(t, []PenaltyStepConfig{
		{Below: 10_000, Factor: 1.0},
		{Below: 50_000, Factor: 0.9},
		{Below: 100_000, Factor: 0.8},
		{Below: 500_000, Factor: 0.6},
	}, p.Steps)
	assert.Equal(t, 0.4, p.Floor)
}

func TestLoadSizePenalty(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	content := `
[ranking.size_penalty]
floor = 0.5

[[ranking.size_penalty.steps]]
below = 2000
factor = 1.0

[[ranking.size_penalty.steps]]
below = 20000
factor = 0.75
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []PenaltyStepConfig{
		{Below: 2000, Factor: 1.0},
		{Below: 20000, Factor: 0.75},
	}, cfg.Ranking.SizePenalty.Steps)
	assert.Equal(t, 0.5, cfg.Ranking.SizePenalty.Floor)
}

func TestLoadRejectsIncreasingPenalty(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	content := `
[ranking.size_penalty]
floor = 0.4

[[ranking.size_penalty.steps]]
below = 1000
factor = 0.5

[[ranking.size_penalty.steps]]
below = 2000
factor = 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "factor must not increase")
}

func TestSaveRoundTripDropsAPIKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Ranking.TopK = 9
	require.NoError(t, Save(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Ranking.TopK)
	assert.Equal(t, cfg.Ranking.SizePenalty, loaded.Ranking.SizePenalty)
	assert.Empty(t, loaded.LLM.APIKey)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}
