package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8710, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)

	assert.Equal(t, 0.75, cfg.Engine.SimilarityThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Engine.ActiveTimeout.Duration())
	assert.Equal(t, 24*time.Hour, cfg.Engine.FollowUpWindow.Duration())
	assert.Equal(t, 500, cfg.Engine.CacheMaxEntries)
	assert.Equal(t, 8000, cfg.Engine.MaxTokenBudget)
	assert.Equal(t, 50, cfg.Engine.DocReadyThreshold)

	assert.True(t, cfg.Engine.Features.Semantic)
	assert.True(t, cfg.Engine.Features.State)
	assert.True(t, cfg.Engine.Features.Relationship)

	// Bilingual keyword lists ship out of the box.
	assert.Contains(t, cfg.Engine.Keywords.Problem, "no funciona")
	assert.Contains(t, cfg.Engine.Keywords.Resolution, "resuelto")
	assert.Contains(t, cfg.Engine.Keywords.Gratitude, "gracias")
	assert.Contains(t, cfg.Engine.Keywords.Completion, "listo")
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "threshold above one",
			mutate: func(c *Config) { c.Engine.SimilarityThreshold = 1.5 },
			want:   "similarity_threshold",
		},
		{
			name:   "negative threshold",
			mutate: func(c *Config) { c.Engine.SimilarityThreshold = -0.1 },
			want:   "similarity_threshold",
		},
		{
			name:   "zero active timeout",
			mutate: func(c *Config) { c.Engine.ActiveTimeout = 0 },
			want:   "active_timeout",
		},
		{
			name:   "zero cache entries",
			mutate: func(c *Config) { c.Engine.CacheMaxEntries = 0 },
			want:   "cache_max_entries",
		},
		{
			name:   "zero token budget",
			mutate: func(c *Config) { c.Engine.MaxTokenBudget = 0 },
			want:   "max_token_budget",
		},
		{
			name:   "content weights off balance",
			mutate: func(c *Config) { c.Engine.ContentWeights.Text = 0.5 },
			want:   "content_weights",
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, Default().Engine.SimilarityThreshold, cfg.Engine.SimilarityThreshold)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9200
logging:
  level: debug
engine:
  similarity_threshold: 0.6
  active_timeout: 45m
  cache_max_entries: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.6, cfg.Engine.SimilarityThreshold)
	assert.Equal(t, 45*time.Minute, cfg.Engine.ActiveTimeout.Duration())
	assert.Equal(t, 100, cfg.Engine.CacheMaxEntries)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Engine.MaxTokenBudget)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9200\n"), 0o600))

	t.Setenv("SESSIOND_SERVER_PORT", "9300")
	t.Setenv("SESSIOND_LOGGING_LEVEL", "warn")
	t.Setenv("SESSIOND_ENGINE_ACTIVE_TIMEOUT", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2*time.Hour, cfg.Engine.ActiveTimeout.Duration())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a, mapping\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  similarity_threshold: 2.0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestDurationTextRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}

func TestDurationRejectsNegative(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalText([]byte("-5m")))
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalText([]byte("soon")))
}
