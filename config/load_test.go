package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	t.Run("reads values from a TOML file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "promptpipe.toml")

		content := `
[database]
path = "/tmp/pipe-test.db"

[server]
port = 9911
allowed_origins = ["https://app.example.com"]

[openrouter]
model = "anthropic/claude-sonnet-4"
timeout_seconds = 45

[webhook]
timeout_seconds = 10
block_private_hosts = true
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/pipe-test.db", cfg.Database.Path)
		assert.Equal(t, 9911, cfg.GetServerPort())
		assert.Equal(t, []string{"https://app.example.com"}, cfg.GetServerAllowedOrigins())
		assert.Equal(t, "anthropic/claude-sonnet-4", cfg.OpenRouter.Model)
		assert.Equal(t, 45, cfg.OpenRouter.TimeoutSeconds)
		assert.Equal(t, 10, cfg.Webhook.TimeoutSeconds)
		assert.True(t, cfg.Webhook.BlockPrivateHosts)
	})

	t.Run("applies defaults for missing sections", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "promptpipe.toml")

		require.NoError(t, os.WriteFile(configPath, []byte("[database]\npath = \"x.db\"\n"), 0644))

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "x.db", cfg.Database.Path)
		assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
		assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
		assert.Equal(t, "openai/gpt-4o-mini", cfg.OpenRouter.Model)
		assert.False(t, cfg.Webhook.BlockPrivateHosts)
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/promptpipe.toml")
		assert.Error(t, err)
	})
}

func TestConfigAccessors(t *testing.T) {
	empty := &Config{}

	assert.Equal(t, "promptpipe.db", empty.GetDatabasePath())
	assert.Equal(t, DefaultServerPort, empty.GetServerPort())
	assert.NotEmpty(t, empty.GetServerAllowedOrigins())
	assert.Equal(t, float64(120), empty.GetOpenRouterTimeout().Seconds())
	assert.Equal(t, float64(30), empty.GetWebhookTimeout().Seconds())
}

func TestEnvironmentOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("PROMPTPIPE_OPENROUTER_API_KEY", "sk-or-test-key")
	t.Setenv("PROMPTPIPE_DATABASE_PATH", "/tmp/env-override.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-or-test-key", cfg.OpenRouter.APIKey)
	assert.Equal(t, "/tmp/env-override.db", cfg.Database.Path)
}

func TestBareOpenRouterKeyFallback(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("OPENROUTER_API_KEY", "sk-or-bare-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-or-bare-key", cfg.OpenRouter.APIKey)
}
