package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "promptpipe.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// OpenRouter defaults
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("openrouter.timeout_seconds", 120)

	// Webhook delivery defaults
	v.SetDefault("webhook.timeout_seconds", 30)
	v.SetDefault("webhook.block_private_hosts", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Accept the bare OPENROUTER_API_KEY too, since that is what the
	// provider's own docs tell people to export
	v.BindEnv("openrouter.api_key", "PROMPTPIPE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")

	// Database path
	v.BindEnv("database.path", "PROMPTPIPE_DATABASE_PATH")
}
