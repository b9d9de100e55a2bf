// Package config loads promptpipe configuration from TOML files and
// environment variables, in precedence order system < user < project < env.
package config

import (
	"fmt"
	"time"
)

// Config represents the promptpipe configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the promptpipe HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey         string `mapstructure:"api_key"`         // OpenRouter API key
	BaseURL        string `mapstructure:"base_url"`        // API base URL (default: https://openrouter.ai/api/v1)
	Model          string `mapstructure:"model"`           // Fallback model when a prompt has none
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Plain HTTP client timeout (default: 120)
}

// WebhookConfig configures outbound result delivery
type WebhookConfig struct {
	TimeoutSeconds    int  `mapstructure:"timeout_seconds"`     // Plain HTTP client timeout (default: 30)
	BlockPrivateHosts bool `mapstructure:"block_private_hosts"` // Refuse deliveries to private/loopback addresses
}

// Server port constants
const (
	DefaultServerPort  = 8808 // Development port (above privileged range)
	FallbackServerPort = 8880 // Used when the configured port is taken
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "promptpipe.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerPort returns the configured server port
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// GetOpenRouterTimeout returns the completion client timeout
func (c *Config) GetOpenRouterTimeout() time.Duration {
	if c.OpenRouter.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.OpenRouter.TimeoutSeconds) * time.Second
}

// GetWebhookTimeout returns the delivery client timeout
func (c *Config) GetWebhookTimeout() time.Duration {
	if c.Webhook.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, OpenRouter: {Model: %s}}",
		c.GetDatabasePath(), c.GetServerPort(), c.OpenRouter.Model)
}
