// Package config provides configuration management for botvinnik.
// It defines the structure for YAML configuration files and handles
// loading, validation, and default value application.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for botvinnik.
type Config struct {
	// Version is the configuration file format version
	Version string `yaml:"version"`
	// Matrix defines homeserver connection settings
	Matrix MatrixConfig `yaml:"matrix"`
	// Bot defines command handling behavior
	Bot BotConfig `yaml:"bot"`
	// Logging defines logging behavior
	Logging LoggingConfig `yaml:"logging"`
	// Metrics defines the Prometheus metrics endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// MatrixConfig defines the homeserver connection.
type MatrixConfig struct {
	// Homeserver is the base URL of the Matrix homeserver (e.g. https://matrix.example.com)
	Homeserver string `yaml:"homeserver"`
	// UserID is the bot's fully qualified Matrix user ID (e.g. @bot:example.com)
	UserID string `yaml:"user_id"`
	// AccessToken is used directly when set; otherwise Password is used to log in
	AccessToken string `yaml:"access_token"`
	// Password is used for a password login when no access token is configured
	Password string `yaml:"password"`
	// SyncTimeoutMs is the long-poll timeout for sync in milliseconds (default: 30000)
	SyncTimeoutMs int `yaml:"sync_timeout_ms"`
	// SendRate is the outbound message rate limit in messages per second (default: 2)
	SendRate float64 `yaml:"send_rate"`
	// SendBurst is the outbound message burst size (default: 4)
	SendBurst int `yaml:"send_burst"`
}

// BotConfig defines command handling behavior.
type BotConfig struct {
	// Prefix is the command prefix (default: "!")
	Prefix string `yaml:"prefix"`
	// StopUsers is the list of user IDs always allowed to stop the bot
	StopUsers []string `yaml:"stop_users"`
	// DeactivatedCommands lists commands that must not be handled
	DeactivatedCommands []string `yaml:"deactivated_commands"`
	// CommandTimeout is the maximum time a command handler may run
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// QueueSize is the per-room task queue size
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `yaml:"level"`
	// Pretty enables human-readable console output instead of JSON
	Pretty bool `yaml:"pretty"`
	// ChatLog enables rendering incoming messages and replies to the console
	ChatLog bool `yaml:"chat_log"`
}

// MetricsConfig defines the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the server
	Addr string `yaml:"addr"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Matrix: MatrixConfig{
			SyncTimeoutMs: 30000,
			SendRate:      2.0,
			SendBurst:     4,
		},
		Bot: BotConfig{
			Prefix:         "!",
			CommandTimeout: 30 * time.Second,
			QueueSize:      16,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Pretty:  true,
			ChatLog: true,
		},
	}
}

// LoadConfig loads and validates a configuration from a YAML file.
// It applies default values for any missing optional fields.
// Returns an error if the file cannot be read, parsed, or is invalid.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to a YAML file.
// The file is created with 0600 permissions since it may hold credentials.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors. Credentials may come
// from the environment, so they are resolved before being required.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if !strings.HasPrefix(c.Matrix.Homeserver, "http://") && !strings.HasPrefix(c.Matrix.Homeserver, "https://") {
		return fmt.Errorf("matrix.homeserver must start with http:// or https://")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if !strings.HasPrefix(c.Matrix.UserID, "@") || !strings.Contains(c.Matrix.UserID, ":") {
		return fmt.Errorf("matrix.user_id must look like @localpart:domain")
	}
	if c.Matrix.AccessToken == "" && c.Matrix.Password == "" {
		return fmt.Errorf("either matrix.access_token or matrix.password is required (or set MATRIX_ACCESS_TOKEN / MATRIX_PASSWORD)")
	}
	if c.Matrix.SendRate < 0 {
		return fmt.Errorf("matrix.send_rate must not be negative")
	}

	for _, user := range c.Bot.StopUsers {
		if !strings.HasPrefix(user, "@") || !strings.Contains(user, ":") {
			return fmt.Errorf("bot.stop_users entry %q must look like @localpart:domain", user)
		}
	}

	validLevels := map[string]bool{
		"":      true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	if c.Matrix.SyncTimeoutMs == 0 {
		c.Matrix.SyncTimeoutMs = 30000
	}
	if c.Matrix.SendRate == 0 {
		c.Matrix.SendRate = 2.0
	}
	if c.Matrix.SendBurst == 0 {
		c.Matrix.SendBurst = 4
	}
	if c.Matrix.AccessToken == "" {
		if env := os.Getenv("MATRIX_ACCESS_TOKEN"); env != "" {
			c.Matrix.AccessToken = env
		}
	}
	if c.Matrix.Password == "" {
		if env := os.Getenv("MATRIX_PASSWORD"); env != "" {
			c.Matrix.Password = env
		}
	}

	if c.Bot.Prefix == "" {
		c.Bot.Prefix = "!"
	}
	if c.Bot.CommandTimeout == 0 {
		c.Bot.CommandTimeout = 30 * time.Second
	}
	if c.Bot.QueueSize == 0 {
		c.Bot.QueueSize = 16
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
