// Package config manages application configuration from default values,
// an optional config.yaml file, and BOT_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config defines the application configuration parameters for all
// components of botconsole: logging, the bot registry endpoint, the message
// feed endpoint, webhook activation, and the local identity store.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Bot         BotConfig         `mapstructure:"bot"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// RegistryConfig points at the remote bot registry service.
type RegistryConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"min=1s,max=2m"`
}

// FeedConfig points at the relayed-message feed service.
type FeedConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"min=1s,max=2m"`
}

// WebhookConfig controls webhook activation against the Telegram API.
// CallbackBaseURL is the fixed address inbound bot events are delivered to;
// the bot token is attached to it as a query parameter on activation.
// TelegramServerURL overrides the Telegram API server, used in tests.
type WebhookConfig struct {
	CallbackBaseURL   string        `mapstructure:"callback_base_url"   validate:"required,url"`
	TelegramServerURL string        `mapstructure:"telegram_server_url" validate:"omitempty,url"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"min=1s,max=2m"`
}

// DatabaseConfig locates the SQLite file holding the device identity.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// MaintenanceConfig controls the periodic local-store maintenance job.
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required"`
}

// BotConfig carries owner-facing bot defaults.
type BotConfig struct {
	WelcomeText string `mapstructure:"welcome_text" validate:"required"`
}

// Validate checks the complete configuration against the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
