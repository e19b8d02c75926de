package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	defaultHTTPTimeout = 10 * time.Second

	defaultDBPath = "botconsole.db"

	// Daily at 04:00 UTC.
	defaultMaintenanceSchedule = "0 4 * * *"

	// Shown to end users of the connected bot when they send /start.
	defaultWelcomeText = "Hi! Send me a message and I will pass it on to the owner."
)

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file
// 3. BOT_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file; defaults plus environment may be enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets default values for optional configuration parameters.
// The registry, feed, and webhook callback addresses are deployment
// configuration and have no defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)

	v.SetDefault("registry.timeout", defaultHTTPTimeout)
	v.SetDefault("feed.timeout", defaultHTTPTimeout)
	v.SetDefault("webhook.timeout", defaultHTTPTimeout)

	v.SetDefault("database.path", defaultDBPath)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", defaultMaintenanceSchedule)

	v.SetDefault("bot.welcome_text", defaultWelcomeText)
}
