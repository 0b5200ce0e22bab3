package core

import (
	"strings"
	"time"
)

type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
}

type DeliveryConfig struct {
	MinInterval time.Duration `koanf:"min_interval" mapstructure:"min_interval"`
	PageSize    int           `koanf:"page_size" mapstructure:"page_size"`
}

type BackendConfig struct {
	URL          string `koanf:"url" mapstructure:"url"`
	APIKeyHeader string `koanf:"api_key_header" mapstructure:"api_key_header"`
	APIKey       string `koanf:"api_key" mapstructure:"api_key"`
}

type Config struct {
	BotToken          string         `koanf:"bot_token" mapstructure:"bot_token"`
	Backend           BackendConfig  `koanf:"backend" mapstructure:"backend"`
	PublicURL         string         `koanf:"public_url" mapstructure:"public_url"`
	Port              int            `koanf:"port" mapstructure:"port"`
	DistributorChatID int64          `koanf:"distributor_chat_id" mapstructure:"distributor_chat_id"`
	Session           SessionConfig  `koanf:"session" mapstructure:"session"`
	Delivery          DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
}

func DefaultConfig() Config {
	return Config{
		Port: 5000,
		Session: SessionConfig{
			TTL:           12 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Delivery: DeliveryConfig{
			MinInterval: 700 * time.Millisecond,
			PageSize:    5,
		},
	}
}

// Validate enforces the fatal startup conditions: without a bot token or a
// backend base URL the process must exit before binding the listener.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return ConfigMissingError{Field: "bot_token"}
	}
	if strings.TrimSpace(c.Backend.URL) == "" {
		return ConfigMissingError{Field: "backend.url"}
	}
	return nil
}
