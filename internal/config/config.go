package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Run      RunConfig      `toml:"run"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Source   SourceConfig   `toml:"source"`
	Delivery DeliveryConfig `toml:"delivery"`
	Notify   NotifyConfig   `toml:"notify"`
}

type RunConfig struct {
	Name    string `toml:"name"`
	Timeout string `toml:"timeout"`
}

type LedgerConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
	Addr string `toml:"addr"`
	Key  string `toml:"key"`
}

type SourceConfig struct {
	Type      string `toml:"type"`
	URL       string `toml:"url"`
	Ref       string `toml:"ref"`
	Extension string `toml:"extension"`
	MaxItems  int    `toml:"max_items"`
}

type DeliveryConfig struct {
	Type    string `toml:"type"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	From    string `toml:"from"`
	To      string `toml:"to"`
	Subject string `toml:"subject"`
	Body    string `toml:"body"`
}

type NotifyConfig struct {
	Discord DiscordConfig `toml:"discord"`
}

// DiscordConfig carries the channel id only; the bot token is a credential
// and comes from the environment. Leaving the channel id empty disables the
// notifier.
type DiscordConfig struct {
	ChannelID string `toml:"channel_id"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Run.Name == "" {
		config.Run.Name = "gaceta"
	}

	if config.Run.Timeout == "" {
		config.Run.Timeout = "5m"
	}

	if _, err := time.ParseDuration(config.Run.Timeout); err != nil {
		return fmt.Errorf("invalid run timeout: %w", err)
	}

	if config.Ledger.Type == "" {
		config.Ledger.Type = "file"
	}

	switch config.Ledger.Type {
	case "file":
		if config.Ledger.Path == "" {
			config.Ledger.Path = "./delivered.json"
		}
	case "sqlite":
		if config.Ledger.Path == "" {
			config.Ledger.Path = "./gaceta.db"
		}
	case "redis":
		if config.Ledger.Addr == "" {
			return fmt.Errorf("ledger type redis requires addr")
		}
	default:
		return fmt.Errorf("unknown ledger type: %s", config.Ledger.Type)
	}

	if config.Source.Type == "" {
		return fmt.Errorf("source type is required")
	}

	if config.Source.URL == "" {
		return fmt.Errorf("source url is required")
	}

	if config.Source.Extension == "" {
		config.Source.Extension = ".epub"
	}

	if config.Delivery.Type == "" {
		config.Delivery.Type = "smtp"
	}

	if config.Delivery.To == "" {
		return fmt.Errorf("delivery recipient address is required")
	}

	return nil
}

// Timeout returns the parsed run timeout. Load already validated it.
func (c *Config) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.Run.Timeout)
	return d
}
