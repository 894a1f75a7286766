package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials are never read from the config file: the SMTP password, the
// listing auth token and the notifier bot token all come from the
// environment, the same way the scheduler invoking the binary supplies them.
type Credentials struct {
	SMTPPassword string `env:"GACETA_SMTP_PASSWORD"`
	SourceToken  string `env:"GACETA_SOURCE_TOKEN"`
	DiscordToken string `env:"GACETA_DISCORD_TOKEN"`
}

func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{}
	if err := env.Parse(creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials from environment: %w", err)
	}
	return creds, nil
}
