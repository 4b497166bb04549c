package utils

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	port string

	jwtSecret string
	jwtExpire time.Duration

	discordGuildID      string
	discordAppToken     string
	discordClientId     string
	discordClientSecret string

	oauthRedirectURL string

	metricCollectionInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),

		jwtSecret: func() string {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				slog.Warn("JWT_SECRET is not set")
				secret = "secret"
			}
			return secret
		}(),
		jwtExpire: func() time.Duration {
			jwtExpire := os.Getenv("JWT_EXPIRE")
			if jwtExpire == "" {
				jwtExpire = "168h" // 1 week
			}
			duration, err := time.ParseDuration(jwtExpire)
			if err != nil {
				slog.Error("invalid JWT_EXPIRE", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "JWT_EXPIRE", jwtExpire, "duration", duration)
			return duration
		}(),

		discordGuildID: func() string {
			discordGuildID := os.Getenv("DISCORD_GUILD_ID")
			slog.Debug("env", "DISCORD_GUILD_ID", discordGuildID)
			return discordGuildID
		}(),
		discordAppToken: func() string {
			discordAppToken := os.Getenv("DISCORD_APP_TOKEN")
			if discordAppToken == "" {
				slog.Error("DISCORD_APP_TOKEN is not set")
				os.Exit(1)
			}
			slog.Debug("env", "DISCORD_APP_TOKEN", discordAppToken[0:3]+"...")
			return discordAppToken
		}(),
		discordClientId: func() string {
			discordClientId := os.Getenv("DISCORD_CLIENT_ID")
			if discordClientId == "" {
				slog.Error("DISCORD_CLIENT_ID is not set")
				os.Exit(1)
			}
			slog.Debug("env", "DISCORD_CLIENT_ID", discordClientId)
			return discordClientId
		}(),
		discordClientSecret: func() string {
			discordClientSecret := os.Getenv("DISCORD_CLIENT_SECRET")
			if discordClientSecret == "" {
				slog.Error("DISCORD_CLIENT_SECRET is not set")
				os.Exit(1)
			}
			return discordClientSecret
		}(),

		oauthRedirectURL: func() string {
			oauthRedirectURL := os.Getenv("OAUTH_REDIRECT_URL")
			if oauthRedirectURL == "" {
				slog.Error("OAUTH_REDIRECT_URL is not set")
				os.Exit(1)
			}
			slog.Debug("env", "OAUTH_REDIRECT_URL", oauthRedirectURL)
			return oauthRedirectURL
		}(),

		metricCollectionInterval: func() time.Duration {
			metricCollectionInterval := os.Getenv("METRIC_COLLECTION_INTERVAL")
			if metricCollectionInterval == "" {
				metricCollectionInterval = "60s"
			}
			duration, err := time.ParseDuration(metricCollectionInterval)
			if err != nil {
				slog.Error("invalid METRIC_COLLECTION_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "METRIC_COLLECTION_INTERVAL", metricCollectionInterval)
			return duration
		}(),
	}
}

func (c *Config) GetPort() string {
	return c.port
}

func (c *Config) GetJwtSecret() string {
	return c.jwtSecret
}

func (c *Config) GetJwtExpire() time.Duration {
	return c.jwtExpire
}

// GetDiscordGuildID returns the guild slash commands get registered
// against; empty means global registration.
func (c *Config) GetDiscordGuildID() string {
	return c.discordGuildID
}

func (c *Config) GetDiscordAppToken() string {
	return c.discordAppToken
}

func (c *Config) GetDiscordClientId() string {
	return c.discordClientId
}

func (c *Config) GetDiscordClientSecret() string {
	return c.discordClientSecret
}

func (c *Config) GetOauthRedirectURL() string {
	return c.oauthRedirectURL
}

func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}
