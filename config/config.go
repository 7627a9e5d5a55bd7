// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Use Validate before starting a chat session.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-bridge/chat"
	"github.com/onnwee/chat-bridge/irc"
)

type Config struct {
	// Twitch IRC
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string
	IRCServer         string
	IRCPort           int

	// Session behaviour
	RetryInterval time.Duration
	DispatchMode  chat.DispatchMode

	// OAuth refresh (optional; needs a stored refresh token)
	TwitchClientID       string
	TwitchClientSecret   string
	TokenRefreshInterval time.Duration
	TokenRefreshWindow   time.Duration
	TwitchRedirectURI    string
	TwitchScopes         string

	// Database (optional)
	DBDsn         string
	EncryptionKey string

	// HTTP
	HTTPAddr         string
	LiveStreamBuffer int

	// Telemetry
	OTLPEndpoint string
}

// Load reads environment variables and applies defaults. Missing credentials are not an error
// here; call Validate when the session is about to start.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = irc.NormalizeChannel(os.Getenv("TWITCH_CHANNEL"))
	cfg.TwitchBotUsername = strings.ToLower(strings.TrimSpace(os.Getenv("TWITCH_BOT_USERNAME")))
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.IRCServer = getEnv("TWITCH_IRC_SERVER", chat.DefaultServer)

	var err error
	if cfg.IRCPort, err = getEnvInt("TWITCH_IRC_PORT", chat.DefaultPort); err != nil {
		return nil, err
	}
	if cfg.IRCPort <= 0 || cfg.IRCPort > 65535 {
		return nil, fmt.Errorf("invalid TWITCH_IRC_PORT %d", cfg.IRCPort)
	}

	if cfg.RetryInterval, err = getEnvDuration("CHAT_RETRY_INTERVAL", chat.DefaultRetryInterval); err != nil {
		return nil, err
	}
	if cfg.DispatchMode, err = chat.ParseDispatchMode(strings.ToLower(os.Getenv("CHAT_DISPATCH_MODE"))); err != nil {
		return nil, fmt.Errorf("invalid CHAT_DISPATCH_MODE: %w", err)
	}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = getEnv("TWITCH_SCOPES", "chat:read chat:edit")
	if cfg.TokenRefreshInterval, err = getEnvDuration("TOKEN_REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TokenRefreshWindow, err = getEnvDuration("TOKEN_REFRESH_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}

	// DB is optional: without it the session runs from TWITCH_OAUTH_TOKEN alone.
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	if cfg.LiveStreamBuffer, err = getEnvInt("LIVE_STREAM_BUFFER", 64); err != nil {
		return nil, err
	}
	if cfg.LiveStreamBuffer <= 0 {
		cfg.LiveStreamBuffer = 64
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// Validate checks the fields required to start a chat session. A token must come either from
// TWITCH_OAUTH_TOKEN or from the database.
func (c *Config) Validate() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL and TWITCH_BOT_USERNAME")
	}
	if c.TwitchOAuthToken == "" && c.DBDsn == "" {
		return fmt.Errorf("missing twitch credentials: set TWITCH_OAUTH_TOKEN or DB_DSN with a stored token")
	}
	return nil
}

// RefreshEnabled reports whether the stored IRC token can be refreshed automatically.
func (c *Config) RefreshEnabled() bool {
	return c.DBDsn != "" && c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// OAuthFlowEnabled reports whether /auth/twitch/start and /auth/twitch/callback can run.
func (c *Config) OAuthFlowEnabled() bool {
	return c.RefreshEnabled() && c.TwitchRedirectURI != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
