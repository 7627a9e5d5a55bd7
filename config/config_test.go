package config

import (
	"testing"
	"time"

	"github.com/onnwee/chat-bridge/chat"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CHANNEL", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN", "TWITCH_IRC_SERVER", "TWITCH_IRC_PORT",
		"CHAT_RETRY_INTERVAL", "CHAT_DISPATCH_MODE", "TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET",
		"TOKEN_REFRESH_INTERVAL", "TOKEN_REFRESH_WINDOW", "DB_DSN", "ENCRYPTION_KEY", "HTTP_ADDR",
		"LIVE_STREAM_BUFFER", "OTEL_EXPORTER_OTLP_ENDPOINT", "TWITCH_REDIRECT_URI", "TWITCH_SCOPES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.IRCServer != chat.DefaultServer || cfg.IRCPort != chat.DefaultPort {
		t.Errorf("endpoint = %s:%d", cfg.IRCServer, cfg.IRCPort)
	}
	if cfg.RetryInterval != time.Second {
		t.Errorf("retry interval = %v, want 1s", cfg.RetryInterval)
	}
	if cfg.DispatchMode != chat.DispatchBlocking {
		t.Errorf("dispatch mode = %v, want blocking", cfg.DispatchMode)
	}
	if cfg.HTTPAddr != ":8080" || cfg.LiveStreamBuffer != 64 {
		t.Errorf("http = %q buffer = %d", cfg.HTTPAddr, cfg.LiveStreamBuffer)
	}
	if cfg.RefreshEnabled() {
		t.Error("refresh should be disabled without DB and client credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", "SomeStreamer")
	t.Setenv("TWITCH_BOT_USERNAME", " MyBot ")
	t.Setenv("TWITCH_IRC_PORT", "6697")
	t.Setenv("CHAT_RETRY_INTERVAL", "250ms")
	t.Setenv("CHAT_DISPATCH_MODE", "ASYNC")
	t.Setenv("DB_DSN", "postgres://x")
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "#somestreamer" {
		t.Errorf("channel = %q", cfg.TwitchChannel)
	}
	if cfg.TwitchBotUsername != "mybot" {
		t.Errorf("nick = %q", cfg.TwitchBotUsername)
	}
	if cfg.IRCPort != 6697 || cfg.RetryInterval != 250*time.Millisecond || cfg.DispatchMode != chat.DispatchAsync {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.RefreshEnabled() {
		t.Error("refresh should be enabled")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"TWITCH_IRC_PORT":     "not-a-port",
		"CHAT_RETRY_INTERVAL": "-1s",
		"CHAT_DISPATCH_MODE":  "parallel",
		"LIVE_STREAM_BUFFER":  "lots",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", key, val)
			}
		})
	}
	t.Run("port range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TWITCH_IRC_PORT", "70000")
		if _, err := Load(); err == nil {
			t.Error("expected error for out-of-range port")
		}
	})
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}

	t.Setenv("TWITCH_OAUTH_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without token or database")
	}

	t.Setenv("DB_DSN", "postgres://x")
	cfg, _ = Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("stored token via DB should validate, got %v", err)
	}

	t.Setenv("TWITCH_CHANNEL", "")
	cfg, _ = Load()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when channel missing")
	}
}

func TestFeatureFlags(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()
	if cfg.RefreshEnabled() || cfg.OAuthFlowEnabled() {
		t.Error("refresh and oauth flow should be off by default")
	}
	if cfg.TwitchScopes != "chat:read chat:edit" {
		t.Errorf("default scopes = %q", cfg.TwitchScopes)
	}

	t.Setenv("DB_DSN", "postgres://x")
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ = Load()
	if !cfg.RefreshEnabled() {
		t.Error("refresh should be enabled with db and client credentials")
	}
	if cfg.OAuthFlowEnabled() {
		t.Error("oauth flow needs a redirect uri")
	}

	t.Setenv("TWITCH_REDIRECT_URI", "http://localhost:8080/auth/twitch/callback")
	cfg, _ = Load()
	if !cfg.OAuthFlowEnabled() {
		t.Error("oauth flow should be enabled")
	}
}
