// Command chat-bridge connects to Twitch IRC, joins one channel and fans chat out to
// subscribers. It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres, runs migrations and reads the bot token from it.
//   - Keeps a stored token fresh with the OAuth refresher.
//   - Runs the chat session with its reconnect loop.
//   - Exposes /healthz, /readyz, /status, /metrics and a live /chat/stream.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-bridge/chat"
	"github.com/onnwee/chat-bridge/config"
	"github.com/onnwee/chat-bridge/db"
	"github.com/onnwee/chat-bridge/oauth"
	"github.com/onnwee/chat-bridge/server"
	"github.com/onnwee/chat-bridge/telemetry"
	"github.com/onnwee/chat-bridge/twitchapi"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdownTracing, err := telemetry.InitTracing("chat-bridge", version, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		database *sql.DB
		store    *db.TokenStore
	)
	if cfg.DBDsn != "" {
		database, store, err = openStore(ctx, cfg)
		if err != nil {
			slog.Error("database setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	session := chat.NewSession(chat.SessionConfig{
		Nick:          cfg.TwitchBotUsername,
		Token:         tokenProvider(cfg, store),
		Channel:       cfg.TwitchChannel,
		Server:        cfg.IRCServer,
		Port:          cfg.IRCPort,
		RetryInterval: cfg.RetryInterval,
		DispatchMode:  cfg.DispatchMode,
	})

	if cfg.RefreshEnabled() {
		oauth.StartRefresher(ctx, store, twitchapi.Provider, cfg.TokenRefreshInterval, cfg.TokenRefreshWindow,
			func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
				tok, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
				if err != nil {
					return "", "", time.Time{}, "", err
				}
				return tok.AccessToken, tok.RefreshToken, tok.Expiry, tok.Scope, nil
			})
	}

	startPprof()

	deps := server.Deps{
		Chat: session,
		OAuth: server.OAuthConfig{
			Enabled:      cfg.OAuthFlowEnabled(),
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			RedirectURI:  cfg.TwitchRedirectURI,
			Scopes:       cfg.TwitchScopes,
		},
		LiveStreamBuffer: cfg.LiveStreamBuffer,
	}
	if database != nil {
		deps.DB = database
		deps.Tokens = store
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := session.Start(gctx)
		// A stopped session ends the process as well.
		stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return server.Start(gctx, cfg.HTTPAddr, deps)
	})

	if err := g.Wait(); err != nil {
		slog.Error("exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shut down cleanly")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *db.TokenStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	database, err := db.Connect(connectCtx, cfg.DBDsn)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	if v, dirty, err := db.GetMigrationVersion(database); err == nil {
		slog.Info("database migrations complete", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty), slog.String("component", "db_migrate"))
	}
	store, err := db.NewTokenStore(database, cfg.EncryptionKey)
	if err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	return database, store, nil
}

// tokenProvider prefers TWITCH_OAUTH_TOKEN; otherwise the session reads the stored token on
// every connect so refreshes take effect on reconnect.
func tokenProvider(cfg *config.Config, store *db.TokenStore) chat.TokenProvider {
	if cfg.TwitchOAuthToken != "" {
		return chat.StaticToken(chat.WithOAuthPrefix(cfg.TwitchOAuthToken))
	}
	slog.Info("using stored twitch token", slog.String("provider", twitchapi.Provider))
	return chat.StoredToken{Store: store, Provider: twitchapi.Provider}
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
