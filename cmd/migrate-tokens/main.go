// Package main provides a CLI tool to migrate stored OAuth tokens from plaintext to encrypted storage.
//
// Rows with encryption_version=0 (plaintext) are rewritten as version 1 (AES-256-GCM).
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider PROVIDER]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./migrate-tokens --dry-run
//	./migrate-tokens
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/chat-bridge/db"
)

type tokenReader interface {
	PlaintextProviders(ctx context.Context) ([]string, error)
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
}

type tokenWriter interface {
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	provider := flag.String("provider", "", "Migrate the token for one provider only (default: all)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	// Reading goes through a store without a key so plaintext rows come back as-is.
	plain := &db.TokenStore{DB: database}
	encrypted, err := db.NewTokenStore(database, encryptionKey)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("error", err))
		os.Exit(1)
	}

	if _, err := migrateTokens(ctx, plain, encrypted, *dryRun, *provider); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("migration completed successfully")
}

// migrateTokens re-writes every plaintext row through dst, which encrypts on write.
// It returns the number of rows migrated (or that would be, in dry-run mode).
func migrateTokens(ctx context.Context, src tokenReader, dst tokenWriter, dryRun bool, providerFilter string) (int, error) {
	providers, err := src.PlaintextProviders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query plaintext tokens: %w", err)
	}
	if providerFilter != "" {
		filtered := providers[:0]
		for _, p := range providers {
			if p == providerFilter {
				filtered = append(filtered, p)
			}
		}
		providers = filtered
	}
	if len(providers) == 0 {
		slog.Info("no plaintext tokens found to migrate")
		return 0, nil
	}
	slog.Info("found plaintext tokens to migrate", slog.Int("count", len(providers)), slog.Bool("dry_run", dryRun))

	migrated, failed := 0, 0
	for i, p := range providers {
		logger := slog.With(slog.String("provider", p), slog.Int("index", i+1), slog.Int("total", len(providers)))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			migrated++
			continue
		}
		access, refresh, expiry, scope, err := src.GetOAuthToken(ctx, p)
		if err == nil {
			err = dst.UpsertOAuthToken(ctx, p, access, refresh, expiry, scope)
		}
		if err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			failed++
			continue
		}
		logger.Info("migrated token successfully")
		migrated++
	}

	slog.Info("migration summary",
		slog.Int("total", len(providers)),
		slog.Int("migrated", migrated),
		slog.Int("errors", failed),
		slog.Bool("dry_run", dryRun))
	if failed > 0 {
		return migrated, fmt.Errorf("migration completed with %d errors", failed)
	}
	return migrated, nil
}
