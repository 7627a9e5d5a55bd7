// Package db provides the Postgres connection, schema migrations and the oauth_tokens store
// the chat session reads its IRC credential from.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chat-bridge/crypto"
)

const (
	encryptionPlaintext = 0
	encryptionAESGCM    = 1
	defaultKeyID        = "default"
)

// Connect opens a Postgres connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DB_DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return database, nil
}

// TokenStore reads and writes rows of oauth_tokens. With a non-nil Enc, tokens are written
// encrypted (encryption_version=1); plaintext rows (version 0) are always readable.
type TokenStore struct {
	DB  *sql.DB
	Enc crypto.Encryptor
}

// NewTokenStore returns a store for database. An empty encryptionKey stores tokens in
// plaintext, which is logged as a warning.
func NewTokenStore(database *sql.DB, encryptionKey string) (*TokenStore, error) {
	ts := &TokenStore{DB: database}
	if encryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
		return ts, nil
	}
	enc, err := crypto.NewAESEncryptor(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	ts.Enc = enc
	slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	return ts, nil
}

// UpsertOAuthToken stores or replaces the token row for provider.
func (s *TokenStore) UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	version, keyID := encryptionPlaintext, ""
	if s.Enc != nil {
		version, keyID = encryptionAESGCM, defaultKeyID
		var err error
		if access, err = crypto.EncryptString(s.Enc, access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = crypto.EncryptString(s.Enc, refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=NOW()`
	_, err := s.DB.ExecContext(ctx, q, provider, access, refresh, expiry, scope, version, keyID)
	return err
}

// GetOAuthToken returns the stored token for provider, or zero values when there is none.
func (s *TokenStore) GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var version int
	var exp sql.NullTime
	var acc, ref, sc sql.NullString
	row := s.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, COALESCE(encryption_version, 0)
		 FROM oauth_tokens WHERE provider = $1`, provider)
	err = row.Scan(&acc, &ref, &exp, &sc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	access, refresh, expiry, scope = acc.String, ref.String, exp.Time, sc.String

	if version == encryptionAESGCM {
		if s.Enc == nil {
			return "", "", time.Time{}, "", errors.New("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if access, err = crypto.DecryptString(s.Enc, access); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("decrypt access token: %w", err)
		}
		if refresh, err = crypto.DecryptString(s.Enc, refresh); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return access, refresh, expiry, scope, nil
}

// PlaintextProviders lists providers whose rows are stored unencrypted.
func (s *TokenStore) PlaintextProviders(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0 ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

