package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// setupTestDB connects to TEST_PG_DSN and applies migrations; skipped when unset.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := RunMigrations(database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testKey(t *testing.T) string {
	t.Helper()
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func uniqueProvider(t *testing.T, database *sql.DB) string {
	p := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM oauth_tokens WHERE provider=$1`, p)
	})
	return p
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestNewTokenStoreRejectsBadKey(t *testing.T) {
	if _, err := NewTokenStore(nil, "short"); err == nil {
		t.Error("expected error for invalid key")
	}
	ts, err := NewTokenStore(nil, "")
	if err != nil || ts.Enc != nil {
		t.Errorf("plaintext store = %+v, %v", ts, err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	if err := RunMigrations(database); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
	v, dirty, err := GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion: %v", err)
	}
	if v < 1 || dirty {
		t.Errorf("version = %d dirty = %v, want >= 1 clean", v, dirty)
	}
}

func TestTokenStoreEncryptedRoundTrip(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	store, err := NewTokenStore(database, testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	provider := uniqueProvider(t, database)
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	if err := store.UpsertOAuthToken(ctx, provider, "access-1", "refresh-1", exp, "chat:read"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var raw string
	var version int
	if err := database.QueryRowContext(ctx, `SELECT access_token, encryption_version FROM oauth_tokens WHERE provider=$1`, provider).Scan(&raw, &version); err != nil {
		t.Fatal(err)
	}
	if raw == "access-1" || version != 1 {
		t.Errorf("row not encrypted: access=%q version=%d", raw, version)
	}

	access, refresh, expiry, scope, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" || scope != "chat:read" || !expiry.Equal(exp) {
		t.Errorf("got %q %q %v %q", access, refresh, expiry, scope)
	}

	plain := &TokenStore{DB: database}
	if _, _, _, _, err := plain.GetOAuthToken(ctx, provider); err == nil {
		t.Error("reading an encrypted row without a key should fail")
	}
}

func TestTokenStorePlaintextCompat(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	plain := &TokenStore{DB: database}
	provider := uniqueProvider(t, database)

	if err := plain.UpsertOAuthToken(ctx, provider, "a", "r", time.Now(), ""); err != nil {
		t.Fatal(err)
	}
	providers, err := plain.PlaintextProviders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range providers {
		found = found || p == provider
	}
	if !found {
		t.Errorf("%s missing from plaintext providers %v", provider, providers)
	}

	encStore, _ := NewTokenStore(database, testKey(t))
	if access, _, _, _, err := encStore.GetOAuthToken(ctx, provider); err != nil || access != "a" {
		t.Errorf("encrypting store reading plaintext row = %q, %v", access, err)
	}
}

func TestGetOAuthTokenMissing(t *testing.T) {
	database := setupTestDB(t)
	access, refresh, _, _, err := (&TokenStore{DB: database}).GetOAuthToken(context.Background(), "missing-"+uuid.NewString())
	if err != nil || access != "" || refresh != "" {
		t.Errorf("missing row = %q %q %v", access, refresh, err)
	}
}
