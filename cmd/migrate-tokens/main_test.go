package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

type row struct {
	access, refresh, scope string
	expiry                 time.Time
	encrypted              bool
}

// memTokens plays both sides: reads list plaintext rows, writes mark rows encrypted.
type memTokens struct {
	rows     map[string]*row
	failFor  string
	writeErr error
}

func (m *memTokens) PlaintextProviders(context.Context) ([]string, error) {
	var out []string
	for _, p := range []string{"a", "b", "twitch"} {
		if r, ok := m.rows[p]; ok && !r.encrypted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memTokens) GetOAuthToken(_ context.Context, p string) (string, string, time.Time, string, error) {
	r := m.rows[p]
	return r.access, r.refresh, r.expiry, r.scope, nil
}

func (m *memTokens) UpsertOAuthToken(_ context.Context, p, access, refresh string, expiry time.Time, scope string) error {
	if p == m.failFor {
		return m.writeErr
	}
	m.rows[p] = &row{access: access, refresh: refresh, expiry: expiry, scope: scope, encrypted: true}
	return nil
}

func newMem() *memTokens {
	exp := time.Now().Add(time.Hour)
	return &memTokens{rows: map[string]*row{
		"twitch": {access: "acc", refresh: "ref", scope: "chat:read", expiry: exp},
		"a":      {access: "x", expiry: exp},
		"b":      {access: "y", expiry: exp, encrypted: true},
	}}
}

func TestMigrateTokensDryRun(t *testing.T) {
	m := newMem()
	n, err := migrateTokens(context.Background(), m, m, true, "")
	if err != nil || n != 2 {
		t.Fatalf("got %d, %v", n, err)
	}
	if m.rows["twitch"].encrypted || m.rows["a"].encrypted {
		t.Error("dry run must not write")
	}
}

func TestMigrateTokensAll(t *testing.T) {
	m := newMem()
	n, err := migrateTokens(context.Background(), m, m, false, "")
	if err != nil || n != 2 {
		t.Fatalf("got %d, %v", n, err)
	}
	r := m.rows["twitch"]
	if !r.encrypted || r.access != "acc" || r.refresh != "ref" || r.scope != "chat:read" {
		t.Errorf("twitch row = %+v", r)
	}

	// A second run finds nothing left.
	if n, err := migrateTokens(context.Background(), m, m, false, ""); err != nil || n != 0 {
		t.Errorf("second run got %d, %v", n, err)
	}
}

func TestMigrateTokensProviderFilter(t *testing.T) {
	m := newMem()
	n, err := migrateTokens(context.Background(), m, m, false, "twitch")
	if err != nil || n != 1 {
		t.Fatalf("got %d, %v", n, err)
	}
	if m.rows["a"].encrypted {
		t.Error("filtered-out provider was migrated")
	}
}

func TestMigrateTokensReportsErrors(t *testing.T) {
	m := newMem()
	m.failFor, m.writeErr = "a", errors.New("boom")
	n, err := migrateTokens(context.Background(), m, m, false, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 || !m.rows["twitch"].encrypted {
		t.Errorf("other rows should still migrate: n=%d", n)
	}
}
