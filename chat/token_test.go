package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
	"time"
)

type fakeStore struct {
	access string
	err    error
}

func (f fakeStore) GetOAuthToken(context.Context, string) (string, string, time.Time, string, error) {
	return f.access, "", time.Time{}, "", f.err
}

func TestStoredToken(t *testing.T) {
	ctx := context.Background()
	tok, err := StoredToken{Store: fakeStore{access: "abc"}, Provider: "twitch"}.Token(ctx)
	if err != nil || tok != "oauth:abc" {
		t.Errorf("Token = %q, %v; want oauth:abc", tok, err)
	}
	if _, err := (StoredToken{Store: fakeStore{}, Provider: "twitch"}).Token(ctx); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := (StoredToken{Store: fakeStore{err: errors.New("db down")}, Provider: "twitch"}).Token(ctx); err == nil {
		t.Error("expected store error to propagate")
	}
}

func TestStaticToken(t *testing.T) {
	if tok, err := StaticToken("oauth:x").Token(context.Background()); err != nil || tok != "oauth:x" {
		t.Errorf("Token = %q, %v", tok, err)
	}
	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestWithOAuthPrefix(t *testing.T) {
	if got := WithOAuthPrefix("abc"); got != "oauth:abc" {
		t.Errorf("got %q", got)
	}
	if got := WithOAuthPrefix("oauth:abc"); got != "oauth:abc" {
		t.Errorf("got %q", got)
	}
}

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("subscriber failed"), false},
		{io.EOF, true},
		{net.ErrClosed, true},
		{syscall.ECONNRESET, true},
		{&net.OpError{Op: "read", Err: syscall.EPIPE}, true},
		{&ConnectionError{Addr: "x:1", Err: errors.New("refused")}, true},
		{ErrNotConnected, true},
	}
	for _, tt := range tests {
		if got := IsTransportError(tt.err); got != tt.want {
			t.Errorf("IsTransportError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{StateDisconnected: "disconnected", StateConnected: "connected", StateStreaming: "streaming"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
