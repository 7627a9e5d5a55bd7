package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenProvider supplies the PASS credential. It is consulted on every connect attempt.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential, typically TWITCH_OAUTH_TOKEN.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("chat: empty token")
	}
	return string(t), nil
}

// TokenStore is the subset of the oauth_tokens store the chat session reads from.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
}

// StoredToken reads the access token persisted for Provider, so a refreshed token takes
// effect on the next reconnect. Twitch IRC wants the "oauth:" prefix on PASS.
type StoredToken struct {
	Store    TokenStore
	Provider string
}

func (t StoredToken) Token(ctx context.Context) (string, error) {
	access, _, _, _, err := t.Store.GetOAuthToken(ctx, t.Provider)
	if err != nil {
		return "", fmt.Errorf("load %s token: %w", t.Provider, err)
	}
	if access == "" {
		return "", fmt.Errorf("no stored %s token", t.Provider)
	}
	return WithOAuthPrefix(access), nil
}

// WithOAuthPrefix returns token with the "oauth:" prefix Twitch IRC requires.
func WithOAuthPrefix(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
