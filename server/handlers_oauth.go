package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-bridge/telemetry"
	"github.com/onnwee/chat-bridge/twitchapi"
)

const oauthStateTTL = 10 * time.Minute

func (h *Handlers) oauthReady() bool {
	return h.tokens != nil && h.oauth.Enabled
}

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if !h.oauthReady() {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_REDIRECT_URI and DB_DSN)", http.StatusServiceUnavailable)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	authURL, err := twitchapi.BuildAuthorizeURL(h.oauth.ClientID, h.oauth.RedirectURI, h.oauth.Scopes, st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback handles the OAuth callback from Twitch and stores tokens.
// The running session picks the new credential up on its next connect.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !h.oauthReady() {
		http.Error(w, "oauth not configured", http.StatusServiceUnavailable)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx, slog.Default())

	tok, err := twitchapi.ExchangeAuthCode(ctx, h.oauth.ClientID, h.oauth.ClientSecret, code, h.oauth.RedirectURI)
	if err != nil {
		logger.Warn("twitch code exchange failed", slog.Any("err", err))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	if err := h.tokens.UpsertOAuthToken(ctx, twitchapi.Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, tok.Scope); err != nil {
		logger.Error("persist twitch token failed", slog.Any("err", err))
		http.Error(w, "persist token failed", http.StatusInternalServerError)
		return
	}
	logger.Info("twitch token stored", slog.String("scope", tok.Scope), slog.Time("expires_at", tok.Expiry))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scope": tok.Scope, "expires_at": tok.Expiry})
}
