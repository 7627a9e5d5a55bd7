package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/chat-bridge/chat"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000

	defaultLiveBuffer = 64
)

// ChatSource is the part of a chat session the HTTP surface reads and subscribes to.
type ChatSource interface {
	State() chat.State
	Status() chat.Status
	Register(sub chat.Subscriber) error
	Unregister(sub chat.Subscriber)
}

// Pinger reports database reachability. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// TokenWriter persists the credential obtained through the OAuth flow.
type TokenWriter interface {
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// OAuthConfig holds the Twitch application credentials for the onboarding flow. Enabled is
// set from config.OAuthFlowEnabled; the routes answer 503 while it is false.
type OAuthConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string
}

// Deps are the collaborators of the HTTP surface. DB and Tokens are optional.
type Deps struct {
	Chat             ChatSource
	DB               Pinger
	Tokens           TokenWriter
	OAuth            OAuthConfig
	LiveStreamBuffer int
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	chat       ChatSource
	db         Pinger
	tokens     TokenWriter
	oauth      OAuthConfig
	liveBuffer int
	// checkOrigin gates websocket upgrades; nil keeps gorilla's same-host check.
	checkOrigin func(r *http.Request) bool
	stateStore map[string]time.Time
	stateMu    sync.Mutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	buf := deps.LiveStreamBuffer
	if buf <= 0 {
		buf = defaultLiveBuffer
	}
	return &Handlers{
		chat:       deps.Chat,
		db:         deps.DB,
		tokens:     deps.Tokens,
		oauth:      deps.OAuth,
		liveBuffer: buf,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store. It reports false when the store is full.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	// Refusing new states is better than unbounded growth.
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState removes state and reports whether it was present and unexpired.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}
