// Package oauth keeps the bot's stored Twitch token fresh. It performs jittered checks
// and refreshes when expiry falls within a configured window, so the chat session picks
// up a valid credential on its next reconnect.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/chat-bridge/telemetry"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// Store is the persisted token row the refresher reads and rewrites.
type Store interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// Result of a single check.
type Result string

const (
	ResultSkipped   Result = "skipped"
	ResultRefreshed Result = "refreshed"
	ResultFailed    Result = "failed"
)

// CheckOnce refreshes provider's token if it expires within window. Rows without a
// refresh token, or still outside the window, are skipped.
func CheckOnce(ctx context.Context, store Store, provider string, window time.Duration, fn RefreshFunc) (Result, error) {
	_, rt, exp, scope, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		return ResultFailed, err
	}
	if rt == "" || time.Until(exp) > window {
		return ResultSkipped, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
	cancel()
	if err != nil {
		return ResultFailed, err
	}
	if newAT == "" {
		return ResultFailed, errors.New("refresh returned empty access token")
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := store.UpsertOAuthToken(ctx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return ResultFailed, err
	}
	return ResultRefreshed, nil
}

// StartRefresher launches a goroutine that periodically checks a stored token and refreshes it.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store Store, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	go func() {
		// A first check runs right away so an already-stale token is fixed before the
		// chat session needs it.
		runCheck(ctx, store, provider, window, fn)
		for {
			// Per-iteration jitter (+/-20% of interval) spreads load across instances.
			jitterRange := int64(interval / 5)
			var jitter time.Duration
			if jitterRange > 0 {
				//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
				jitter = time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
			}
			runCheck(ctx, store, provider, window, fn)
		}
	}()
}

func runCheck(ctx context.Context, store Store, provider string, window time.Duration, fn RefreshFunc) {
	res, err := CheckOnce(ctx, store, provider, window, fn)
	if res != ResultSkipped {
		telemetry.Inc(telemetry.TokenRefreshes, provider, string(res))
	}
	switch {
	case err != nil:
		if ctx.Err() == nil {
			slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
		}
	case res == ResultRefreshed:
		slog.Info("token refreshed", slog.String("provider", provider))
	}
}
