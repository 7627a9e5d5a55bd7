// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters (labelled by channel)
	ConnectAttempts    *prometheus.CounterVec
	ConnectFailures    *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec
	LinesRead          *prometheus.CounterVec // + kind
	PongsSent          *prometheus.CounterVec
	MessagesDispatched *prometheus.CounterVec
	SubscriberErrors   *prometheus.CounterVec

	// Token refresh outcomes (provider, result)
	TokenRefreshes *prometheus.CounterVec

	// Live SSE fan-out
	LiveStreamDropped prometheus.Counter

	// Histograms (seconds)
	DispatchDuration *prometheus.HistogramVec

	// Gauges
	SessionState *prometheus.GaugeVec // 0=disconnected,1=connected,2=streaming
	Subscribers  *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_connect_attempts_total", Help: "IRC connection attempts"}, []string{"channel"})
		ConnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_connect_failures_total", Help: "IRC connection attempts that failed to dial or handshake"}, []string{"channel"})
		Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Completed reconnect procedures after a transport fault"}, []string{"channel"})
		LinesRead = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_lines_read_total", Help: "Inbound IRC lines by classification"}, []string{"channel", "kind"})
		PongsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_pongs_sent_total", Help: "PONG replies written"}, []string{"channel"})
		MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_dispatched_total", Help: "Chat messages fanned out to subscribers"}, []string{"channel"})
		SubscriberErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_subscriber_errors_total", Help: "Subscriber calls that returned an error or panicked"}, []string{"channel"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "oauth_token_refreshes_total", Help: "OAuth token refresh attempts by result"}, []string{"provider", "result"})
		LiveStreamDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_live_stream_dropped_total", Help: "Messages dropped for slow /chat/stream clients"})
		DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chat_dispatch_duration_seconds", Help: "Time to fan one message out to every subscriber", Buckets: prometheus.DefBuckets}, []string{"channel"})
		SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chat_session_state", Help: "Session state: 0=disconnected 1=connected 2=streaming"}, []string{"channel"})
		Subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chat_subscribers", Help: "Currently registered subscribers"}, []string{"channel"})
	})
}

// Inc increments vec for the given labels when metrics are initialised.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec != nil {
		vec.WithLabelValues(labels...).Inc()
	}
}

// SetGauge sets vec for channel when metrics are initialised.
func SetGauge(vec *prometheus.GaugeVec, channel string, v float64) {
	if vec != nil {
		vec.WithLabelValues(channel).Set(v)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// DispatchObserver returns the dispatch histogram for channel, or nil before Init.
func DispatchObserver(channel string) prometheus.Observer {
	if DispatchDuration == nil {
		return nil
	}
	return DispatchDuration.WithLabelValues(channel)
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns base (or the default logger when nil) with a corr attribute if present.
func LoggerWithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("corr", id))
	}
	return base
}
