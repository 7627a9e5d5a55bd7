package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-bridge/chat"
	"github.com/onnwee/chat-bridge/telemetry"
)

// keepaliveInterval spaces SSE comment frames so idle proxies keep the stream open.
var keepaliveInterval = 15 * time.Second

// HandleChatStream streams live chat as Server-Sent Events. Each client is a subscriber for the
// life of the request; messages that arrive while its buffer is full are dropped.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx, slog.Default())

	ch := make(chan chat.Message, h.liveBuffer)
	sub := chat.NewSubscriber(func(_ context.Context, msg chat.Message) error {
		select {
		case ch <- msg:
		default:
			if telemetry.LiveStreamDropped != nil {
				telemetry.LiveStreamDropped.Inc()
			}
		}
		return nil
	})
	if err := h.chat.Register(sub); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer h.chat.Unregister(sub)

	// The server-wide write timeout would cut the stream.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("clear write deadline", slog.Any("err", err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	flusher.Flush()
	logger.Debug("chat stream opened", slog.String("remote_addr", r.RemoteAddr))

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("chat stream closed", slog.String("remote_addr", r.RemoteAddr))
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
		case msg := <-ch:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warn("encode chat event", slog.Any("err", err))
				continue
			}
			if _, err := w.Write([]byte("id: " + msg.ID + "\nevent: message\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(append(data, '\n', '\n')); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}
