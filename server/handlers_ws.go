package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-bridge/chat"
	"github.com/onnwee/chat-bridge/telemetry"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	// The feed is read-only; inbound frames are only control traffic.
	wsMaxInbound = 512
)

// HandleChatWebSocket streams live chat as JSON text frames. Like /chat/stream, each client is a
// subscriber with a bounded buffer and slow clients lose messages rather than stall dispatch.
func (h *Handlers) HandleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := telemetry.LoggerWithCorr(r.Context(), slog.Default())

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

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
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"), time.Now().Add(wsWriteWait))
		return
	}
	defer h.chat.Unregister(sub)
	logger.Debug("chat websocket opened", slog.String("remote_addr", r.RemoteAddr))

	// The read pump only services pongs and close frames; it ends when the peer goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsMaxInbound)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
					!errors.Is(err, websocket.ErrReadLimit) {
					logger.Debug("chat websocket read error", slog.Any("err", err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			logger.Debug("chat websocket closed", slog.String("remote_addr", r.RemoteAddr))
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-ch:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warn("encode chat event", slog.Any("err", err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
