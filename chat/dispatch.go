package chat

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chat-bridge/telemetry"
)

// Dispatch hands msg to every subscriber registered when the call starts. In blocking mode
// each subscriber is awaited before the next one runs. A subscriber that returns an error or
// panics is logged and skipped; the others still receive the message.
func (s *Session) Dispatch(ctx context.Context, msg Message) {
	subs := s.subs.Snapshot()
	ctx = telemetry.WithCorrelation(ctx, msg.ID)
	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.dispatch", telemetry.ChatAttrs(msg.Channel, msg.User)...)
	defer span.End()

	failed := 0
	telemetry.TimeFunc(telemetry.DispatchObserver(s.cfg.Channel), func() {
		for _, sub := range subs {
			if s.cfg.DispatchMode == DispatchAsync {
				go s.deliver(ctx, sub, msg)
				continue
			}
			if !s.deliver(ctx, sub, msg) {
				failed++
			}
		}
	})
	if failed == 0 {
		telemetry.SetSpanSuccess(span)
	} else {
		span.SetAttributes(attribute.Int("chat.subscriber_failures", failed))
		telemetry.RecordError(span, fmt.Errorf("%d subscriber(s) failed", failed))
	}
	s.dispatched.Add(1)
	telemetry.Inc(telemetry.MessagesDispatched, s.cfg.Channel)
}

// deliver reports whether sub handled msg without error or panic.
func (s *Session) deliver(ctx context.Context, sub Subscriber, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			telemetry.Inc(telemetry.SubscriberErrors, s.cfg.Channel)
			s.log.Error("subscriber panicked", slog.String("msg_id", msg.ID), slog.String("subscriber", fmt.Sprintf("%T", sub)), slog.Any("panic", r))
		}
	}()
	if err := sub.HandleMessage(ctx, msg); err != nil {
		telemetry.Inc(telemetry.SubscriberErrors, s.cfg.Channel)
		s.log.Warn("subscriber failed", slog.String("msg_id", msg.ID), slog.String("subscriber", fmt.Sprintf("%T", sub)), slog.Any("err", err))
		return false
	}
	return true
}
