package ws

import (
	"context"
	"log/slog"
	"time"

	wsmarshaller "github.com/pinboard/event-delivery-service/internal/handler/marshaller/ws"
	"github.com/pinboard/event-delivery-service/internal/service"
)

// FrameHandler processes one inbound frame of a session.
type FrameHandler func(ctx context.Context, s *session, f *wsmarshaller.ClientFrame) error

// FrameInterceptor wraps a FrameHandler with a cross-cutting concern.
type FrameInterceptor func(next FrameHandler) FrameHandler

// chain applies interceptors so that the first one listed runs first.
func chain(h FrameHandler, interceptors ...FrameInterceptor) FrameHandler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// authInterceptor rejects every frame once the session identity has expired.
func authInterceptor(now func() time.Time) FrameInterceptor {
	return func(next FrameHandler) FrameHandler {
		return func(ctx context.Context, s *session, f *wsmarshaller.ClientFrame) error {
			if !s.identity.Valid(now()) {
				return service.ErrUnauthenticated
			}
			return next(ctx, s, f)
		}
	}
}

func loggingInterceptor(logger *slog.Logger) FrameInterceptor {
	return func(next FrameHandler) FrameHandler {
		return func(ctx context.Context, s *session, f *wsmarshaller.ClientFrame) error {
			start := time.Now()
			err := next(ctx, s, f)

			attrs := []any{
				"command", f.Command,
				"destination", f.Destination,
				"user_id", s.identity.UserID,
				"conn_id", s.conn.GetID(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("WS_FRAME_FAILED", append(attrs, "err", err)...)
			} else {
				logger.Debug("WS_FRAME", attrs...)
			}
			return err
		}
	}
}
