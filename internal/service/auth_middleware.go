package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// AuthMiddleware implements [DECORATOR_PATTERN] to add observability
// to credential verification without touching the verifier.
type AuthMiddleware struct {
	Next   Auther
	Logger *slog.Logger
}

func NewAuthMiddleware(next Auther, logger *slog.Logger) Auther {
	return &AuthMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *AuthMiddleware) Inspect(ctx context.Context, token string) (model.Identity, error) {
	start := time.Now()

	id, err := m.Next.Inspect(ctx, token)

	if err != nil {
		m.Logger.Warn("AUTH_REJECTED",
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		m.Logger.Debug("AUTH_ACCEPTED",
			"user_id", id.UserID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return id, err
}
