package service

import (
	"log/slog"

	"github.com/pinboard/event-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			NewDeliveryService,
			fx.As(new(Deliverer)),
		),
		fx.Annotate(
			func(cfg *config.Config) *AuthService { return NewAuthService(cfg.Auth) },
			fx.As(new(Auther)),
		),
		fx.Annotate(
			NewUnreadService,
			fx.As(new(Unreader)),
		),
		fx.Annotate(
			NewChatService,
			fx.As(new(Chatter)),
		),
		NewCleaner,
		NewNotifier,
		func(n *Notifier) Processor { return n },
	),

	// [DECORATION_LAYER] Intercept Auther to add cross-cutting concerns
	fx.Decorate(func(orig Auther, logger *slog.Logger) Auther {
		return NewAuthMiddleware(orig, logger)
	}),
)
