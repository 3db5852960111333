package rest

import (
	"log/slog"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/handler/kafka"
	"github.com/pinboard/event-delivery-service/internal/handler/lp"
	"github.com/pinboard/event-delivery-service/internal/handler/ws"
	"github.com/pinboard/event-delivery-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery-http",
	fx.Provide(
		func(auther service.Auther, cfg *config.Config, logger *slog.Logger) interceptors.AuthMiddleware {
			return interceptors.NewAuthInterceptor(auther, cfg.Auth.Timeout, logger)
		},
		ws.NewWSHandler,
		lp.NewLPHandler,
		NewUnreadHandler,
		NewEventsHandler,
		fx.Annotate(
			NewHealthHandler,
			fx.From(new(*service.Notifier), new(*kafka.Consumer)),
		),
		NewRouter,
	),
)
