package cmd

import (
	"github.com/pinboard/event-delivery-service/config"
	clientdi "github.com/pinboard/event-delivery-service/infra/client/di"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	httpsrv "github.com/pinboard/event-delivery-service/infra/server/http"
	"github.com/pinboard/event-delivery-service/internal/adapter/pubsub"
	"github.com/pinboard/event-delivery-service/internal/adapter/relay"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	kafkahandler "github.com/pinboard/event-delivery-service/internal/handler/kafka"
	"github.com/pinboard/event-delivery-service/internal/handler/rest"
	"github.com/pinboard/event-delivery-service/internal/service"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		Options(cfg),
		fx.WithLogger(ProvideFxLogger),
		fx.StopTimeout(cfg.Service.ShutdownTimeout),
	)
}

// Options is the full dependency graph of the server.
func Options(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideSlog,
			ProvideWatermillLogger,
			metrics.New,
		),
		fx.Invoke(WatchLogLevel),
		clientdi.Module,
		pubsub.Module,
		registry.Module,
		relay.Module,
		service.Module,
		kafkahandler.Module,
		rest.Module,
		httpsrv.Module,
	)
}
