package kafka

import (
	"context"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/broker"
	"go.uber.org/fx"
)

var Module = fx.Module("kafka-consumer",
	fx.Provide(
		func(cfg *config.Config) broker.Topics { return broker.TopicsFrom(cfg.Kafka.Topics) },
		NewRoutes,
		NewConsumer,
	),
	fx.Invoke(func(lc fx.Lifecycle, c *Consumer) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// The start context is cancelled once fx finishes starting; consumption outlives it.
				return c.Start(context.Background())
			},
			OnStop: func(ctx context.Context) error {
				return c.Stop()
			},
		})
	}),
)
