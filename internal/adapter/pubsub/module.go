package pubsub

import (
	"context"
	"log/slog"

	"github.com/Shopify/sarama"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/broker"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("publisher",
	fx.Provide(
		fx.Annotate(
			NewPublisherProvider,
			fx.As(new(EventPublisher)),
		),
	),
)

// NewPublisherProvider builds the publisher and flushes it on shutdown.
func NewPublisherProvider(lc fx.Lifecycle, producer sarama.AsyncProducer, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	p := NewPublisher(producer, Options{
		Topics:       broker.TopicsFrom(cfg.Kafka.Topics),
		FallbackKey:  cfg.Kafka.FallbackKey,
		FlushTimeout: cfg.Kafka.FlushTimeout,
	}, m, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})
	return p
}
