package clientdi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shopify/sarama"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/broker"
	redisclient "github.com/pinboard/event-delivery-service/infra/redis"
	"github.com/pinboard/event-delivery-service/internal/adapter/blob"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"go.uber.org/fx"
)

// Module provides the clients of external systems. Each one is closed on app shutdown;
// fx runs stop hooks in reverse, so the shared sarama client outlives its producer and group.
var Module = fx.Module(
	"clients",

	fx.Provide(
		ProvideSaramaClient,
		ProvideAsyncProducer,
		ProvideConsumerGroup,
		ProvideCounterStore,
		ProvideBlobClient,
	),

	// [BOOTSTRAP] topics must exist with the fixed partition count before anyone produces
	fx.Invoke(EnsureTopics),
)

func ProvideSaramaClient(lc fx.Lifecycle, cfg *config.Config) (sarama.Client, error) {
	scfg, err := broker.NewSaramaConfig(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(cfg.Kafka.Brokers, scfg)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// ProvideAsyncProducer shares the client; the publisher owns closing it.
func ProvideAsyncProducer(client sarama.Client) (sarama.AsyncProducer, error) {
	producer, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideConsumerGroup shares the client; the consumer owns closing the group.
func ProvideConsumerGroup(client sarama.Client, cfg *config.Config) (sarama.ConsumerGroup, error) {
	group, err := sarama.NewConsumerGroupFromClient(cfg.Kafka.GroupID, client)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	return group, nil
}

func EnsureTopics(client sarama.Client, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Kafka.EnsureTopics {
		return nil
	}
	// Closing the admin would close the shared client, so it is left to the client hook.
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		return fmt.Errorf("kafka admin: %w", err)
	}
	if err := broker.EnsureTopics(admin, broker.SpecsFrom(cfg.Kafka)); err != nil {
		return err
	}
	logger.Info("KAFKA_TOPICS_READY", "topics", broker.TopicsFrom(cfg.Kafka.Topics).All(), "partitions", cfg.Kafka.Partitions)
	return nil
}

// ProvideCounterStore picks the counter backend by driver.
func ProvideCounterStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (counter.Store, error) {
	switch cfg.Counter.Driver {
	case "memory":
		logger.Warn("COUNTER_STORE_IN_MEMORY", "hint", "counts are lost on restart and not shared between nodes")
		return counter.NewMemoryStore(), nil

	case "redis":
		rdb, err := redisclient.NewClient(context.Background(), cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return rdb.Close()
			},
		})
		return counter.NewRedisStore(rdb, cfg.Counter.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("counter: unknown driver %q", cfg.Counter.Driver)
	}
}

// ProvideBlobClient returns a nil client when cleanup is disabled.
func ProvideBlobClient(cfg *config.Config, logger *slog.Logger) (blob.Client, error) {
	if !cfg.Blob.Enabled {
		return nil, nil
	}
	s3c, err := blob.NewS3ClientFromConfig(cfg.Blob)
	if err != nil {
		return nil, err
	}
	return blob.NewGuarded(s3c, cfg.Blob.Breaker, logger), nil
}
