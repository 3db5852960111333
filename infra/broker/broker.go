// Package broker describes the partitioned Kafka topics that carry event envelopes.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
)

var (
	ErrNoTopic           = errors.New("broker: no topic for event type")
	ErrPartitionMismatch = errors.New("broker: topic has fewer partitions than configured")
)

// Topics resolves event streams to topic names.
type Topics struct {
	Chat    string
	Content string
	User    string
}

func TopicsFrom(cfg config.TopicsConfig) Topics {
	return Topics{Chat: cfg.Chat, Content: cfg.Content, User: cfg.User}
}

// All returns the configured topic names in a stable order.
func (t Topics) All() []string {
	return []string{t.Chat, t.Content, t.User}
}

// TopicFor maps message-* to the chat stream, pin-* and comment-* to content, user-* to user.
func (t Topics) TopicFor(typ event.Type) (string, error) {
	switch typ.Stream() {
	case event.StreamChat:
		return t.Chat, nil
	case event.StreamContent:
		return t.Content, nil
	case event.StreamUser:
		return t.User, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrNoTopic, typ)
	}
}

// Partition is the exact function the producer applies to a routing key.
// Equal keys always land in the same partition for a fixed partition count.
func Partition(topic, key string, n int32) (int32, error) {
	msg := &sarama.ProducerMessage{Topic: topic, Key: sarama.StringEncoder(key)}
	return sarama.NewHashPartitioner(topic).Partition(msg, n)
}

// NewSaramaConfig builds client settings shared by the producer, the consumer group and the admin.
func NewSaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("broker: kafka version: %w", err)
	}
	sc.Version = version

	// [ORDERING] one in-flight request per broker keeps per-partition order under retries
	sc.Producer.Idempotent = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.ChannelBufferSize = max(cfg.ProducerBuffer, 1)

	codec, err := compression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	sc.Producer.Compression = codec

	switch strings.ToLower(cfg.InitialOffset) {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	case "newest", "":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		return nil, fmt.Errorf("broker: unknown initial offset %q", cfg.InitialOffset)
	}
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategySticky

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	return sc, nil
}

func compression(name string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("broker: unknown compression %q", name)
	}
}

// TopicSpec is the desired shape of one topic.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

func SpecsFrom(cfg config.KafkaConfig) []TopicSpec {
	topics := TopicsFrom(cfg.Topics).All()
	specs := make([]TopicSpec, 0, len(topics))
	for _, name := range topics {
		specs = append(specs, TopicSpec{
			Name:              name,
			Partitions:        cfg.Partitions,
			ReplicationFactor: cfg.ReplicationFactor,
		})
	}
	return specs
}

// EnsureTopics creates missing topics. Existing topics are never shrunk or repartitioned,
// since that would move recipients between partitions; a smaller partition count is reported.
func EnsureTopics(admin sarama.ClusterAdmin, specs []TopicSpec) error {
	var errs []error
	for _, spec := range specs {
		descs, err := admin.DescribeTopics([]string{spec.Name})
		if err != nil {
			return fmt.Errorf("broker: describe %s: %w", spec.Name, err)
		}

		if len(descs) == 1 && descs[0].Err == sarama.ErrNoError {
			current := int32(len(descs[0].Partitions))
			if current < spec.Partitions {
				errs = append(errs, fmt.Errorf("%w: %s has %d, want %d", ErrPartitionMismatch, spec.Name, current, spec.Partitions))
				continue
			}
			slog.Debug("TOPIC_EXISTS", "topic", spec.Name, "partitions", current)
			continue
		}

		minISR := "1"
		if spec.ReplicationFactor >= 3 {
			minISR = "2"
		}
		detail := &sarama.TopicDetail{
			NumPartitions:     spec.Partitions,
			ReplicationFactor: spec.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
			},
		}
		if err := admin.CreateTopic(spec.Name, detail, false); err != nil {
			var te *sarama.TopicError
			if errors.Is(err, sarama.ErrTopicAlreadyExists) || (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) {
				slog.Debug("TOPIC_EXISTS_RACE", "topic", spec.Name)
				continue
			}
			return fmt.Errorf("broker: create %s: %w", spec.Name, err)
		}
		slog.Info("TOPIC_CREATED", "topic", spec.Name, "partitions", spec.Partitions, "rf", spec.ReplicationFactor)
	}
	return errors.Join(errs...)
}

func strPtr(s string) *string { return &s }
