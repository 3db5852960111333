package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pinboard/event-delivery-service/infra/broker"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderTraceID   = "trace_id"
)

var ErrPublisherClosed = errors.New("publisher: closed")

// EventPublisher defines the contract for outgoing envelopes.
// Publish is fire-and-forget: it never waits on the broker and never reports transport failures.
type EventPublisher interface {
	Publish(ctx context.Context, env *event.Envelope) error
	Close() error
}

var _ EventPublisher = (*Publisher)(nil)

// Publisher hands envelopes to a sarama AsyncProducer keyed by recipient.
type Publisher struct {
	producer     sarama.AsyncProducer
	topics       broker.Topics
	fallbackKey  string
	flushTimeout time.Duration
	metrics      *metrics.Metrics
	log          *slog.Logger

	// [INPUT_GUARD] sending on Input after AsyncClose panics
	mu     sync.RWMutex
	closed bool

	drained chan struct{}
}

type Options struct {
	Topics       broker.Topics
	FallbackKey  string
	FlushTimeout time.Duration
}

func NewPublisher(producer sarama.AsyncProducer, opts Options, m *metrics.Metrics, log *slog.Logger) *Publisher {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	p := &Publisher{
		producer:     producer,
		topics:       opts.Topics,
		fallbackKey:  opts.FallbackKey,
		flushTimeout: opts.FlushTimeout,
		metrics:      m,
		log:          log,
		drained:      make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish validates and enqueues env. Only invalid envelopes are reported to the caller;
// a full producer buffer or a closed publisher drops the envelope with a log record.
func (p *Publisher) Publish(ctx context.Context, env *event.Envelope) error {
	if env == nil {
		return fmt.Errorf("publisher: nil envelope: %w", event.ErrMalformed)
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	topic, err := p.topics.TopicFor(env.Type)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("publisher: encode: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(env.RoutingKey(p.fallbackKey)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventID), Value: []byte(env.ID)},
			{Key: []byte(HeaderEventType), Value: []byte(env.Type)},
			{Key: []byte(HeaderTraceID), Value: []byte(env.TraceID)},
		},
		Metadata: env.ID,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped(topic, env, ErrPublisherClosed)
		return nil
	}

	select {
	case p.producer.Input() <- msg:
		p.metrics.Published.WithLabelValues(topic, "queued").Inc()
	case <-ctx.Done():
		p.dropped(topic, env, ctx.Err())
	default:
		// [NO_BACKPRESSURE] the business operation must not wait on the broker
		p.dropped(topic, env, errors.New("producer buffer full"))
	}
	return nil
}

func (p *Publisher) dropped(topic string, env *event.Envelope, reason error) {
	p.metrics.Published.WithLabelValues(topic, "dropped").Inc()
	p.log.Warn("EVENT_DROPPED",
		"topic", topic,
		"event_id", env.ID,
		"type", env.Type,
		"reason", reason,
	)
}

// drain observes delivery results until the producer shuts its channels.
func (p *Publisher) drain() {
	defer close(p.drained)

	successes, failures := p.producer.Successes(), p.producer.Errors()
	for successes != nil || failures != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			p.metrics.Published.WithLabelValues(msg.Topic, "acked").Inc()
			p.log.Debug("EVENT_PUBLISHED",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_id", msg.Metadata,
			)
		case perr, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			p.metrics.Published.WithLabelValues(perr.Msg.Topic, "failed").Inc()
			p.log.Error("EVENT_PUBLISH_FAILED",
				"topic", perr.Msg.Topic,
				"event_id", perr.Msg.Metadata,
				"err", perr.Err,
			)
		}
	}
}

// Close stops accepting envelopes and waits for in-flight sends to complete or fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.producer.AsyncClose()

	select {
	case <-p.drained:
		return nil
	case <-time.After(p.flushTimeout):
		return fmt.Errorf("publisher: flush exceeded %s", p.flushTimeout)
	}
}
