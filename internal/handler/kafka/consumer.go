package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Shopify/sarama"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
)

type State int32

const (
	StateStarting State = iota
	StatePolling
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StatePolling:
		return "POLLING"
	case StateProcessing:
		return "PROCESSING"
	default:
		return "STOPPED"
	}
}

// Consumer drives a sarama consumer group over the registered topics.
//
// Each claimed partition runs in its own goroutine and is processed strictly in offset order,
// so one recipient's events are applied in publish order. Parallelism is bounded by the
// partition count.
type Consumer struct {
	group   sarama.ConsumerGroup
	routes  Routes
	metrics *metrics.Metrics
	logger  *slog.Logger

	state    atomic.Int32
	inflight atomic.Int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewConsumer(group sarama.ConsumerGroup, routes Routes, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	c := &Consumer{group: group, routes: routes, metrics: m, logger: logger}
	c.state.Store(int32(StateStarting))
	return c
}

func (c *Consumer) State() State { return State(c.state.Load()) }

// Start joins the group and returns immediately; consumption runs until Stop.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.routes) == 0 {
		return errors.New("kafka consumer: no routes registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	topics := c.routes.Topics()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.Error("CONSUMER_GROUP_ERROR", "err", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		handler := &groupHandler{consumer: c}
		for {
			// Consume returns on every rebalance and must be called again.
			if err := c.group.Consume(ctx, topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("CONSUME_FAILED", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.logger.Info("KAFKA_CONSUMER_STARTED", "topics", topics)
	return nil
}

// Stop leaves the group. Envelopes cut short by the cancellation keep their offsets unmarked.
func (c *Consumer) Stop() error {
	var err error
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if cerr := c.group.Close(); cerr != nil {
			err = fmt.Errorf("kafka consumer: close: %w", cerr)
		}
		c.wg.Wait()
		c.state.Store(int32(StateStopped))
		c.logger.Info("KAFKA_CONSUMER_STOPPED")
	})
	return err
}

func (c *Consumer) enter() {
	if c.inflight.Add(1) == 1 {
		c.state.CompareAndSwap(int32(StatePolling), int32(StateProcessing))
	}
}

func (c *Consumer) leave() {
	if c.inflight.Add(-1) == 0 {
		c.state.CompareAndSwap(int32(StateProcessing), int32(StatePolling))
	}
}

// handle never fails the partition: malformed, unrouted and failing envelopes are logged and skipped.
// It reports false only when the session context ended before the envelope was applied;
// that offset must stay unmarked so the next group member redelivers it.
func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) (commit bool) {
	c.enter()
	defer c.leave()

	commit = true
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "failed"
			c.logger.Error("PANIC_RECOVERED",
				"err", r,
				"stack", string(debug.Stack()),
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset)
		}
		c.metrics.Consumed.WithLabelValues(msg.Topic, outcome).Inc()
	}()

	route, ok := c.routes[msg.Topic]
	if !ok {
		outcome = "unrouted"
		c.logger.Warn("ROUTE_NOT_FOUND", "topic", msg.Topic, "offset", msg.Offset)
		return
	}

	env, err := event.Decode(msg.Value)
	if err != nil {
		outcome = "malformed"
		c.logger.Error("DECODE_FAILED", "err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return
	}

	if err := route(ctx, env); err != nil {
		if ctx.Err() != nil {
			outcome = "interrupted"
			c.logger.Warn("ENVELOPE_INTERRUPTED",
				"err", err,
				"event_id", env.ID,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset)
			return false
		}
		outcome = "failed"
		c.logger.Error("ENVELOPE_SKIPPED",
			"err", err,
			"event_id", env.ID,
			"type", env.Type,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset)
		return
	}

	c.logger.Debug("ENVELOPE_APPLIED", "event_id", env.ID, "type", env.Type, "partition", msg.Partition, "offset", msg.Offset)
	return commit
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.consumer.state.CompareAndSwap(int32(StateStarting), int32(StatePolling))
	h.consumer.logger.Info("CONSUMER_GROUP_SETUP", "member_id", sess.MemberID(), "claims", sess.Claims())
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("CONSUMER_GROUP_CLEANUP", "member_id", sess.MemberID())
	return nil
}

// ConsumeClaim processes one partition sequentially. The offset is marked even for skipped
// envelopes so no single envelope can block its partition. An envelope interrupted by
// shutdown or rebalance ends the claim unmarked, and so does everything after it.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.consumer.handle(sess.Context(), msg) {
				return nil
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
