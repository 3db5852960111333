package relay

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

const (
	MetaOrigin  = "origin"
	MetaTraceID = "trace_id"
)

var _ Pusher = (*BusPusher)(nil)

// BusPusher publishes pushes onto the relay topic. Local sessions are reached through
// this node's own relay router, so one publisher sees a single ordered path.
type BusPusher struct {
	publisher message.Publisher
	topic     string
	nodeID    string
}

func NewBusPusher(publisher message.Publisher, topic, nodeID string) *BusPusher {
	return &BusPusher{publisher: publisher, topic: topic, nodeID: nodeID}
}

func (b *BusPusher) PushToUser(ctx context.Context, userID string, p *model.Push) error {
	return b.publish(ctx, userID, "", p)
}

func (b *BusPusher) PushToTopic(ctx context.Context, topic string, p *model.Push) error {
	return b.publish(ctx, "", topic, p)
}

func (b *BusPusher) publish(ctx context.Context, userID, topic string, p *model.Push) error {
	payload, err := encode(b.nodeID, userID, topic, p)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaOrigin, b.nodeID)
	if traceID, ok := ctx.Value(TraceIDKey{}).(string); ok {
		msg.Metadata.Set(MetaTraceID, traceID)
	}
	msg.SetContext(ctx)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("relay: publish to %s: %w", b.topic, err)
	}
	return nil
}
