// Package relay routes real-time pushes to the node that holds the recipient's sessions.
//
// The broker hands each envelope to one consumer in the group, but the recipient may be
// connected to any node. A Pusher hides where the session lives:
//
//   - local: deliver straight into this node's hub (single node deployments, tests).
//   - gochannel / amqp: publish onto a fan-out bus; every node's relay router delivers
//     the push to its own hub and ignores users it does not hold.
package relay

import (
	"context"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
)

// Pusher defines the outbound real-time contract used by services.
type Pusher interface {
	PushToUser(ctx context.Context, userID string, p *model.Push) error
	PushToTopic(ctx context.Context, topic string, p *model.Push) error
}

var _ Pusher = (*LocalPusher)(nil)

type LocalPusher struct {
	hub registry.Hubber
}

func NewLocalPusher(hub registry.Hubber) *LocalPusher {
	return &LocalPusher{hub: hub}
}

// PushToUser never fails: an offline user simply does not get the push.
func (l *LocalPusher) PushToUser(_ context.Context, userID string, p *model.Push) error {
	l.hub.PublishToUser(userID, p)
	return nil
}

func (l *LocalPusher) PushToTopic(_ context.Context, topic string, p *model.Push) error {
	l.hub.PublishToTopic(topic, p)
	return nil
}
