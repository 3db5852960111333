package service

import (
	"context"
	"fmt"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (Websocket/Long-poll)
type Deliverer interface {
	Join(ctx context.Context, identity model.Identity) (registry.Connector, error)
	Leave(conn registry.Connector)
	Subscribe(conn registry.Connector, destination string) error
	Unsubscribe(conn registry.Connector, destination string)
}

type DeliveryService struct {
	hub        registry.Hubber
	bufferSize int
	metrics    *metrics.Metrics
}

func NewDeliveryService(hub registry.Hubber, cfg *config.Config, m *metrics.Metrics) *DeliveryService {
	return &DeliveryService{
		hub:        hub,
		bufferSize: cfg.Realtime.SessionBuffer,
		metrics:    m,
	}
}

// [JOIN] binds a new session to an identity that was verified at handshake
func (s *DeliveryService) Join(ctx context.Context, identity model.Identity) (registry.Connector, error) {
	conn := registry.NewConnector(ctx, identity, s.bufferSize)
	if err := s.hub.Register(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("delivery: join %s: %w", identity.UserID, err)
	}
	s.metrics.Connections.Inc()
	return conn, nil
}

// [LEAVE] destroys the session together with its subscriptions
func (s *DeliveryService) Leave(conn registry.Connector) {
	s.hub.Unregister(conn)
	s.metrics.Connections.Dec()
}

func (s *DeliveryService) Subscribe(conn registry.Connector, destination string) error {
	return s.hub.Subscribe(conn, destination)
}

func (s *DeliveryService) Unsubscribe(conn registry.Connector, destination string) {
	s.hub.Unsubscribe(conn, destination)
}
