package kafka

import (
	"context"
	"log/slog"

	"github.com/pinboard/event-delivery-service/infra/broker"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
	"github.com/pinboard/event-delivery-service/internal/service"
)

// HandlerFunc applies one decoded envelope.
type HandlerFunc func(ctx context.Context, env *event.Envelope) error

// Routes is the topic registration table. It is built once at startup and only read afterwards.
type Routes map[string]HandlerFunc

// NewRoutes binds every event stream topic to the counter maintainer.
func NewRoutes(topics broker.Topics, processor service.Processor, logger *slog.Logger) Routes {
	configs := []struct {
		name    string
		topic   string
		handler HandlerFunc
	}{
		{"ON_CHAT_EVENT", topics.Chat, processor.Process},
		{"ON_CONTENT_EVENT", topics.Content, processor.Process},
		{"ON_USER_EVENT", topics.User, processor.Process},
	}

	routes := make(Routes, len(configs))
	for _, c := range configs {
		if c.topic == "" {
			logger.Warn("ROUTE_DISABLED", "route", c.name)
			continue
		}
		routes[c.topic] = c.handler
		logger.Info("ROUTE_REGISTERED", "route", c.name, "topic", c.topic)
	}
	return routes
}

// Topics lists the subscribed topics.
func (r Routes) Topics() []string {
	out := make([]string, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	return out
}
