package relay

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
)

const HandlerName = "RELAY_TO_HUB"

// Handler delivers relayed pushes into the local hub.
type Handler struct {
	hub    registry.Hubber
	logger *slog.Logger
}

func NewHandler(hub registry.Hubber, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func NewRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("relay: router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// Register attaches the relay consumer to router. Each node consumes every relayed push.
func (h *Handler) Register(router *message.Router, sub message.Subscriber, topic string) {
	router.AddConsumerHandler(HandlerName, topic, sub, h.Handle).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(h.logger),
	)
	h.logger.Info("RELAY_PIPELINE_READY", "topic", topic)
}

// Handle always acknowledges: a push that cannot be decoded or has no local session
// is dropped, the unread counter keeps the durable record.
func (h *Handler) Handle(msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("PANIC_RECOVERED",
				"err", r,
				"stack", string(debug.Stack()),
				"msg_id", msg.UUID)
			err = nil
		}
	}()

	env, push, err := decode(msg.Payload)
	if err != nil {
		h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
		return nil
	}

	if env.Topic != "" {
		h.hub.PublishToTopic(env.Topic, push)
		return nil
	}

	// [LOCALITY_FILTER] users held by other nodes are their business
	if !h.hub.IsConnected(env.UserID) {
		return nil
	}
	h.hub.PublishToUser(env.UserID, push)
	return nil
}
