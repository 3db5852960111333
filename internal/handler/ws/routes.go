package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/service"
)

var (
	errRouteNotFound = errors.New("ws: no application route for destination")
	errBadBody       = errors.New("ws: bad frame body")
)

// Route handles a SEND addressed to an application destination.
type Route func(ctx context.Context, identity model.Identity, body json.RawMessage) error

// readBody is the body of /app/notifications.read.
type readBody struct {
	Count int64 `json:"count"`
}

// NewRoutes builds the application route table once at startup.
func NewRoutes(appPrefix string, chatter service.Chatter, unreader service.Unreader) map[string]Route {
	prefix := strings.TrimSuffix(appPrefix, "/")

	return map[string]Route{
		prefix + "/chat.send": func(ctx context.Context, identity model.Identity, body json.RawMessage) error {
			var in service.ChatInput
			if err := decodeBody(body, &in); err != nil {
				return err
			}
			_, err := chatter.Send(ctx, identity, in)
			return err
		},
		prefix + "/notifications.read": func(ctx context.Context, identity model.Identity, body json.RawMessage) error {
			var in readBody
			if err := decodeBody(body, &in); err != nil {
				return err
			}
			_, err := unreader.MarkRead(ctx, identity, in.Count)
			return err
		},
		prefix + "/notifications.read-all": func(ctx context.Context, identity model.Identity, _ json.RawMessage) error {
			return unreader.MarkAllRead(ctx, identity)
		},
	}
}

func decodeBody(body json.RawMessage, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty", errBadBody)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
