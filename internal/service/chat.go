package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/adapter/pubsub"
	"github.com/pinboard/event-delivery-service/internal/adapter/relay"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

var ErrInvalidMessage = errors.New("service: invalid chat message")

var roomName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ChatInput is what a client sends to /app/chat.send. Exactly one of RecipientID and Room is set.
type ChatInput struct {
	RecipientID string `json:"recipient_id,omitempty"`
	Room        string `json:"room,omitempty"`
	Text        string `json:"text,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
}

type Chatter interface {
	Send(ctx context.Context, identity model.Identity, in ChatInput) (model.ChatMessage, error)
}

var _ Chatter = (*ChatService)(nil)

// ChatService is the direct low-latency path: pushes go out before the envelope is published.
type ChatService struct {
	pusher    relay.Pusher
	publisher pubsub.EventPublisher
	dest      Destinations
	logger    *slog.Logger
	now       func() time.Time
}

func NewChatService(pusher relay.Pusher, publisher pubsub.EventPublisher, cfg *config.Config, logger *slog.Logger) *ChatService {
	return &ChatService{
		pusher:    pusher,
		publisher: publisher,
		dest:      DestinationsFrom(cfg.Realtime),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ChatService) Send(ctx context.Context, identity model.Identity, in ChatInput) (model.ChatMessage, error) {
	if !identity.Valid(s.now()) {
		return model.ChatMessage{}, ErrUnauthenticated
	}
	if err := validate(in, identity.UserID); err != nil {
		return model.ChatMessage{}, err
	}

	msg := model.ChatMessage{
		ID:          uuid.NewString(),
		SenderID:    identity.UserID,
		RecipientID: in.RecipientID,
		Room:        in.Room,
		Text:        in.Text,
		ImageRef:    in.ImageRef,
		SentAt:      s.now().UnixMilli(),
	}

	// [ROOM] broadcast only, nobody's counter moves
	if in.Room != "" {
		dest := s.dest.Room(in.Room)
		if err := s.pusher.PushToTopic(ctx, dest, model.NewPush(model.KindChatMessage, dest, msg)); err != nil {
			s.logger.Warn("CHAT_PUSH_FAILED", "room", in.Room, "err", err)
		}
		return msg, nil
	}

	// [DIRECT] recipient first, then the sender's other devices
	p := model.NewPush(model.KindChatMessage, s.dest.Messages, msg)
	for _, userID := range []string{in.RecipientID, identity.UserID} {
		if err := s.pusher.PushToUser(ctx, userID, p); err != nil {
			s.logger.Warn("CHAT_PUSH_FAILED", "user_id", userID, "msg_id", msg.ID, "err", err)
		}
	}

	// [COUNTER_PATH] the broker round trip only maintains the recipient's unread count
	env := event.New(event.MessageSent, identity.UserID, in.RecipientID, []string{msg.ID},
		event.WithPreview(truncate(in.Text, event.MaxPreviewText), in.ImageRef),
		event.WithTraceID(traceID(ctx)),
	)
	if err := s.publisher.Publish(ctx, env); err != nil {
		return msg, fmt.Errorf("chat: %w", err)
	}
	return msg, nil
}

func validate(in ChatInput, senderID string) error {
	switch {
	case in.Text == "" && in.ImageRef == "":
		return fmt.Errorf("%w: text or image_ref is required", ErrInvalidMessage)
	case (in.RecipientID == "") == (in.Room == ""):
		return fmt.Errorf("%w: exactly one of recipient_id and room is required", ErrInvalidMessage)
	case in.RecipientID == senderID:
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidMessage)
	case in.Room != "" && !roomName.MatchString(in.Room):
		return fmt.Errorf("%w: bad room name", ErrInvalidMessage)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func traceID(ctx context.Context) string {
	if v, ok := ctx.Value(relay.TraceIDKey{}).(string); ok {
		return v
	}
	return ""
}
