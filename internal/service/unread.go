package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"github.com/pinboard/event-delivery-service/internal/adapter/relay"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// Unreader serves the read side of the unread counter for an explicit identity.
type Unreader interface {
	Get(ctx context.Context, identity model.Identity) (count int64, present bool, err error)
	MarkRead(ctx context.Context, identity model.Identity, n int64) (int64, error)
	MarkAllRead(ctx context.Context, identity model.Identity) error
}

var _ Unreader = (*UnreadService)(nil)

type UnreadService struct {
	store  counter.Store
	pusher relay.Pusher
	dest   Destinations
	logger *slog.Logger
	now    func() time.Time
}

func NewUnreadService(store counter.Store, pusher relay.Pusher, cfg *config.Config, logger *slog.Logger) *UnreadService {
	return &UnreadService{
		store:  store,
		pusher: pusher,
		dest:   DestinationsFrom(cfg.Realtime),
		logger: logger,
		now:    time.Now,
	}
}

func (s *UnreadService) authorize(identity model.Identity) error {
	if !identity.Valid(s.now()) {
		return ErrUnauthenticated
	}
	return nil
}

func (s *UnreadService) Get(ctx context.Context, identity model.Identity) (int64, bool, error) {
	if err := s.authorize(identity); err != nil {
		return 0, false, err
	}
	return s.store.Get(ctx, identity.UserID)
}

// MarkRead subtracts n, flooring at zero, and pushes the new count to every session of the user.
func (s *UnreadService) MarkRead(ctx context.Context, identity model.Identity, n int64) (int64, error) {
	if err := s.authorize(identity); err != nil {
		return 0, err
	}
	v, err := s.store.Decrement(ctx, identity.UserID, n)
	if err != nil {
		return 0, fmt.Errorf("unread: mark read: %w", err)
	}
	s.announce(ctx, identity.UserID, v)
	return v, nil
}

func (s *UnreadService) MarkAllRead(ctx context.Context, identity model.Identity) error {
	if err := s.authorize(identity); err != nil {
		return err
	}
	if err := s.store.Reset(ctx, identity.UserID); err != nil {
		return fmt.Errorf("unread: mark all read: %w", err)
	}
	s.announce(ctx, identity.UserID, 0)
	return nil
}

// announce keeps the user's other devices in sync. Failures are not the caller's problem.
func (s *UnreadService) announce(ctx context.Context, userID string, count int64) {
	p := model.NewPush(model.KindUnread, s.dest.Notifications, model.UnreadCount{Count: count})
	if err := s.pusher.PushToUser(ctx, userID, p); err != nil {
		s.logger.Warn("UNREAD_PUSH_FAILED", "user_id", userID, "err", err)
	}
}
