package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"github.com/pinboard/event-delivery-service/internal/adapter/relay"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// Processor is what the broker consumer calls for every decoded envelope.
type Processor interface {
	Process(ctx context.Context, env *event.Envelope) error
}

var _ Processor = (*Notifier)(nil)

// Notifier maintains unread counters and forwards render-ready notifications.
//
// There is no de-duplication table: a redelivered envelope increments and pushes again.
type Notifier struct {
	store   counter.Store
	pusher  relay.Pusher
	cleaner *Cleaner
	dest    Destinations
	metrics *metrics.Metrics
	logger  *slog.Logger

	retryInitial    time.Duration
	retryMaxElapsed time.Duration

	healthy atomic.Bool
}

func NewNotifier(store counter.Store, pusher relay.Pusher, cleaner *Cleaner, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	n := &Notifier{
		store:           store,
		pusher:          pusher,
		cleaner:         cleaner,
		dest:            DestinationsFrom(cfg.Realtime),
		metrics:         m,
		logger:          logger,
		retryInitial:    cfg.Counter.RetryInitial,
		retryMaxElapsed: cfg.Counter.RetryMaxElapsed,
	}
	n.healthy.Store(true)
	m.ConsumerHealthy.Set(1)
	return n
}

// Healthy is false after the counter store stayed unreachable for a whole retry budget,
// and true again after the next successful increment.
func (n *Notifier) Healthy() bool { return n.healthy.Load() }

// setHealthy records transitions only.
func (n *Notifier) setHealthy(ok bool) {
	if n.healthy.Swap(ok) == ok {
		return
	}
	if ok {
		n.metrics.ConsumerHealthy.Set(1)
		n.logger.Info("CONSUMER_HEALTHY")
		return
	}
	n.metrics.ConsumerHealthy.Set(0)
	n.logger.Error("CONSUMER_UNHEALTHY")
}

// Process classifies env, bumps the recipient's counter when the type counts, then pushes.
// An error means the envelope was not applied; the caller logs and moves on.
func (n *Notifier) Process(ctx context.Context, env *event.Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	// [CLASSIFY]
	var unread int64
	if env.Type.IncrementsUnread() {
		v, err := n.increment(ctx, env.RecipientID)
		if err != nil {
			return err
		}
		unread = v
	} else if env.RecipientID != "" {
		if v, _, err := n.store.Get(ctx, env.RecipientID); err == nil {
			unread = v
		}
	}

	// [PUSH] offline recipients simply miss it; the counter already holds the record
	if env.RecipientID != "" {
		n.push(ctx, env, unread)
	}

	// [SIDE_EFFECTS]
	if env.Type.TriggersCleanup() && env.Preview != nil {
		n.cleaner.Clean(ctx, env.Preview.ContentRef)
	}
	return nil
}

func (n *Notifier) increment(ctx context.Context, userID string) (int64, error) {
	policy := backoff.NewExponentialBackOff()
	if n.retryInitial > 0 {
		policy.InitialInterval = n.retryInitial
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithNotify(func(err error, next time.Duration) {
			n.metrics.CounterRetries.Inc()
			n.logger.Warn("COUNTER_RETRY", "user_id", userID, "err", err, "next_in", next)
		}),
	}
	if n.retryMaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(n.retryMaxElapsed))
	}

	v, err := backoff.Retry(ctx, func() (int64, error) {
		return n.store.Increment(ctx, userID)
	}, opts...)
	if err != nil {
		// shutdown is not an outage
		if ctx.Err() == nil {
			n.setHealthy(false)
		}
		return 0, fmt.Errorf("notifier: increment %s: %w", userID, err)
	}
	n.setHealthy(true)
	return v, nil
}

func (n *Notifier) push(ctx context.Context, env *event.Envelope, unread int64) {
	note := model.Notification{
		EventID:    env.ID,
		Type:       env.Type.String(),
		ActorID:    env.ActorID,
		SubjectIDs: env.SubjectIDs,
		Unread:     unread,
		CreatedAt:  env.Timestamp,
	}
	if env.Preview != nil {
		note.Text = env.Preview.Text
		note.ContentRef = env.Preview.ContentRef
	}

	p := model.NewPush(model.KindNotification, n.dest.Notifications, note)
	if err := n.pusher.PushToUser(ctx, env.RecipientID, p); err != nil {
		n.metrics.Pushed.WithLabelValues(string(p.Kind), "failed").Inc()
		n.logger.Warn("PUSH_FAILED", "user_id", env.RecipientID, "event_id", env.ID, "err", err)
		return
	}
	n.metrics.Pushed.WithLabelValues(string(p.Kind), "routed").Inc()
}
