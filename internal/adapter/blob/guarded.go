package blob

import (
	"context"
	"log/slog"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/sony/gobreaker"
)

var _ Client = (*Guarded)(nil)

// Guarded wraps a Client with a circuit breaker. Unavailable results count as failures;
// while the breaker is open every call returns Unavailable without touching the store.
type Guarded struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

func NewGuarded(next Client, cfg config.BreakerConfig, logger *slog.Logger) *Guarded {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	return &Guarded{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "blob",
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("BREAKER_STATE_CHANGED", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func (g *Guarded) URL(ctx context.Context, id string) Result[string] {
	return guard(g.cb, func() Result[string] { return g.next.URL(ctx, id) })
}

func (g *Guarded) Metadata(ctx context.Context, id string) Result[Metadata] {
	return guard(g.cb, func() Result[Metadata] { return g.next.Metadata(ctx, id) })
}

func (g *Guarded) Delete(ctx context.Context, id string) Result[struct{}] {
	return guard(g.cb, func() Result[struct{}] { return g.next.Delete(ctx, id) })
}

func guard[T any](cb *gobreaker.CircuitBreaker, call func() Result[T]) Result[T] {
	out, err := cb.Execute(func() (interface{}, error) {
		res := call()
		if res.Status == Unavailable {
			return res, res.Err
		}
		return res, nil
	})
	if res, ok := out.(Result[T]); ok {
		return res
	}
	// [DEGRADED] open or half-open breaker rejected the call
	return unavailable[T](err)
}
