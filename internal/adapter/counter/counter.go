// Package counter keeps the per-user unread notification counters.
//
// Every mutation is a single atomic operation on the backing store; callers never
// read-modify-write, so concurrent consumers and read requests cannot lose updates.
package counter

import (
	"context"
	"errors"
)

var ErrInvalidAmount = errors.New("counter: amount must not be negative")

type Store interface {
	// Increment adds one, creating the counter on first use, and returns the new value.
	Increment(ctx context.Context, userID string) (int64, error)
	// Decrement subtracts n, flooring at zero. An absent counter stays absent and reports 0.
	Decrement(ctx context.Context, userID string, n int64) (int64, error)
	// Reset sets the counter to zero.
	Reset(ctx context.Context, userID string) error
	// Get reports the current value; present is false when the counter was never created.
	Get(ctx context.Context, userID string) (value int64, present bool, err error)
}
