// Package blob is the storage collaborator used for event-triggered cleanup.
//
// Operations never return transport errors as control flow: callers branch on Status.
package blob

import (
	"context"
	"time"
)

type Status int

const (
	Found Status = iota
	NotFound
	Unavailable // degraded: transport failure or open breaker
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

// Result carries a value for Found and the cause for Unavailable.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

func found[T any](v T) Result[T]             { return Result[T]{Status: Found, Value: v} }
func notFound[T any]() Result[T]             { return Result[T]{Status: NotFound} }
func unavailable[T any](err error) Result[T] { return Result[T]{Status: Unavailable, Err: err} }

type Metadata struct {
	Key          string
	ContentType  string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Client is the capability set of the blob store. Delete reports Found when an object was removed.
type Client interface {
	URL(ctx context.Context, id string) Result[string]
	Metadata(ctx context.Context, id string) Result[Metadata]
	Delete(ctx context.Context, id string) Result[struct{}]
}
