package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/adapter/blob"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() *config.Config {
	return &config.Config{
		Counter: config.CounterConfig{
			RetryInitial:    time.Millisecond,
			RetryMaxElapsed: 50 * time.Millisecond,
		},
		Realtime: config.RealtimeConfig{
			TopicPrefix:   "/topic",
			UserPrefix:    "/user",
			SessionBuffer: 16,
		},
	}
}

func alice() model.Identity {
	return model.Identity{UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)}
}

type pushed struct {
	target string // user id or topic
	push   *model.Push
}

// recordingPusher captures pushes in call order.
type recordingPusher struct {
	mu    sync.Mutex
	users []pushed
	topic []pushed
	err   error
}

func (r *recordingPusher) PushToUser(_ context.Context, userID string, p *model.Push) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, pushed{userID, p})
	return r.err
}

func (r *recordingPusher) PushToTopic(_ context.Context, topic string, p *model.Push) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic = append(r.topic, pushed{topic, p})
	return r.err
}

func (r *recordingPusher) toUser() []pushed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pushed(nil), r.users...)
}

// flakyStore fails Increment until failures reaches zero; a negative value fails forever.
type flakyStore struct {
	*counter.MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) Increment(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures != 0
	if f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return 0, errors.New("connection refused")
	}
	return f.MemoryStore.Increment(ctx, userID)
}

func (f *flakyStore) setFailures(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []*event.Envelope
}

func (r *recordingPublisher) Publish(_ context.Context, env *event.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type fakeBlob struct {
	status  blob.Status
	deleted []string
}

func (f *fakeBlob) URL(context.Context, string) blob.Result[string] {
	return blob.Result[string]{Status: f.status}
}

func (f *fakeBlob) Metadata(context.Context, string) blob.Result[blob.Metadata] {
	return blob.Result[blob.Metadata]{Status: f.status}
}

func (f *fakeBlob) Delete(_ context.Context, id string) blob.Result[struct{}] {
	f.deleted = append(f.deleted, id)
	if f.status == blob.Unavailable {
		return blob.Result[struct{}]{Status: blob.Unavailable, Err: errors.New("s3 down")}
	}
	return blob.Result[struct{}]{Status: f.status}
}
