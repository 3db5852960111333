package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	"github.com/pinboard/event-delivery-service/internal/handler/kafka"
	"github.com/pinboard/event-delivery-service/internal/handler/lp"
	"github.com/pinboard/event-delivery-service/internal/handler/ws"
	"github.com/pinboard/event-delivery-service/internal/service"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type tokenAuther struct{}

func (tokenAuther) Inspect(_ context.Context, token string) (model.Identity, error) {
	if token != "good" {
		return model.Identity{}, service.ErrUnauthenticated
	}
	return model.Identity{UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// storeUnreader exposes a counter store without pushes.
type storeUnreader struct {
	store counter.Store
}

func (u storeUnreader) Get(ctx context.Context, id model.Identity) (int64, bool, error) {
	return u.store.Get(ctx, id.UserID)
}

func (u storeUnreader) MarkRead(ctx context.Context, id model.Identity, n int64) (int64, error) {
	return u.store.Decrement(ctx, id.UserID, n)
}

func (u storeUnreader) MarkAllRead(ctx context.Context, id model.Identity) error {
	return u.store.Reset(ctx, id.UserID)
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []*event.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env *event.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type stubProber bool

func (s stubProber) Healthy() bool { return bool(s) }

type stubStater kafka.State

func (s stubStater) State() kafka.State { return kafka.State(s) }

type fixture struct {
	handler   http.Handler
	store     *counter.MemoryStore
	publisher *recordingPublisher
}

func newFixture(t *testing.T, healthy bool, state kafka.State) *fixture {
	t.Helper()
	cfg := &config.Config{Realtime: config.RealtimeConfig{
		AppPrefix:       "/app",
		TopicPrefix:     "/topic",
		UserPrefix:      "/user",
		SessionBuffer:   4,
		PingInterval:    time.Second,
		PongWait:        time.Second,
		WriteWait:       time.Second,
		MaxMessageSize:  4096,
		LongPollTimeout: 20 * time.Millisecond,
	}}
	hub := registry.NewHub()
	t.Cleanup(hub.Shutdown)

	f := &fixture{store: counter.NewMemoryStore(), publisher: &recordingPublisher{}}
	unreader := storeUnreader{store: f.store}
	deliverer := service.NewDeliveryService(hub, cfg, metrics.New())

	f.handler = NewRouter(RouterParams{
		Logger:  discard(),
		Auth:    interceptors.NewAuthInterceptor(tokenAuther{}, time.Second, discard()),
		Metrics: metrics.New(),
		WS:      ws.NewWSHandler(discard(), deliverer, nil, unreader, cfg),
		LP:      lp.NewLPHandler(discard(), deliverer, cfg),
		Unread:  NewUnreadHandler(discard(), unreader),
		Events:  NewEventsHandler(discard(), f.publisher),
		Health:  NewHealthHandler(stubProber(healthy), stubStater(state)),
	})
	return f
}

func (f *fixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUnreadRoutes(t *testing.T) {
	f := newFixture(t, true, kafka.StatePolling)
	ctx := context.Background()

	rec := f.do(http.MethodGet, "/api/v1/unread", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, unreadResponse{Count: 0, Present: false}, decode[unreadResponse](t, rec))

	for i := 0; i < 3; i++ {
		_, err := f.store.Increment(ctx, "alice")
		require.NoError(t, err)
	}

	rec = f.do(http.MethodGet, "/api/v1/unread", "good", "")
	assert.Equal(t, unreadResponse{Count: 3, Present: true}, decode[unreadResponse](t, rec))

	rec = f.do(http.MethodPost, "/api/v1/unread/read", "good", `{"count":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[unreadResponse](t, rec).Count)

	rec = f.do(http.MethodPost, "/api/v1/unread/read", "good", `{"count":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/unread/read", "good", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := f.store.Increment(ctx, "alice")
	require.NoError(t, err)
	rec = f.do(http.MethodPost, "/api/v1/unread/read-all", "good", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	count, present, err := f.store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Zero(t, count)
}

func TestProtectedRoutesRequireCredential(t *testing.T) {
	f := newFixture(t, true, kafka.StatePolling)

	for _, target := range []string{"/api/v1/unread", "/lp/poll", "/ws"} {
		rec := f.do(http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)

		rec = f.do(http.MethodGet, target, "forged", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	rec := f.do(http.MethodGet, "/lp/poll", "good", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIngestEvents(t *testing.T) {
	f := newFixture(t, true, kafka.StatePolling)

	rec := f.do(http.MethodPost, "/internal/v1/events", "",
		`{"type":"pin-liked","actor_id":"bob","recipient_id":"alice","subject_ids":["pin-1"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	res := decode[ingestResponse](t, rec)
	assert.NotEmpty(t, res.ID)

	require.Len(t, f.publisher.envs, 1)
	env := f.publisher.envs[0]
	assert.Equal(t, res.ID, env.ID)
	assert.Equal(t, event.PinLiked, env.Type)
	assert.NotZero(t, env.Timestamp)

	rec = f.do(http.MethodPost, "/internal/v1/events", "", `{"type":"pin-liked","actor_id":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/internal/v1/events", "", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.publisher.envs, 1)
}

func TestHealth(t *testing.T) {
	rec := newFixture(t, true, kafka.StatePolling).do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthResponse{Status: "ok", Consumer: "POLLING", Counter: true}, decode[healthResponse](t, rec))

	rec = newFixture(t, false, kafka.StateProcessing).do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[healthResponse](t, rec).Status)

	rec = newFixture(t, true, kafka.StateStopped).do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, true, kafka.StatePolling).do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
