package lp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	lpmarshaller "github.com/pinboard/event-delivery-service/internal/handler/marshaller/lp"
	"github.com/pinboard/event-delivery-service/internal/service"
)

func newHandler(t *testing.T, timeout time.Duration) (*LPHandler, *registry.Hub) {
	t.Helper()
	cfg := &config.Config{Realtime: config.RealtimeConfig{
		SessionBuffer:   16,
		LongPollTimeout: timeout,
		LongPollBatch:   2,
	}}
	hub := registry.NewHub()
	t.Cleanup(hub.Shutdown)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLPHandler(logger, service.NewDeliveryService(hub, cfg, metrics.New()), cfg), hub
}

func request(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	identity := model.Identity{UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	return req.WithContext(interceptors.WithIdentity(context.Background(), identity))
}

func TestPoll_TimeoutAnswersNoContent(t *testing.T) {
	h, hub := newHandler(t, 50*time.Millisecond)
	rec := httptest.NewRecorder()
	h.Poll(rec, request("/lp/poll"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, hub.IsConnected("alice"))
}

func TestPoll_ReturnsBatchedTopicPushes(t *testing.T) {
	h, hub := newHandler(t, 2*time.Second)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Poll(rec, request("/lp/poll?topic=/topic/chat.general"))
	}()

	require.Eventually(t, func() bool {
		return hub.PublishToTopic("/topic/chat.general", model.NewPush(model.KindChatMessage, "/topic/chat.general", "one")) == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("poll did not return")
	}

	require.Equal(t, http.StatusOK, rec.Code)
	var res lpmarshaller.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Events)
	assert.LessOrEqual(t, len(res.Events), 2)
	assert.Equal(t, "/topic/chat.general", res.Events[0].Destination)
	assert.Equal(t, "one", res.Events[0].Body)
}

func TestPoll_RejectsBadTopicAndAnonymous(t *testing.T) {
	h, _ := newHandler(t, time.Second)

	rec := httptest.NewRecorder()
	h.Poll(rec, request("/lp/poll?topic=/app/chat.send"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Poll(rec, httptest.NewRequest(http.MethodGet, "/lp/poll", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
