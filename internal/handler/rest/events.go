package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pinboard/event-delivery-service/internal/adapter/pubsub"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
)

// EventsHandler lets producers that do not link the publisher hand envelopes over HTTP.
type EventsHandler struct {
	logger    *slog.Logger
	publisher pubsub.EventPublisher
}

func NewEventsHandler(logger *slog.Logger, publisher pubsub.EventPublisher) *EventsHandler {
	return &EventsHandler{logger: logger, publisher: publisher}
}

type ingestResponse struct {
	ID string `json:"id"`
}

// Ingest publishes one envelope. Id and timestamp are assigned when the caller leaves them out.
// Acceptance means queued, not delivered.
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	env := new(event.Envelope)
	if err := json.NewDecoder(r.Body).Decode(env); err != nil {
		writeError(w, http.StatusBadRequest, "malformed envelope")
		return
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}

	if err := h.publisher.Publish(r.Context(), env); err != nil {
		h.logger.Debug("EVENT_INGEST_REJECTED", "err", err, "type", env.Type)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{ID: env.ID})
}
