package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"github.com/pinboard/event-delivery-service/internal/service"
)

type UnreadHandler struct {
	logger   *slog.Logger
	unreader service.Unreader
}

func NewUnreadHandler(logger *slog.Logger, unreader service.Unreader) *UnreadHandler {
	return &UnreadHandler{logger: logger, unreader: unreader}
}

type unreadResponse struct {
	Count   int64 `json:"count"`
	Present bool  `json:"present"`
}

type markReadRequest struct {
	Count int64 `json:"count"`
}

// Get answers the caller's unread count; present is false when no counter exists yet.
func (h *UnreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := interceptors.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	count, present, err := h.unreader.Get(r.Context(), identity)
	if err != nil {
		h.fail(w, "UNREAD_GET_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, unreadResponse{Count: count, Present: present})
}

func (h *UnreadHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := interceptors.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	count, err := h.unreader.MarkRead(r.Context(), identity, req.Count)
	if err != nil {
		h.fail(w, "UNREAD_MARK_READ_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, unreadResponse{Count: count, Present: true})
}

func (h *UnreadHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := interceptors.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if err := h.unreader.MarkAllRead(r.Context(), identity); err != nil {
		h.fail(w, "UNREAD_MARK_ALL_READ_FAILED", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UnreadHandler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, counter.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, "err", err)
		writeError(w, http.StatusServiceUnavailable, "counter store unavailable")
	}
}
