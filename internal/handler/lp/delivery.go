package lp

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	lpmarshaller "github.com/pinboard/event-delivery-service/internal/handler/marshaller/lp"
	"github.com/pinboard/event-delivery-service/internal/service"
)

type LPHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	timeout   time.Duration
	batch     int
}

func NewLPHandler(logger *slog.Logger, deliverer service.Deliverer, cfg *config.Config) *LPHandler {
	batch := cfg.Realtime.LongPollBatch
	if batch <= 0 {
		batch = 16
	}
	return &LPHandler{
		logger:    logger,
		deliverer: deliverer,
		timeout:   cfg.Realtime.LongPollTimeout,
		batch:     batch,
	}
}

// Poll handles the long-polling request.
// It holds the connection until a push arrives or the poll timeout elapses.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Identity, verified by the auth interceptor.
	identity, ok := interceptors.GetIdentity(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	// 2. Temporary session.
	// The connector lives only for the duration of this HTTP request.
	conn, err := h.deliverer.Join(r.Context(), identity)
	if err != nil {
		h.logger.Error("LP_JOIN_FAILED", "err", err, "user_id", identity.UserID)
		http.Error(w, "failed to join", http.StatusInternalServerError)
		return
	}
	defer h.deliverer.Leave(conn)

	for _, topic := range r.URL.Query()["topic"] {
		if err := h.deliverer.Subscribe(conn, topic); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, registry.ErrInvalidDestination) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
	}

	var pushes []*model.Push

	// 3. Wait for data or timeout.
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return

	case p, ok := <-conn.Recv():
		if !ok {
			return
		}
		pushes = append(pushes, p)

		// Drain what is already buffered to batch the response.
	drainLoop:
		for len(pushes) < h.batch {
			select {
			case next := <-conn.Recv():
				pushes = append(pushes, next)
			default:
				break drainLoop
			}
		}
	}

	// 4. Final transmission.
	data, err := lpmarshaller.MarshallPushes(pushes)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
