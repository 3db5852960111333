package rest

import (
	"net/http"

	"github.com/pinboard/event-delivery-service/internal/handler/kafka"
)

// Prober reports whether the counter maintainer can reach its store.
type Prober interface {
	Healthy() bool
}

// Stater reports the consumer loop state.
type Stater interface {
	State() kafka.State
}

type HealthHandler struct {
	counter  Prober
	consumer Stater
}

func NewHealthHandler(counter Prober, consumer Stater) *HealthHandler {
	return &HealthHandler{counter: counter, consumer: consumer}
}

type healthResponse struct {
	Status   string `json:"status"`
	Consumer string `json:"consumer"`
	Counter  bool   `json:"counter_store"`
}

func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	state := h.consumer.State()
	res := healthResponse{
		Status:   "ok",
		Consumer: state.String(),
		Counter:  h.counter.Healthy(),
	}

	code := http.StatusOK
	if !res.Counter || state == kafka.StateStopped {
		res.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}
