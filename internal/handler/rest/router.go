package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/handler/lp"
	"github.com/pinboard/event-delivery-service/internal/handler/ws"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	Logger  *slog.Logger
	Auth    interceptors.AuthMiddleware
	Metrics *metrics.Metrics
	WS      *ws.WSHandler
	LP      *lp.LPHandler
	Unread  *UnreadHandler
	Events  *EventsHandler
	Health  *HealthHandler
}

// NewRouter mounts every HTTP surface of the service. Real-time and user routes sit behind
// the auth interceptor; health, metrics and ingest are for the internal network.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		interceptors.NewLoggingInterceptor(p.Logger),
		middleware.Recoverer,
	)

	r.Get("/healthz", p.Health.Check)
	r.Handle("/metrics", p.Metrics.Handler())
	r.Post("/internal/v1/events", p.Events.Ingest)

	r.Group(func(r chi.Router) {
		r.Use(p.Auth)

		r.Handle("/ws", p.WS)
		r.Get("/lp/poll", p.LP.Poll)
		r.Route("/api/v1/unread", func(r chi.Router) {
			r.Get("/", p.Unread.Get)
			r.Post("/read", p.Unread.MarkRead)
			r.Post("/read-all", p.Unread.MarkAllRead)
		})
	})

	return r
}
