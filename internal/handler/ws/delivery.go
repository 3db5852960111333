package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/server/http/interceptors"
	"github.com/pinboard/event-delivery-service/internal/adapter/counter"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	wsmarshaller "github.com/pinboard/event-delivery-service/internal/handler/marshaller/ws"
	"github.com/pinboard/event-delivery-service/internal/service"
	"golang.org/x/sync/errgroup"
)

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	upgrader  websocket.Upgrader
	cfg       config.RealtimeConfig
	routes    map[string]Route
	handle    FrameHandler
	now       func() time.Time
}

func NewWSHandler(
	logger *slog.Logger,
	deliverer service.Deliverer,
	chatter service.Chatter,
	unreader service.Unreader,
	cfg *config.Config,
) *WSHandler {
	h := &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // credential is verified before upgrade
		},
		cfg:    cfg.Realtime,
		routes: NewRoutes(cfg.Realtime.AppPrefix, chatter, unreader),
		now:    time.Now,
	}
	h.handle = chain(h.dispatch, authInterceptor(func() time.Time { return h.now() }), loggingInterceptor(logger))
	return h
}

// ServeHTTP expects the identity verified by the auth interceptor.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. IDENTITY (verified before the upgrade, never anonymous)
	identity, ok := interceptors.GetIdentity(r.Context())
	if !ok || !identity.Valid(h.now()) {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err)
		return
	}
	defer ws.Close()

	// 3. JOIN THE HUB
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := h.deliverer.Join(ctx, identity)
	if err != nil {
		h.logger.Error("WS_JOIN_FAILED", "err", err, "user_id", identity.UserID)
		return
	}
	defer h.deliverer.Leave(conn)

	s := &session{ws: ws, conn: conn, identity: identity, writeWait: h.cfg.WriteWait}
	h.logger.Info("WS_OPENED", "user_id", identity.UserID, "conn_id", conn.GetID())

	connected, err := wsmarshaller.MarshallConnected(&model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  conn.GetID().String(),
		UserID:        identity.UserID,
		ServerVersion: model.ServerVersion,
	})
	if err != nil || s.write(connected) != nil {
		return
	}

	// 4. PUMPS: the first one to finish tears the session down
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.readPump(gctx, s) })
	g.Go(func() error { return h.writePump(gctx, s) })
	err = g.Wait()

	h.logger.Info("WS_CLOSED", "user_id", identity.UserID, "conn_id", conn.GetID(), "reason", err, "dropped", conn.Dropped())
}

func (h *WSHandler) readPump(ctx context.Context, s *session) error {
	s.ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return errSessionClosed
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		frame, err := wsmarshaller.UnmarshallClientFrame(data)
		if err != nil {
			s.fail(wsmarshaller.CodeBadFrame, err.Error())
			continue
		}

		if err := h.handle(ctx, s, frame); err != nil {
			code := errorCode(err)
			s.fail(code, err.Error())
			if code == wsmarshaller.CodeUnauthenticated {
				return errSessionExpired
			}
		}
	}
}

func (h *WSHandler) writePump(ctx context.Context, s *session) error {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.conn.Done():
			return errSessionClosed
		case p, ok := <-s.conn.Recv():
			if !ok {
				return errSessionClosed
			}
			data, err := wsmarshaller.MarshallPush(p)
			if err != nil {
				h.logger.Error("WS_MARSHAL_FAILED", "err", err, "push_id", p.ID)
				continue
			}
			if err := s.write(data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return err
			}
		}
	}
}

// dispatch is the innermost frame handler.
func (h *WSHandler) dispatch(ctx context.Context, s *session, f *wsmarshaller.ClientFrame) error {
	switch f.Command {
	case wsmarshaller.CmdPing:
		data, err := wsmarshaller.MarshallPong()
		if err != nil {
			return err
		}
		return s.write(data)

	case wsmarshaller.CmdSubscribe:
		if h.isApp(f.Destination) {
			return registry.ErrInvalidDestination
		}
		if err := h.deliverer.Subscribe(s.conn, f.Destination); err != nil {
			return err
		}

	case wsmarshaller.CmdUnsubscribe:
		h.deliverer.Unsubscribe(s.conn, f.Destination)

	case wsmarshaller.CmdSend:
		route, ok := h.routes[f.Destination]
		if !ok {
			return errRouteNotFound
		}
		if err := route(ctx, s.identity, f.Body); err != nil {
			return err
		}
	}

	return s.receipt(f.ID)
}

func (h *WSHandler) isApp(destination string) bool {
	prefix := strings.TrimSuffix(h.cfg.AppPrefix, "/")
	return destination == prefix || strings.HasPrefix(destination, prefix+"/")
}

// errorCode maps a frame failure to the code of the ERROR frame sent back.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, registry.ErrUnauthenticated):
		return wsmarshaller.CodeUnauthenticated
	case errors.Is(err, errRouteNotFound):
		return wsmarshaller.CodeNotFound
	case errors.Is(err, registry.ErrInvalidDestination),
		errors.Is(err, service.ErrInvalidMessage),
		errors.Is(err, counter.ErrInvalidAmount),
		errors.Is(err, errBadBody):
		return wsmarshaller.CodeInvalid
	default:
		return wsmarshaller.CodeInternal
	}
}
