package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module("relay",
	fx.Provide(
		func(cfg *config.Config, wlog watermill.LoggerAdapter) (*Bus, error) {
			return NewBus(cfg.Relay, cfg.Service.NodeID, wlog)
		},
		NewHandler,
		ProvidePusher,
	),
	fx.Invoke(RunRouter),
)

// ProvidePusher picks the direct hub path for the local driver and the bus otherwise.
func ProvidePusher(bus *Bus, hub registry.Hubber, cfg *config.Config) Pusher {
	if bus == nil {
		return NewLocalPusher(hub)
	}
	return NewBusPusher(bus.Publisher, cfg.Relay.Exchange, cfg.Service.NodeID)
}

// RunRouter attaches the relay handler and ties the router to the app lifecycle.
func RunRouter(lc fx.Lifecycle, bus *Bus, h *Handler, cfg *config.Config, wlog watermill.LoggerAdapter, logger *slog.Logger) error {
	if bus == nil {
		logger.Info("RELAY_DISABLED", "driver", DriverLocal)
		return nil
	}

	router, err := NewRouter(wlog)
	if err != nil {
		return err
	}
	h.Register(router, bus.Subscriber, cfg.Relay.Exchange)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("RELAY_ROUTER_FAILED", "err", err)
				}
			}()
			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return fmt.Errorf("relay: router did not start: %w", ctx.Err())
			}
		},
		OnStop: func(ctx context.Context) error {
			return closeAll(router, bus)
		},
	})
	return nil
}

func closeAll(router *message.Router, bus *Bus) error {
	if err := router.Close(); err != nil {
		_ = bus.Close()
		return fmt.Errorf("relay: router close: %w", err)
	}
	return bus.Close()
}
