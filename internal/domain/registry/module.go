package registry

import (
	"github.com/pinboard/event-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		fx.Annotate(
			NewHubFromConfig,
			fx.As(new(Hubber)),
		),
	),
	// [GRACEFUL_SHUTDOWN] stop every cell goroutine and close the remaining sessions
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.StopHook(h.Shutdown))
	}),
)

// NewHubFromConfig maps the realtime settings onto hub options.
func NewHubFromConfig(cfg *config.Config) *Hub {
	rt := cfg.Realtime
	return NewHub(
		WithMailboxSize(rt.MailboxSize),
		WithSendTimeout(rt.SendTimeout),
		WithPrefixes(rt.TopicPrefix, rt.UserPrefix),
		WithIdleTimeout(rt.IdleTimeout),
		WithEvictionInterval(rt.EvictionInterval),
	)
}
