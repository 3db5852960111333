package cmd

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/infra/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// ProvideLogger builds the zap-backed logger and installs it as the slog default.
func ProvideLogger(lc fx.Lifecycle, cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.Logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = l.Sync() // stderr sync fails on some terminals
			return nil
		},
	})
	return l, nil
}

func ProvideSlog(l *logger.Logger) *slog.Logger {
	return l.Logger.With("service", ServiceName)
}

func ProvideWatermillLogger(l *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(l)
}

func ProvideFxLogger(l *slog.Logger) fxevent.Logger {
	return &fxevent.SlogLogger{Logger: l}
}

// WatchLogLevel applies log.level changes from the config file without a restart.
func WatchLogLevel(cfg *config.Config, l *logger.Logger) {
	cfg.Watch(func(next *config.Config) {
		if next.Log.Level == l.Level() {
			return
		}
		if err := l.SetLevel(next.Log.Level); err != nil {
			l.Warn("LOG_LEVEL_REJECTED", "err", err, "level", next.Log.Level)
		}
	})
}
