// Package logger builds the process-wide slog.Logger on top of a zap core.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Logger couples the slog front end with the zap level that can be changed at runtime.
type Logger struct {
	*slog.Logger
	level zap.AtomicLevel
	core  zapcore.Core
}

// New returns a logger writing json (production) or console (development) records to stderr.
func New(level, format string) (*Logger, error) {
	return NewWithSink(level, format, zapcore.Lock(os.Stderr))
}

func NewWithSink(level, format string, sink zapcore.WriteSyncer) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	atom := zap.NewAtomicLevelAt(lvl)

	var enc zapcore.Encoder
	switch format {
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	case "json", "":
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", format)
	}

	core := zapcore.NewCore(enc, sink, atom)
	return &Logger{
		Logger: slog.New(zapslog.NewHandler(core, zapslog.WithCaller(true))),
		level:  atom,
		core:   core,
	}, nil
}

// SetLevel swaps the active level without rebuilding the logger.
func (l *Logger) SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if l.level.Level() != lvl {
		l.level.SetLevel(lvl)
		l.Info("LOG_LEVEL_CHANGED", "level", lvl.String())
	}
	return nil
}

func (l *Logger) Level() string { return l.level.Level().String() }

// Sync flushes buffered zap output.
func (l *Logger) Sync() error { return l.core.Sync() }
