package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
	// SpanLevel is the level span start/end records are logged at.
	SpanLevel slog.Level
}

// ShutdownFunc flushes whatever Setup started.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger spans and metrics are written to and resets the
// in-process counters.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	defaultRegistry.reset()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] spans and metrics enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] disabled, counters only")
		}
	}
	return func(ctx context.Context) error {
		if l, _ := currentLogger(); l != nil {
			snap := Snapshot()
			attrs := make([]slog.Attr, 0, len(snap))
			for name, v := range snap {
				attrs = append(attrs, slog.Float64(name, v))
			}
			l.LogAttrs(ctx, slog.LevelInfo, "[OBSERVABILITY] final counters", attrs...)
		}
		return nil
	}, nil
}
