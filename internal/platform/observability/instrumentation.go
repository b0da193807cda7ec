package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Enabled reports whether span and metric logging has been toggled on.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

// StartSpan records a lightweight span lifecycle around an operation. The
// returned func must be called exactly once with the operation's outcome.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, cfg := currentLogger()
	start := time.Now()
	if logger == nil || !cfg.Enabled {
		return ctx, func(err error) {
			recordSpan(component, operation, time.Since(start), err)
		}
	}

	logger.LogAttrs(ctx, cfg.SpanLevel, "obs span start",
		slog.String("component", component),
		slog.String("operation", operation),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		recordSpan(component, operation, elapsed, err)

		level := cfg.SpanLevel
		if err != nil {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}

func recordSpan(component, operation string, elapsed time.Duration, err error) {
	name := component + "." + operation
	defaultRegistry.add(name+".count", 1)
	defaultRegistry.add(name+".ms", float64(elapsed.Milliseconds()))
	if err != nil {
		defaultRegistry.add(name+".errors", 1)
	}
}

// RecordMetric adds value to the named counter and, when enabled, logs the
// datapoint with its labels.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	defaultRegistry.add(name, value)

	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, labels[k]))
	}
	logger.LogAttrs(ctx, cfg.SpanLevel, "obs metric", attrs...)
}

// Snapshot returns a copy of every counter recorded since Setup.
func Snapshot() map[string]float64 {
	return defaultRegistry.snapshot()
}

// SnapshotPrefix returns the counters whose name starts with prefix.
func SnapshotPrefix(prefix string) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range defaultRegistry.snapshot() {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

type registry struct {
	mu       sync.Mutex
	counters map[string]float64
}

var defaultRegistry = &registry{counters: make(map[string]float64)}

func (r *registry) add(name string, v float64) {
	r.mu.Lock()
	r.counters[name] += v
	r.mu.Unlock()
}

func (r *registry) snapshot() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

func (r *registry) reset() {
	r.mu.Lock()
	r.counters = make(map[string]float64)
	r.mu.Unlock()
}
