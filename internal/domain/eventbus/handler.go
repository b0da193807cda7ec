package eventbus

import (
	"context"
	"time"

	"matrix-server-go/internal/platform/logging"
)

// EventStore persists finished transmissions.
type EventStore interface {
	Store(ctx context.Context, event TransmissionEvent) error
}

// SetupEventHandlers 设置事件处理器
func SetupEventHandlers(bus *AsyncEventBus, store EventStore, logger *logging.Logger) error {
	if err := bus.Subscribe(EventTransmissionCompleted, func(event TransmissionEvent) {
		handleTransmission(store, logger, event)
	}); err != nil {
		return err
	}

	return bus.Subscribe(EventSystemError, func(data SystemEventData) {
		logger.ErrorTag("Events", "%s", data.Message)
	})
}

func handleTransmission(store EventStore, logger *logging.Logger, event TransmissionEvent) {
	if event.Success {
		logger.InfoTag("Events", "%s transmission %s to %s finished in %dms",
			event.Mode, event.ID, event.Endpoint, event.DurationMs)
	} else {
		logger.WarnTag("Events", "%s transmission %s to %s failed: %s",
			event.Mode, event.ID, event.Endpoint, event.Error)
	}

	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Store(ctx, event); err != nil {
		logger.ErrorTag("Events", "failed to record transmission %s: %v", event.ID, err)
	}
}
