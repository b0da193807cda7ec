package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/platform/logging"
)

// Message is the envelope pushed to every subscriber.
type Message struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Hub tracks the active event stream sessions.
type Hub struct {
	logger   *logging.Logger
	sessions sync.Map // map[string]*Session
}

// NewHub builds a fresh session hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// Attach forwards finished transmissions from bus to every session.
func (h *Hub) Attach(bus *eventbus.AsyncEventBus) error {
	return bus.Subscribe(eventbus.EventTransmissionCompleted, h.HandleTransmission)
}

// HandleTransmission broadcasts one transmission event.
func (h *Hub) HandleTransmission(event eventbus.TransmissionEvent) {
	h.Broadcast(eventbus.EventTransmissionCompleted, event)
}

// Register adds a new session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
	h.logger.DebugTag("WebSocket", "session %s subscribed", session.ID())
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// Broadcast encodes payload once and queues it on every session. Sessions
// whose buffer is full are dropped.
func (h *Hub) Broadcast(event string, payload interface{}) int {
	data, err := sonic.Marshal(Message{
		Type:      "event",
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.ErrorTag("WebSocket", "failed to encode %s: %v", event, err)
		return 0
	}

	sent := 0
	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok {
			return true
		}
		if session.Enqueue(data) {
			sent++
			return true
		}
		h.logger.WarnTag("WebSocket", "dropping slow session %s", session.ID())
		session.Close(ErrSlowConsumer)
		h.sessions.Delete(key)
		return true
	})
	return sent
}

// CloseAll terminates all active sessions.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// Count exposes the number of active websocket sessions.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}
