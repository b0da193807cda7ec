package ws

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"matrix-server-go/internal/platform/logging"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	maxInbound     = 4096
)

// Session is one subscriber of the event stream.
type Session struct {
	conn   *Connection
	send   chan []byte
	logger *logging.Logger

	pingInterval time.Duration
	pongWait     time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc
	closed atomic.Bool
}

// NewSession constructs a managed websocket session.
func NewSession(parent context.Context, conn *Connection, pingInterval time.Duration, logger *logging.Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		logger:       logger,
		pingInterval: pingInterval,
		pongWait:     pingInterval * 2,
		ctx:          sessionCtx,
		cancel:       cancel,
	}
}

// ID exposes the session identifier.
func (s *Session) ID() string {
	return s.conn.ID()
}

// Context is cancelled once the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Enqueue hands data to the write pump without blocking. It reports false
// when the client is not keeping up.
func (s *Session) Enqueue(data []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Run pumps until the client disconnects or the session is closed, then
// calls onDone once.
func (s *Session) Run(onDone func(error)) {
	go s.writePump()
	err := s.readPump()
	s.Close(err)
	if onDone != nil {
		onDone(err)
	}
}

// readPump discards inbound frames; it only tracks liveness.
func (s *Session) readPump() error {
	s.conn.socket.SetReadLimit(maxInbound)
	_ = s.conn.socket.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.socket.SetPongHandler(func(string) error {
		s.conn.touch()
		return s.conn.socket.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WarnTag("WebSocket", "session %s read error: %v", s.ID(), err)
			}
			return err
		}
		_ = s.conn.socket.SetReadDeadline(time.Now().Add(s.pongWait))
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), writeWait)
			_ = s.conn.Close()
			return
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg, writeWait); err != nil {
				s.cancel(err)
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil, writeWait); err != nil {
				s.cancel(err)
				_ = s.conn.Close()
				return
			}
		}
	}
}

// Close attempts to gracefully terminate the session.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(reason)

	if !errors.Is(reason, ErrSessionShutdown) {
		s.logger.DebugTag("WebSocket", "session %s closed: %v", s.ID(), reason)
	}
}
