package ws

import "errors"

var (
	// ErrSessionShutdown is emitted when the server requests a session shutdown.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrSlowConsumer is used when a client cannot keep up with broadcasts.
	ErrSlowConsumer = errors.New("websocket client too slow")
)
