package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"matrix-server-go/internal/platform/logging"
)

// ServerConfig stores the settings of the event stream endpoint.
type ServerConfig struct {
	Path         string
	PingInterval time.Duration
}

// Server upgrades requests on Path and hands them to the hub.
type Server struct {
	cfg      ServerConfig
	hub      *Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewServer builds the event stream endpoint. Sessions end when ctx does.
func NewServer(ctx context.Context, cfg ServerConfig, hub *Hub, logger *logging.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws/events"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return &Server{
		cfg:    cfg,
		hub:    hub,
		logger: logger,
		ctx:    ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// origin is enforced by the CORS middleware
				return true
			},
		},
	}
}

// Register mounts the endpoint on router.
func (s *Server) Register(router gin.IRoutes) {
	router.GET(s.cfg.Path, s.handle)
	s.logger.InfoTag("WebSocket", "event stream on %s", s.cfg.Path)
}

func (s *Server) handle(c *gin.Context) {
	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnTag("WebSocket", "upgrade failed: %v", err)
		return
	}

	conn := NewConnection(uuid.NewString(), socket)
	session := NewSession(s.ctx, conn, s.cfg.PingInterval, s.logger)
	s.hub.Register(session)

	go session.Run(func(error) {
		s.hub.Unregister(session.ID())
	})
}

// Stop closes every open session.
func (s *Server) Stop() {
	s.hub.CloseAll(ErrSessionShutdown)
}

// Count exposes the number of connected clients.
func (s *Server) Count() int {
	return s.hub.Count()
}
