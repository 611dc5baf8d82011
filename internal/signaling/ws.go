package signaling

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/huddlehq/huddle/pkg/logger"
)

// Admissions is the slice of the admission controller the realtime layer
// needs. Implemented by service.AdmissionService.
type Admissions interface {
	Admit(ctx context.Context, code, hostID, participantID string) (string, error)
	Deny(ctx context.Context, code, hostID, participantID string) error
	Leave(ctx context.Context, code, userID string) error
	Disconnected(ctx context.Context, code, userID string)
}

// Server upgrades HTTP requests to websocket connections and bridges them
// onto the Hub. It is constructed once at process start and injected; there
// is no global socket registry.
type Server struct {
	hub        *Hub
	admissions Admissions
	upgrader   websocket.Upgrader
}

func NewServer(hub *Hub, admissions Admissions) *Server {
	return &Server{
		hub:        hub,
		admissions: admissions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the request for an authenticated user and runs the
// connection's pumps until it drops.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request, userID, name string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		name:   name,
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
	s.hub.register(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go c.writePump(ctx)
	s.readPump(ctx, c)
}

// disconnect tears down a dropped connection: the participant-id
// association and room subscriptions go away, the rooms hear a leave
// signal, and a waiting-room entry left behind is removed opportunistically.
func (s *Server) disconnect(ctx context.Context, c *Client) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s.hub.mu.RLock()
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	s.hub.mu.RUnlock()

	for _, roomID := range rooms {
		s.admissions.Disconnected(cleanupCtx, roomID, c.userID)
		s.broadcastPresence(cleanupCtx, c, roomID, "user-left-signal")
	}

	s.hub.unregister(c)
}
