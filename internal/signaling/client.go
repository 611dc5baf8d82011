package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huddlehq/huddle/pkg/logger"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

// Client is one realtime connection owned by this process instance.
type Client struct {
	id     string
	userID string
	name   string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// rooms this connection subscribed to, guarded by hub.mu.
	rooms map[string]struct{}

	mu     sync.RWMutex
	closed bool
}

func (c *Client) trySend(frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		logger.Warn("dropping frame for slow client", "user_id", c.userID)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientMessage is the frame read from websocket clients.
type clientMessage struct {
	Event         string          `json:"event"`
	RoomID        string          `json:"room_id"`
	ParticipantID string          `json:"participant_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func (s *Server) readPump(ctx context.Context, c *Client) {
	defer func() {
		s.disconnect(ctx, c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
		s.handleMessage(ctx, c, data)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *Client, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("bad websocket frame", "user_id", c.userID, "error", err)
		return
	}
	if msg.RoomID == "" {
		s.sendError(c, msg.Event, "room_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch msg.Event {
	case "join-room":
		s.hub.JoinRoom(c, msg.RoomID)
		s.broadcastPresence(ctx, c, msg.RoomID, "user-joined-signal")

	case "waiting-room-join":
		// The store insert already happened on the HTTP join path; this
		// is the realtime hint the host's waiting list refreshes on.
		s.hub.JoinRoom(c, msg.RoomID)
		err := s.hub.Broadcast(ctx, msg.RoomID, "pending-participant", pendingPayload{
			UserID:       c.userID,
			UserName:     c.name,
			ConnectionID: c.id,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to announce pending participant", "error", err)
		}

	case "admit-user":
		if msg.ParticipantID == "" {
			s.sendError(c, msg.Event, "participant_id is required")
			return
		}
		if _, err := s.admissions.Admit(ctx, msg.RoomID, c.userID, msg.ParticipantID); err != nil {
			s.sendError(c, msg.Event, err.Error())
		}

	case "deny-user":
		if msg.ParticipantID == "" {
			s.sendError(c, msg.Event, "participant_id is required")
			return
		}
		if err := s.admissions.Deny(ctx, msg.RoomID, c.userID, msg.ParticipantID); err != nil {
			s.sendError(c, msg.Event, err.Error())
		}

	case "leave-room":
		if err := s.admissions.Leave(ctx, msg.RoomID, c.userID); err != nil {
			logger.ErrorContext(ctx, "leave failed", "error", err, "room_id", msg.RoomID)
		}
		s.broadcastPresence(ctx, c, msg.RoomID, "user-left-signal")
		s.hub.LeaveRoom(c, msg.RoomID)

	case "chat-message", "reaction", "toggle-hand":
		// Pure relay, no server-side state.
		err := s.hub.Broadcast(ctx, msg.RoomID, msg.Event, relayPayload{
			UserID:   c.userID,
			UserName: c.name,
			Data:     msg.Data,
		})
		if err != nil {
			logger.ErrorContext(ctx, "relay broadcast failed", "event", msg.Event, "error", err)
		}

	default:
		logger.Warn("unknown websocket event", "event", msg.Event, "user_id", c.userID)
	}
}

func (s *Server) broadcastPresence(ctx context.Context, c *Client, roomID, event string) {
	err := s.hub.Broadcast(ctx, roomID, event, presencePayload{
		RoomID:   roomID,
		UserID:   c.userID,
		UserName: c.name,
	})
	if err != nil {
		logger.ErrorContext(ctx, "presence broadcast failed", "event", event, "error", err)
	}
}

func (s *Server) sendError(c *Client, event, message string) {
	frame, err := json.Marshal(serverMessage{
		Event: "error",
		Data:  mustJSON(errorPayload{For: event, Message: message}),
	})
	if err != nil {
		return
	}
	c.trySend(frame)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

type presencePayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type pendingPayload struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	ConnectionID string `json:"connection_id"`
}

type relayPayload struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type errorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}
