package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/huddlehq/huddle/pkg/logger"
)

// Hub is the process-local half of the signaling bus: it tracks which
// connections this instance owns and which rooms they watch. All outbound
// delivery goes through the shared fanout, so a Hub never assumes the
// target connection is local.
type Hub struct {
	fanout Fanout

	mu      sync.RWMutex
	clients map[string]*Client
	users   map[string]*Client
	rooms   map[string]map[*Client]struct{}
}

func NewHub(fanout Fanout) *Hub {
	return &Hub{
		fanout:  fanout,
		clients: make(map[string]*Client),
		users:   make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Run subscribes to the fanout and dispatches envelopes to local
// connections until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.fanout.Subscribe(ctx, roomChannelPattern, userChannelPattern)
	if err != nil {
		return fmt.Errorf("fanout subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			h.dispatch(msg)
		}
	}
}

// Broadcast publishes an event to every connection subscribed to the
// room, on every process instance.
func (h *Hub) Broadcast(ctx context.Context, roomID, event string, payload any) error {
	return h.publish(ctx, roomChannel(roomID), Envelope{Event: event, RoomID: roomID}, payload)
}

// Unicast publishes an event addressed to a single participant, wherever
// their connection terminates. An unknown target is not an error: the
// message is simply dropped and the client's poll loop catches up.
func (h *Hub) Unicast(ctx context.Context, userID, event string, payload any) error {
	return h.publish(ctx, userChannel(userID), Envelope{Event: event, UserID: userID}, payload)
}

func (h *Hub) publish(ctx context.Context, channel string, env Envelope, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env.Payload = raw

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return h.fanout.Publish(ctx, channel, data)
}

func (h *Hub) dispatch(msg FanoutMessage) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		logger.Warn("dropping malformed fanout envelope", "channel", msg.Channel, "error", err)
		return
	}

	frame, err := json.Marshal(serverMessage{
		Event:  env.Event,
		RoomID: env.RoomID,
		Data:   env.Payload,
	})
	if err != nil {
		logger.Error("failed to encode client frame", "event", env.Event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if env.UserID != "" {
		if c, ok := h.users[env.UserID]; ok {
			c.trySend(frame)
		}
		return
	}

	for c := range h.rooms[env.RoomID] {
		c.trySend(frame)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.users[c.userID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	if cur, ok := h.users[c.userID]; ok && cur == c {
		delete(h.users, c.userID)
	}
	for roomID := range c.rooms {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// JoinRoom subscribes a connection to a room's broadcast scope.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	c.rooms[roomID] = struct{}{}
}

// LeaveRoom drops a connection's subscription to a room.
func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(c.rooms, roomID)
}

// serverMessage is the frame written to websocket clients.
type serverMessage struct {
	Event  string          `json:"event"`
	RoomID string          `json:"room_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}
