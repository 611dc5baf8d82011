package signaling

import (
	"context"
	"encoding/json"
)

const (
	roomChannelPrefix = "signal:room:"
	userChannelPrefix = "signal:user:"

	roomChannelPattern = roomChannelPrefix + "*"
	userChannelPattern = userChannelPrefix + "*"
)

func roomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

func userChannel(userID string) string {
	return userChannelPrefix + userID
}

// Envelope is the wire format carried across the fanout. RoomID addresses
// a broadcast, UserID a unicast; exactly one of the two is set.
type Envelope struct {
	Event   string          `json:"event"`
	RoomID  string          `json:"room_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FanoutMessage is a raw message received from a subscribed channel.
type FanoutMessage struct {
	Channel string
	Data    []byte
}

// Fanout is the shared pub/sub layer between process instances. Every
// broadcast and unicast routes through it, so delivery works no matter
// which instance terminates the target's connection.
type Fanout interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Subscribe(ctx context.Context, patterns ...string) (<-chan FanoutMessage, error)
	Close() error
}
