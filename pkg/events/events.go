package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huddlehq/huddle/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	MeetingCreated = "meeting.created"
	MeetingStarted = "meeting.started"
	MeetingEnded   = "meeting.ended"

	ParticipantAdmitted = "participant.admitted"
	ParticipantDenied   = "participant.denied"

	NotifySend = "notify.send"
)

type MeetingCreatedEvent struct {
	MeetingID string    `json:"meeting_id"`
	Code      string    `json:"code"`
	HostID    string    `json:"host_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	CreatedAt time.Time `json:"created_at"`
}

type MeetingStartedEvent struct {
	MeetingID string    `json:"meeting_id"`
	Code      string    `json:"code"`
	HostID    string    `json:"host_id"`
	StartedAt time.Time `json:"started_at"`
}

type MeetingEndedEvent struct {
	MeetingID string    `json:"meeting_id"`
	Code      string    `json:"code"`
	EndedAt   time.Time `json:"ended_at"`
}

type ParticipantAdmittedEvent struct {
	MeetingID     string    `json:"meeting_id"`
	Code          string    `json:"code"`
	ParticipantID string    `json:"participant_id"`
	AdmittedAt    time.Time `json:"admitted_at"`
}

type ParticipantDeniedEvent struct {
	MeetingID     string    `json:"meeting_id"`
	Code          string    `json:"code"`
	ParticipantID string    `json:"participant_id"`
	DeniedAt      time.Time `json:"denied_at"`
}

type NotificationEvent struct {
	Type      string                 `json:"type"`
	Recipient string                 `json:"recipient"`
	Subject   string                 `json:"subject"`
	Data      map[string]interface{} `json:"data"`
}
