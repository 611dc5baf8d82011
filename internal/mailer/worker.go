package mailer

import (
	"encoding/json"
	"fmt"

	"github.com/huddlehq/huddle/pkg/events"
	"github.com/huddlehq/huddle/pkg/logger"
)

// Worker drains notify.send events into the mail service. Failures are
// logged and dropped: notifications are best-effort by contract.
type Worker struct {
	bus    events.Subscriber
	mailer Service
}

func NewWorker(bus events.Subscriber, mailer Service) *Worker {
	return &Worker{bus: bus, mailer: mailer}
}

func (w *Worker) Start() error {
	return w.bus.QueueSubscribe(events.NotifySend, "mailer", w.handle)
}

func (w *Worker) handle(msg *events.Message) {
	var event events.NotificationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("dropping malformed notification event", "error", err)
		return
	}

	text := renderText(&event)
	if _, err := w.mailer.Send(event.Recipient, "", event.Subject, text, ""); err != nil {
		logger.Error("failed to send notification",
			"error", err, "type", event.Type, "recipient", event.Recipient)
	}
}

func renderText(event *events.NotificationEvent) string {
	code, _ := event.Data["code"].(string)
	title, _ := event.Data["title"].(string)
	startTime, _ := event.Data["start_time"].(string)

	switch event.Type {
	case "meeting_reminder":
		return fmt.Sprintf("Your meeting %q starts at %s.\nJoin with code %s.", title, startTime, code)
	case "meeting_invite":
		return fmt.Sprintf("You are invited to %q at %s.\nJoin with code %s.", title, startTime, code)
	default:
		return fmt.Sprintf("Meeting %s: code %s", title, code)
	}
}
