package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/huddlehq/huddle/internal/response"
	"github.com/huddlehq/huddle/pkg/logger"
)

type mediaWebhookEvent struct {
	Event  string `json:"event"`
	Room   string `json:"room"`
	UserID string `json:"user_id,omitempty"`
}

// MediaWebhook consumes lifecycle notifications from the SFU. These
// arrive out of band of the HTTP join path and are the only way the core
// learns that a room died without the host ending it.
func (h *Handlers) MediaWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			response.Unauthorized(w, "invalid webhook secret")
			return
		}
	}

	var event mediaWebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if event.Room == "" {
		response.BadRequest(w, "room is required")
		return
	}

	var err error
	switch event.Event {
	case "room_started":
		err = h.admissions.RoomStarted(r.Context(), event.Room)
	case "room_finished":
		err = h.admissions.RoomFinished(r.Context(), event.Room)
	case "participant_left":
		if event.UserID == "" {
			response.BadRequest(w, "user_id is required")
			return
		}
		h.admissions.Disconnected(r.Context(), event.Room, event.UserID)
	default:
		logger.WarnContext(r.Context(), "unknown media webhook event", "event", event.Event)
	}

	if err != nil {
		// The SFU retries on non-2xx; domain-level misses are not worth a retry.
		logger.ErrorContext(r.Context(), "media webhook processing failed",
			"event", event.Event, "room", event.Room, "error", err)
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
