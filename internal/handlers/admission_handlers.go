package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/response"
	"github.com/huddlehq/huddle/pkg/logger"
)

type joinRequest struct {
	Code string `json:"code"`
}

type joinResponse struct {
	Status    string          `json:"status"`
	Meeting   *domain.Meeting `json:"meeting,omitempty"`
	Token     string          `json:"token,omitempty"`
	StartTime *time.Time      `json:"start_time,omitempty"`
}

func (h *Handlers) Join(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if !domain.ValidCode(req.Code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	decision, err := h.admissions.Join(r.Context(), req.Code, claims.Sub, claims.Name)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}

	// Every decision variant is handled; a new variant is a compile-time
	// reminder to extend this switch.
	switch d := decision.(type) {
	case domain.Admitted:
		response.WriteJSON(w, http.StatusOK, joinResponse{
			Status:  "admitted",
			Meeting: d.Meeting,
			Token:   d.Token,
		})
	case domain.Pending:
		response.WriteJSON(w, http.StatusOK, joinResponse{
			Status:  "pending",
			Meeting: d.Meeting,
		})
	case domain.NotStarted:
		start := d.StartTime
		response.WriteJSON(w, http.StatusOK, joinResponse{
			Status:    "not_started",
			StartTime: &start,
		})
	case domain.NotFound:
		response.NotFound(w, "meeting not found")
	case domain.Ended:
		response.Gone(w, "meeting has ended")
	default:
		logger.ErrorContext(r.Context(), "unhandled admission decision", "decision", decision)
		response.InternalError(w, "internal error")
	}
}

type hostActionRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
}

func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req hostActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if !domain.ValidCode(req.Code) || req.ParticipantID == "" {
		response.BadRequest(w, "code and participant_id are required")
		return
	}

	name, err := h.admissions.Admit(r.Context(), req.Code, claims.Sub, req.ParticipantID)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}

	logger.InfoContext(r.Context(), "participant admitted",
		"meeting_code", req.Code, "participant_id", req.ParticipantID)
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"participant_name": name,
	})
}

func (h *Handlers) Deny(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req hostActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if !domain.ValidCode(req.Code) || req.ParticipantID == "" {
		response.BadRequest(w, "code and participant_id are required")
		return
	}

	if err := h.admissions.Deny(r.Context(), req.Code, claims.Sub, req.ParticipantID); err != nil {
		response.FromDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) PendingList(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	code := chi.URLParam(r, "code")
	if !domain.ValidCode(code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	pending, err := h.admissions.PendingList(r.Context(), code, claims.Sub)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []domain.PendingParticipant{}
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (h *Handlers) ToggleWaitingRoom(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	code := chi.URLParam(r, "code")
	if !domain.ValidCode(code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	var req struct {
		Enabled     bool  `json:"enabled"`
		MuteOnEntry *bool `json:"mute_on_entry,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	// Preserve mute_on_entry unless explicitly provided.
	current, err := h.meetings.Get(r.Context(), code)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	settings := domain.Settings{
		WaitingRoom: req.Enabled,
		MuteOnEntry: current.Settings.MuteOnEntry,
	}
	if req.MuteOnEntry != nil {
		settings.MuteOnEntry = *req.MuteOnEntry
	}

	m, err := h.admissions.UpdateSettings(r.Context(), code, claims.Sub, settings)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, m)
}

func (h *Handlers) EndMeeting(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	code := chi.URLParam(r, "code")
	if !domain.ValidCode(code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	if err := h.admissions.EndMeeting(r.Context(), code, claims.Sub); err != nil {
		response.FromDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) LeaveMeeting(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	code := chi.URLParam(r, "code")
	if !domain.ValidCode(code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	if err := h.admissions.Leave(r.Context(), code, claims.Sub); err != nil {
		response.FromDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
