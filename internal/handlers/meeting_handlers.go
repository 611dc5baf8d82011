package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/response"
	"github.com/huddlehq/huddle/pkg/logger"
)

func (h *Handlers) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req domain.MeetingCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	m, err := h.meetings.Create(r.Context(), claims.Sub, &req)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}

	logger.InfoContext(r.Context(), "meeting created", "meeting_code", m.Code)
	response.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handlers) CreateInstantMeeting(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req struct {
		Title    string          `json:"title"`
		Settings domain.Settings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	m, err := h.meetings.CreateInstant(r.Context(), claims.Sub, req.Title, req.Settings)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}

	logger.InfoContext(r.Context(), "instant meeting created", "meeting_code", m.Code)
	response.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListMeetings(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	meetings, err := h.meetings.ListByHost(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	if meetings == nil {
		meetings = []domain.Meeting{}
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

func (h *Handlers) GetMeeting(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !domain.ValidCode(code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	m, err := h.meetings.Get(r.Context(), code)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, m)
}

func (h *Handlers) RSVP(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !domain.ValidCode(code) {
		response.BadRequest(w, "invalid meeting code")
		return
	}

	var req struct {
		Email  string `json:"email"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	status, ok := domain.ParseAttendeeStatus(req.Status)
	if !ok || status == domain.AttendeePending {
		response.BadRequest(w, "status must be accepted or declined")
		return
	}

	if err := h.meetings.RSVP(r.Context(), code, req.Email, status); err != nil {
		response.FromDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
