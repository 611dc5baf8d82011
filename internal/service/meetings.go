package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/repository"
	"github.com/huddlehq/huddle/pkg/events"
	"github.com/huddlehq/huddle/pkg/logger"
)

const (
	instantMeetingDuration = 60
	createRetries          = 3
)

type MeetingService interface {
	Create(ctx context.Context, hostID string, req *domain.MeetingCreateReq) (*domain.Meeting, error)
	CreateInstant(ctx context.Context, hostID, title string, settings domain.Settings) (*domain.Meeting, error)
	Get(ctx context.Context, code string) (*domain.Meeting, error)
	ListByHost(ctx context.Context, hostID string, limit, offset int) ([]domain.Meeting, error)
	RSVP(ctx context.Context, code, email string, status domain.AttendeeStatus) error
}

type meetingService struct {
	repo     repository.MeetingRepository
	codes    *CodeGenerator
	eventBus events.Publisher
}

func NewMeetingService(repo repository.MeetingRepository, codes *CodeGenerator, eventBus events.Publisher) MeetingService {
	return &meetingService{
		repo:     repo,
		codes:    codes,
		eventBus: eventBus,
	}
}

func (s *meetingService) Create(ctx context.Context, hostID string, req *domain.MeetingCreateReq) (*domain.Meeting, error) {
	startTime, err := resolveStartTime(req)
	if err != nil {
		return nil, err
	}
	if err := validateCreate(req, startTime); err != nil {
		return nil, err
	}

	m := &domain.Meeting{
		ID:          uuid.NewString(),
		HostID:      hostID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      domain.MeetingScheduled,
		StartTime:   startTime,
		Duration:    req.Duration,
		Settings:    req.Settings,
	}
	for _, email := range req.Attendees {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		m.Attendees = append(m.Attendees, domain.Attendee{Email: email, Status: domain.AttendeePending})
	}

	if err := s.createWithCode(ctx, m); err != nil {
		return nil, err
	}

	s.announce(ctx, m)
	s.sendInvites(ctx, m)

	return m, nil
}

func (s *meetingService) CreateInstant(ctx context.Context, hostID, title string, settings domain.Settings) (*domain.Meeting, error) {
	if strings.TrimSpace(title) == "" {
		title = "Instant meeting"
	}

	m := &domain.Meeting{
		ID:        uuid.NewString(),
		HostID:    hostID,
		Title:     strings.TrimSpace(title),
		Status:    domain.MeetingActive,
		StartTime: time.Now(),
		Duration:  instantMeetingDuration,
		Settings:  settings,
	}

	if err := s.createWithCode(ctx, m); err != nil {
		return nil, err
	}

	s.announce(ctx, m)
	return m, nil
}

// createWithCode persists the meeting, regenerating the code on the
// off-chance another meeting claimed it between the generator's existence
// check and the insert. The store's unique constraint is the real guard.
func (s *meetingService) createWithCode(ctx context.Context, m *domain.Meeting) error {
	for attempt := 0; attempt < createRetries; attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return err
		}
		m.Code = code

		err = s.repo.Create(ctx, m)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if errors.Is(err, domain.ErrDuplicateMeeting) {
			return domain.ErrDuplicateMeeting
		}
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	return domain.ErrCodeExhausted
}

func (s *meetingService) Get(ctx context.Context, code string) (*domain.Meeting, error) {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting: %w", err)
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}

	attendees, err := s.repo.ListAttendees(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendees: %w", err)
	}
	m.Attendees = attendees
	return m, nil
}

func (s *meetingService) ListByHost(ctx context.Context, hostID string, limit, offset int) ([]domain.Meeting, error) {
	return s.repo.ListByHost(ctx, hostID, limit, offset)
}

func (s *meetingService) RSVP(ctx context.Context, code, email string, status domain.AttendeeStatus) error {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to load meeting: %w", err)
	}
	if m == nil {
		return domain.ErrNotFound
	}

	updated, err := s.repo.SetAttendeeStatus(ctx, m.ID, email, status)
	if err != nil {
		return fmt.Errorf("failed to update attendee: %w", err)
	}
	if !updated {
		return domain.Invalid("email", "not on the attendee list")
	}
	return nil
}

func (s *meetingService) announce(ctx context.Context, m *domain.Meeting) {
	event := events.MeetingCreatedEvent{
		MeetingID: m.ID,
		Code:      m.Code,
		HostID:    m.HostID,
		Title:     m.Title,
		StartTime: m.StartTime,
		CreatedAt: m.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.MeetingCreated, event); err != nil {
		logger.ErrorContext(ctx, "failed to publish meeting created event", "error", err, "meeting_id", m.ID)
	}
}

// sendInvites queues one invite notification per attendee. Invites are
// best-effort; a failed publish never fails the create.
func (s *meetingService) sendInvites(ctx context.Context, m *domain.Meeting) {
	for _, a := range m.Attendees {
		event := events.NotificationEvent{
			Type:      "meeting_invite",
			Recipient: a.Email,
			Subject:   fmt.Sprintf("Invitation: %s", m.Title),
			Data: map[string]interface{}{
				"code":       m.Code,
				"title":      m.Title,
				"start_time": m.StartTime.Format(time.RFC3339),
				"duration":   m.Duration,
			},
		}
		if err := s.eventBus.Publish(ctx, events.NotifySend, event); err != nil {
			logger.ErrorContext(ctx, "failed to queue invite", "error", err, "recipient", a.Email)
		}
	}
}

func resolveStartTime(req *domain.MeetingCreateReq) (time.Time, error) {
	if req.StartTime != nil {
		return *req.StartTime, nil
	}
	if req.Date != "" && req.Time != "" {
		t, err := time.Parse("2006-01-02 15:04", req.Date+" "+req.Time)
		if err != nil {
			return time.Time{}, domain.Invalid("date", "expected date YYYY-MM-DD and time HH:MM")
		}
		return t, nil
	}
	return time.Time{}, domain.Invalid("start_time", "start_time or date+time is required")
}

func validateCreate(req *domain.MeetingCreateReq, startTime time.Time) error {
	if strings.TrimSpace(req.Title) == "" {
		return domain.Invalid("title", "title is required")
	}
	if req.Duration < domain.MinDurationMinutes || req.Duration > domain.MaxDurationMinutes {
		return domain.Invalid("duration", fmt.Sprintf("duration must be between %d and %d minutes",
			domain.MinDurationMinutes, domain.MaxDurationMinutes))
	}
	if startTime.Before(time.Now()) {
		return domain.Invalid("start_time", "start time must be in the future")
	}
	return nil
}
