package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/repository"
	"github.com/huddlehq/huddle/pkg/events"
	"github.com/huddlehq/huddle/pkg/logger"
)

// SignalBus is the slice of the signaling hub the admission controller
// publishes decisions through.
type SignalBus interface {
	Broadcast(ctx context.Context, roomID, event string, payload any) error
	Unicast(ctx context.Context, userID, event string, payload any) error
}

// TokenMinter issues media-layer access credentials. Implemented by
// media.JWTMinter; called only after an admitted decision.
type TokenMinter interface {
	MintAccessToken(userID, roomName, displayName string, ttl time.Duration) (string, error)
}

// AdmissionService is the state machine governing who may enter a meeting
// and when. All participant-set mutations go through guarded repository
// operations; this layer sequences them and publishes the outcome.
type AdmissionService interface {
	Join(ctx context.Context, code, userID, userName string) (domain.Decision, error)
	Admit(ctx context.Context, code, hostID, participantID string) (string, error)
	Deny(ctx context.Context, code, hostID, participantID string) error
	PendingList(ctx context.Context, code, hostID string) ([]domain.PendingParticipant, error)
	UpdateSettings(ctx context.Context, code, hostID string, settings domain.Settings) (*domain.Meeting, error)
	EndMeeting(ctx context.Context, code, hostID string) error
	Leave(ctx context.Context, code, userID string) error
	Disconnected(ctx context.Context, code, userID string)

	// Media-layer lifecycle webhooks.
	RoomStarted(ctx context.Context, code string) error
	RoomFinished(ctx context.Context, code string) error
}

type admissionService struct {
	repo     repository.MeetingRepository
	bus      SignalBus
	minter   TokenMinter
	eventBus events.Publisher
	ttlSlack time.Duration
}

func NewAdmissionService(
	repo repository.MeetingRepository,
	bus SignalBus,
	minter TokenMinter,
	eventBus events.Publisher,
	ttlSlack time.Duration,
) AdmissionService {
	return &admissionService{
		repo:     repo,
		bus:      bus,
		minter:   minter,
		eventBus: eventBus,
		ttlSlack: ttlSlack,
	}
}

func (s *admissionService) Join(ctx context.Context, code, userID, userName string) (domain.Decision, error) {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting: %w", err)
	}
	if m == nil {
		return domain.NotFound{}, nil
	}
	if m.Status == domain.MeetingEnded {
		return domain.Ended{}, nil
	}

	isHost := m.IsHost(userID)

	if m.Status == domain.MeetingScheduled {
		if !isHost {
			return domain.NotStarted{StartTime: m.StartTime}, nil
		}

		activated, err := s.repo.Activate(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to activate meeting: %w", err)
		}
		m.Status = domain.MeetingActive
		if activated {
			s.publish(ctx, events.MeetingStarted, events.MeetingStartedEvent{
				MeetingID: m.ID,
				Code:      m.Code,
				HostID:    m.HostID,
				StartedAt: time.Now(),
			})
		}
	}

	if m.Settings.WaitingRoom && !isHost {
		// A user already holding a participant row re-enters silently;
		// everyone else waits for the host.
		isParticipant, err := s.repo.IsParticipant(ctx, m.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check membership: %w", err)
		}
		if !isParticipant {
			if err := s.repo.AddPending(ctx, m.ID, userID, userName); err != nil {
				return nil, fmt.Errorf("failed to queue participant: %w", err)
			}
			return domain.Pending{Meeting: m}, nil
		}
	}

	if err := s.repo.AddParticipant(ctx, m.ID, userID, userName); err != nil {
		if errors.Is(err, domain.ErrEnded) {
			return domain.Ended{}, nil
		}
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	token, err := s.minter.MintAccessToken(userID, m.Code, userName, s.tokenTTL(m))
	if err != nil {
		return nil, fmt.Errorf("%w: mint access token: %v", domain.ErrUpstream, err)
	}

	return domain.Admitted{Meeting: m, Token: token}, nil
}

func (s *admissionService) Admit(ctx context.Context, code, hostID, participantID string) (string, error) {
	m, err := s.hostMeeting(ctx, code, hostID)
	if err != nil {
		return "", err
	}

	name, err := s.repo.PromotePending(ctx, m.ID, participantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			return "", domain.ErrNotPending
		}
		return "", fmt.Errorf("failed to admit participant: %w", err)
	}

	// Delivery is best-effort: if the participant's connection is gone or
	// the mint fails, their next join poll returns Admitted with a token.
	token, err := s.minter.MintAccessToken(participantID, m.Code, name, s.tokenTTL(m))
	if err != nil {
		logger.ErrorContext(ctx, "failed to mint token for admitted participant",
			"error", err, "meeting_code", m.Code, "participant_id", participantID)
	} else {
		s.unicast(ctx, participantID, "admitted", admittedPayload{RoomID: m.Code, Token: token})
	}
	s.broadcast(ctx, m.Code, "pending-removed", pendingRemovedPayload{RoomID: m.Code, UserID: participantID})

	s.publish(ctx, events.ParticipantAdmitted, events.ParticipantAdmittedEvent{
		MeetingID:     m.ID,
		Code:          m.Code,
		ParticipantID: participantID,
		AdmittedAt:    time.Now(),
	})

	return name, nil
}

func (s *admissionService) Deny(ctx context.Context, code, hostID, participantID string) error {
	m, err := s.hostMeeting(ctx, code, hostID)
	if err != nil {
		return err
	}

	if _, err := s.repo.RemovePending(ctx, m.ID, participantID); err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			return domain.ErrNotPending
		}
		return fmt.Errorf("failed to deny participant: %w", err)
	}

	s.unicast(ctx, participantID, "denied", deniedPayload{RoomID: m.Code})
	s.broadcast(ctx, m.Code, "pending-removed", pendingRemovedPayload{RoomID: m.Code, UserID: participantID})

	s.publish(ctx, events.ParticipantDenied, events.ParticipantDeniedEvent{
		MeetingID:     m.ID,
		Code:          m.Code,
		ParticipantID: participantID,
		DeniedAt:      time.Now(),
	})

	return nil
}

func (s *admissionService) PendingList(ctx context.Context, code, hostID string) ([]domain.PendingParticipant, error) {
	m, err := s.hostMeeting(ctx, code, hostID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPending(ctx, m.ID)
}

func (s *admissionService) UpdateSettings(ctx context.Context, code, hostID string, settings domain.Settings) (*domain.Meeting, error) {
	m, err := s.hostMeeting(ctx, code, hostID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateSettings(ctx, m.ID, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	m.Settings = settings

	s.broadcast(ctx, m.Code, "waiting-room-toggled", settingsPayload{
		RoomID:      m.Code,
		WaitingRoom: settings.WaitingRoom,
		MuteOnEntry: settings.MuteOnEntry,
	})

	return m, nil
}

func (s *admissionService) EndMeeting(ctx context.Context, code, hostID string) error {
	m, err := s.hostMeeting(ctx, code, hostID)
	if err != nil {
		return err
	}
	return s.end(ctx, m)
}

func (s *admissionService) Leave(ctx context.Context, code, userID string) error {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to load meeting: %w", err)
	}
	if m == nil {
		return domain.ErrNotFound
	}
	return s.repo.MarkLeft(ctx, m.ID, userID)
}

// Disconnected handles a dropped realtime connection: mark the
// participant gone and sweep a stale waiting-room entry if one exists.
// Errors are logged, never surfaced; disconnect cleanup is opportunistic.
func (s *admissionService) Disconnected(ctx context.Context, code, userID string) {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil || m == nil {
		return
	}
	if err := s.repo.MarkLeft(ctx, m.ID, userID); err != nil {
		logger.WarnContext(ctx, "failed to mark participant left", "error", err, "meeting_code", code)
	}
	if _, err := s.repo.RemovePending(ctx, m.ID, userID); err != nil && !errors.Is(err, domain.ErrNotPending) {
		logger.WarnContext(ctx, "failed to sweep pending entry", "error", err, "meeting_code", code)
	}
}

func (s *admissionService) RoomStarted(ctx context.Context, code string) error {
	activated, err := s.repo.Activate(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to activate meeting: %w", err)
	}
	if activated {
		logger.InfoContext(ctx, "meeting activated by media layer", "meeting_code", code)
	}
	return nil
}

func (s *admissionService) RoomFinished(ctx context.Context, code string) error {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to load meeting: %w", err)
	}
	if m == nil {
		return domain.ErrNotFound
	}
	return s.end(ctx, m)
}

func (s *admissionService) end(ctx context.Context, m *domain.Meeting) error {
	ended, err := s.repo.End(ctx, m.Code)
	if err != nil {
		return fmt.Errorf("failed to end meeting: %w", err)
	}
	if !ended {
		return nil
	}

	s.broadcast(ctx, m.Code, "meeting-ended", meetingEndedPayload{RoomID: m.Code})
	s.publish(ctx, events.MeetingEnded, events.MeetingEndedEvent{
		MeetingID: m.ID,
		Code:      m.Code,
		EndedAt:   time.Now(),
	})
	return nil
}

func (s *admissionService) hostMeeting(ctx context.Context, code, hostID string) (*domain.Meeting, error) {
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting: %w", err)
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}
	if m.Status == domain.MeetingEnded {
		return nil, domain.ErrEnded
	}
	if !m.IsHost(hostID) {
		return nil, domain.ErrForbidden
	}
	return m, nil
}

func (s *admissionService) tokenTTL(m *domain.Meeting) time.Duration {
	return time.Duration(m.Duration)*time.Minute + s.ttlSlack
}

func (s *admissionService) broadcast(ctx context.Context, roomID, event string, payload any) {
	if err := s.bus.Broadcast(ctx, roomID, event, payload); err != nil {
		logger.WarnContext(ctx, "broadcast failed", "event", event, "room_id", roomID, "error", err)
	}
}

func (s *admissionService) unicast(ctx context.Context, userID, event string, payload any) {
	if err := s.bus.Unicast(ctx, userID, event, payload); err != nil {
		logger.WarnContext(ctx, "unicast failed", "event", event, "user_id", userID, "error", err)
	}
}

func (s *admissionService) publish(ctx context.Context, subject string, event any) {
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}

type admittedPayload struct {
	RoomID string `json:"room_id"`
	Token  string `json:"token"`
}

type deniedPayload struct {
	RoomID string `json:"room_id"`
}

type pendingRemovedPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type settingsPayload struct {
	RoomID      string `json:"room_id"`
	WaitingRoom bool   `json:"waiting_room"`
	MuteOnEntry bool   `json:"mute_on_entry"`
}

type meetingEndedPayload struct {
	RoomID string `json:"room_id"`
}
