package service

import (
	"context"
	"fmt"
	"time"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/repository"
	"github.com/huddlehq/huddle/pkg/events"
	"github.com/huddlehq/huddle/pkg/logger"
)

// ReminderScheduler sweeps for meetings entering their notification
// window and queues one reminder per invited attendee. The reminder_sent
// flag is flipped first under a store-level guard, so concurrent sweeps
// (or multiple instances) send at most one batch per meeting; a crash
// between flip and send loses at most one batch, a crash between send and
// flip duplicates at most one. At-least-once is the contract.
type ReminderScheduler struct {
	repo     repository.MeetingRepository
	eventBus events.Publisher

	tick     time.Duration
	leadTime time.Duration
	window   time.Duration

	now func() time.Time
}

func NewReminderScheduler(repo repository.MeetingRepository, eventBus events.Publisher, tick, leadTime, window time.Duration) *ReminderScheduler {
	return &ReminderScheduler{
		repo:     repo,
		eventBus: eventBus,
		tick:     tick,
		leadTime: leadTime,
		window:   window,
		now:      time.Now,
	}
}

// Run sweeps once per tick until ctx is canceled.
func (s *ReminderScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.ErrorContext(ctx, "reminder sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs a single pass over the notification window.
func (s *ReminderScheduler) Sweep(ctx context.Context) error {
	now := s.now()
	from := now.Add(s.leadTime - s.window)
	to := now.Add(s.leadTime)

	due, err := s.repo.DueForReminder(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to query due meetings: %w", err)
	}

	for _, m := range due {
		won, err := s.repo.MarkReminderSent(ctx, m.ID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark reminder sent", "error", err, "meeting_id", m.ID)
			continue
		}
		if !won {
			// Another tick or instance got there first.
			continue
		}
		s.notify(ctx, &m)
	}
	return nil
}

func (s *ReminderScheduler) notify(ctx context.Context, m *domain.Meeting) {
	attendees, err := s.repo.ListAttendees(ctx, m.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load attendees for reminder", "error", err, "meeting_id", m.ID)
		return
	}

	sent := 0
	for _, a := range attendees {
		if a.Status == domain.AttendeeDeclined {
			continue
		}
		event := events.NotificationEvent{
			Type:      "meeting_reminder",
			Recipient: a.Email,
			Subject:   fmt.Sprintf("Starting soon: %s", m.Title),
			Data: map[string]interface{}{
				"code":       m.Code,
				"title":      m.Title,
				"start_time": m.StartTime.Format(time.RFC3339),
			},
		}
		if err := s.eventBus.Publish(ctx, events.NotifySend, event); err != nil {
			// Per-attendee failures do not block the rest of the batch.
			logger.ErrorContext(ctx, "failed to queue reminder", "error", err, "recipient", a.Email)
			continue
		}
		sent++
	}

	logger.InfoContext(ctx, "reminder batch queued", "meeting_code", m.Code, "attendees", sent)
}
