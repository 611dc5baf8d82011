package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/pkg/events"
)

func newMeetingFixture() (*fakeRepo, *fakePublisher, MeetingService) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewMeetingService(repo, NewCodeGenerator(repo), pub)
	return repo, pub, svc
}

func TestCreateMeeting(t *testing.T) {
	_, pub, svc := newMeetingFixture()

	start := time.Now().Add(time.Hour)
	m, err := svc.Create(context.Background(), "host-1", &domain.MeetingCreateReq{
		Title:     "  Quarterly review ",
		Duration:  45,
		StartTime: &start,
		Settings:  domain.Settings{WaitingRoom: true},
		Attendees: []string{"First@Example.com", "", "second@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if !domain.ValidCode(m.Code) {
		t.Fatalf("malformed code %q", m.Code)
	}
	if m.Title != "Quarterly review" {
		t.Fatalf("expected trimmed title, got %q", m.Title)
	}
	if m.Status != domain.MeetingScheduled {
		t.Fatalf("expected scheduled, got %s", m.Status)
	}
	if len(m.Attendees) != 2 || m.Attendees[0].Email != "first@example.com" {
		t.Fatalf("expected normalized attendees, got %+v", m.Attendees)
	}

	if pub.count(events.MeetingCreated) != 1 {
		t.Fatalf("expected one meeting.created event, got %d", pub.count(events.MeetingCreated))
	}
	if pub.count(events.NotifySend) != 2 {
		t.Fatalf("expected one invite per attendee, got %d", pub.count(events.NotifySend))
	}
}

func TestCreateMeetingFromDateAndTime(t *testing.T) {
	_, _, svc := newMeetingFixture()

	day := time.Now().Add(48 * time.Hour)
	m, err := svc.Create(context.Background(), "host-1", &domain.MeetingCreateReq{
		Title:    "Planning",
		Duration: 30,
		Date:     day.Format("2006-01-02"),
		Time:     "14:30",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.StartTime.Hour() != 14 || m.StartTime.Minute() != 30 {
		t.Fatalf("unexpected start time %v", m.StartTime)
	}
}

func TestCreateMeetingValidation(t *testing.T) {
	_, _, svc := newMeetingFixture()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name  string
		req   domain.MeetingCreateReq
		field string
	}{
		{"missing title", domain.MeetingCreateReq{Duration: 30, StartTime: &future}, "title"},
		{"duration too short", domain.MeetingCreateReq{Title: "x", Duration: 2, StartTime: &future}, "duration"},
		{"duration too long", domain.MeetingCreateReq{Title: "x", Duration: 600, StartTime: &future}, "duration"},
		{"start in the past", domain.MeetingCreateReq{Title: "x", Duration: 30, StartTime: &past}, "start_time"},
		{"no start at all", domain.MeetingCreateReq{Title: "x", Duration: 30}, "start_time"},
		{"garbled date", domain.MeetingCreateReq{Title: "x", Duration: 30, Date: "tomorrow", Time: "noon"}, "date"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "host-1", &tc.req)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestCreateDuplicateMeeting(t *testing.T) {
	_, _, svc := newMeetingFixture()
	start := time.Now().Add(time.Hour)

	req := domain.MeetingCreateReq{Title: "Standup", Duration: 15, StartTime: &start}
	if _, err := svc.Create(context.Background(), "host-1", &req); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(context.Background(), "host-1", &req); !errors.Is(err, domain.ErrDuplicateMeeting) {
		t.Fatalf("expected ErrDuplicateMeeting, got %v", err)
	}
}

func TestCreateInstantMeeting(t *testing.T) {
	_, _, svc := newMeetingFixture()

	m, err := svc.CreateInstant(context.Background(), "host-1", "", domain.Settings{})
	if err != nil {
		t.Fatalf("create instant: %v", err)
	}
	if m.Status != domain.MeetingActive {
		t.Fatalf("instant meetings start active, got %s", m.Status)
	}
	if m.Title != "Instant meeting" {
		t.Fatalf("expected default title, got %q", m.Title)
	}
	if m.Duration != instantMeetingDuration {
		t.Fatalf("expected default duration %d, got %d", instantMeetingDuration, m.Duration)
	}
}

func TestRSVP(t *testing.T) {
	repo, _, svc := newMeetingFixture()
	start := time.Now().Add(time.Hour)

	m, err := svc.Create(context.Background(), "host-1", &domain.MeetingCreateReq{
		Title:     "Town hall",
		Duration:  60,
		StartTime: &start,
		Attendees: []string{"guest@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.RSVP(context.Background(), m.Code, "Guest@Example.com", domain.AttendeeAccepted); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	attendees, _ := repo.ListAttendees(context.Background(), m.ID)
	if attendees[0].Status != domain.AttendeeAccepted {
		t.Fatalf("expected accepted, got %s", attendees[0].Status)
	}

	err = svc.RSVP(context.Background(), m.Code, "stranger@example.com", domain.AttendeeDeclined)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown attendee, got %v", err)
	}
}

func TestGetUnknownMeeting(t *testing.T) {
	_, _, svc := newMeetingFixture()
	if _, err := svc.Get(context.Background(), "ZZZ-ZZZ-ZZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
