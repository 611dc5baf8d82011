package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/huddlehq/huddle/internal/domain"
)

// ---------- Fakes ----------

type fakeRepo struct {
	mu           sync.Mutex
	meetings     map[string]*domain.Meeting // keyed by code
	participants map[string]map[string]*domain.Participant
	pending      map[string]map[string]*domain.PendingParticipant
	attendees    map[string][]domain.Attendee
	activations  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		meetings:     make(map[string]*domain.Meeting),
		participants: make(map[string]map[string]*domain.Participant),
		pending:      make(map[string]map[string]*domain.PendingParticipant),
		attendees:    make(map[string][]domain.Attendee),
	}
}

func (f *fakeRepo) add(m *domain.Meeting) *domain.Meeting {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	f.meetings[m.Code] = m
	return m
}

func (f *fakeRepo) byID(id string) *domain.Meeting {
	for _, m := range f.meetings {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (f *fakeRepo) Create(_ context.Context, m *domain.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.meetings[m.Code]; ok {
		return domain.ErrCodeTaken
	}
	for _, existing := range f.meetings {
		if existing.HostID == m.HostID && existing.Title == m.Title && existing.StartTime.Equal(m.StartTime) {
			return domain.ErrDuplicateMeeting
		}
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	copied := *m
	f.meetings[m.Code] = &copied
	f.attendees[m.ID] = append([]domain.Attendee(nil), m.Attendees...)
	return nil
}

func (f *fakeRepo) GetByCode(_ context.Context, code string) (*domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[code]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID(id)
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (f *fakeRepo) ListByHost(_ context.Context, hostID string, _, _ int) ([]domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Meeting
	for _, m := range f.meetings {
		if m.HostID == hostID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeRepo) CodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.meetings[code]
	return ok, nil
}

func (f *fakeRepo) Activate(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[code]
	if !ok || m.Status != domain.MeetingScheduled {
		return false, nil
	}
	m.Status = domain.MeetingActive
	f.activations++
	return true, nil
}

func (f *fakeRepo) End(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[code]
	if !ok || m.Status == domain.MeetingEnded {
		return false, nil
	}
	m.Status = domain.MeetingEnded
	now := time.Now()
	m.EndTime = &now
	return true, nil
}

func (f *fakeRepo) AddParticipant(_ context.Context, meetingID, userID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID(meetingID)
	if m == nil || m.Status == domain.MeetingEnded {
		return domain.ErrEnded
	}
	if f.participants[meetingID] == nil {
		f.participants[meetingID] = make(map[string]*domain.Participant)
	}
	if p, ok := f.participants[meetingID][userID]; ok {
		p.LeftAt = nil
		p.Name = name
		return nil
	}
	f.participants[meetingID][userID] = &domain.Participant{
		UserID:   userID,
		Name:     name,
		JoinedAt: time.Now(),
	}
	return nil
}

func (f *fakeRepo) IsParticipant(_ context.Context, meetingID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.participants[meetingID][userID]
	return ok, nil
}

func (f *fakeRepo) MarkLeft(_ context.Context, meetingID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[meetingID][userID]; ok && p.LeftAt == nil {
		now := time.Now()
		p.LeftAt = &now
	}
	return nil
}

func (f *fakeRepo) ListParticipants(_ context.Context, meetingID string) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Participant
	for _, p := range f.participants[meetingID] {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeRepo) AddPending(_ context.Context, meetingID, userID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID(meetingID)
	if m == nil || m.Status == domain.MeetingEnded {
		return nil
	}
	if p, ok := f.participants[meetingID][userID]; ok && p.LeftAt == nil {
		return nil
	}
	if _, ok := f.pending[meetingID][userID]; ok {
		return nil
	}
	if f.pending[meetingID] == nil {
		f.pending[meetingID] = make(map[string]*domain.PendingParticipant)
	}
	f.pending[meetingID][userID] = &domain.PendingParticipant{
		UserID:      userID,
		Name:        name,
		RequestedAt: time.Now(),
	}
	return nil
}

func (f *fakeRepo) IsPending(_ context.Context, meetingID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[meetingID][userID]
	return ok, nil
}

func (f *fakeRepo) RemovePending(_ context.Context, meetingID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[meetingID][userID]
	if !ok {
		return "", domain.ErrNotPending
	}
	delete(f.pending[meetingID], userID)
	return p.Name, nil
}

func (f *fakeRepo) PromotePending(_ context.Context, meetingID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[meetingID][userID]
	if !ok {
		return "", domain.ErrNotPending
	}
	delete(f.pending[meetingID], userID)
	if f.participants[meetingID] == nil {
		f.participants[meetingID] = make(map[string]*domain.Participant)
	}
	if existing, ok := f.participants[meetingID][userID]; ok {
		existing.LeftAt = nil
	} else {
		f.participants[meetingID][userID] = &domain.Participant{
			UserID:   userID,
			Name:     p.Name,
			JoinedAt: time.Now(),
		}
	}
	return p.Name, nil
}

func (f *fakeRepo) ListPending(_ context.Context, meetingID string) ([]domain.PendingParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PendingParticipant
	for _, p := range f.pending[meetingID] {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeRepo) UpdateSettings(_ context.Context, meetingID string, settings domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID(meetingID)
	if m == nil || m.Status == domain.MeetingEnded {
		return domain.ErrEnded
	}
	m.Settings = settings
	return nil
}

func (f *fakeRepo) ListAttendees(_ context.Context, meetingID string) ([]domain.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Attendee(nil), f.attendees[meetingID]...), nil
}

func (f *fakeRepo) SetAttendeeStatus(_ context.Context, meetingID, email string, status domain.AttendeeStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.attendees[meetingID] {
		if strings.EqualFold(a.Email, email) {
			f.attendees[meetingID][i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) DueForReminder(_ context.Context, from, to time.Time) ([]domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Meeting
	for _, m := range f.meetings {
		if m.Status == domain.MeetingScheduled && !m.ReminderSent &&
			!m.StartTime.Before(from) && m.StartTime.Before(to) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkReminderSent(_ context.Context, meetingID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID(meetingID)
	if m == nil || m.ReminderSent {
		return false, nil
	}
	m.ReminderSent = true
	return true, nil
}

type sentEvent struct {
	scope   string // "room" or "user"
	target  string
	event   string
	payload any
}

type fakeBus struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeBus) Broadcast(_ context.Context, roomID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{scope: "room", target: roomID, event: event, payload: payload})
	return nil
}

func (f *fakeBus) Unicast(_ context.Context, userID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{scope: "user", target: userID, event: event, payload: payload})
	return nil
}

func (f *fakeBus) find(scope, event string) *sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sent {
		if f.sent[i].scope == scope && f.sent[i].event == event {
			return &f.sent[i]
		}
	}
	return nil
}

type fakeMinter struct {
	fail bool
}

func (f *fakeMinter) MintAccessToken(userID, roomName, displayName string, _ time.Duration) (string, error) {
	if f.fail {
		return "", context.DeadlineExceeded
	}
	return "token-" + userID + "@" + roomName, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// ---------- Helpers ----------

func newAdmissionFixture() (*fakeRepo, *fakeBus, *fakePublisher, AdmissionService) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	pub := &fakePublisher{}
	svc := NewAdmissionService(repo, bus, &fakeMinter{}, pub, 15*time.Minute)
	return repo, bus, pub, svc
}

func waitingRoomMeeting(repo *fakeRepo, code string) *domain.Meeting {
	return repo.add(&domain.Meeting{
		ID:        uuid.NewString(),
		Code:      code,
		HostID:    "host-1",
		Title:     "Standup",
		Status:    domain.MeetingActive,
		StartTime: time.Now(),
		Duration:  30,
		Settings:  domain.Settings{WaitingRoom: true},
	})
}

// ---------- Tests ----------

func TestJoinUnknownCode(t *testing.T) {
	_, _, _, svc := newAdmissionFixture()

	decision, err := svc.Join(context.Background(), "AAA-BBB-CCC", "u1", "Uma")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := decision.(domain.NotFound); !ok {
		t.Fatalf("expected NotFound, got %T", decision)
	}
}

func TestJoinEndedMeeting(t *testing.T) {
	repo, _, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")
	repo.meetings[m.Code].Status = domain.MeetingEnded

	decision, err := svc.Join(context.Background(), m.Code, "u1", "Uma")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := decision.(domain.Ended); !ok {
		t.Fatalf("expected Ended, got %T", decision)
	}
}

func TestJoinWaitingRoomIsIdempotent(t *testing.T) {
	repo, _, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	for i := 0; i < 2; i++ {
		decision, err := svc.Join(context.Background(), m.Code, "u1", "Uma")
		if err != nil {
			t.Fatalf("join %d: unexpected error: %v", i, err)
		}
		if _, ok := decision.(domain.Pending); !ok {
			t.Fatalf("join %d: expected Pending, got %T", i, decision)
		}
	}

	pending, _ := repo.ListPending(context.Background(), m.ID)
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending entry, got %d", len(pending))
	}
}

func TestHostSkipsWaitingRoom(t *testing.T) {
	repo, _, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	decision, err := svc.Join(context.Background(), m.Code, "host-1", "Holly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	admitted, ok := decision.(domain.Admitted)
	if !ok {
		t.Fatalf("expected Admitted, got %T", decision)
	}
	if admitted.Token == "" {
		t.Fatal("expected a media token for the host")
	}

	if pending, _ := repo.ListPending(context.Background(), m.ID); len(pending) != 0 {
		t.Fatalf("host must never be pending, got %d entries", len(pending))
	}
}

func TestAdmitThenRejoin(t *testing.T) {
	repo, bus, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	if _, err := svc.Join(context.Background(), m.Code, "u1", "Uma"); err != nil {
		t.Fatalf("join: %v", err)
	}

	name, err := svc.Admit(context.Background(), m.Code, "host-1", "u1")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if name != "Uma" {
		t.Fatalf("expected display name Uma, got %q", name)
	}

	unicast := bus.find("user", "admitted")
	if unicast == nil || unicast.target != "u1" {
		t.Fatalf("expected admitted unicast to u1, got %+v", unicast)
	}
	if removal := bus.find("room", "pending-removed"); removal == nil || removal.target != m.Code {
		t.Fatalf("expected pending-removed broadcast to the room, got %+v", removal)
	}

	// The re-join must silently admit without re-queueing.
	decision, err := svc.Join(context.Background(), m.Code, "u1", "Uma")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, ok := decision.(domain.Admitted); !ok {
		t.Fatalf("expected Admitted on rejoin, got %T", decision)
	}

	if pending, _ := repo.ListPending(context.Background(), m.ID); len(pending) != 0 {
		t.Fatalf("expected empty waiting room, got %d entries", len(pending))
	}
	participants, _ := repo.ListParticipants(context.Background(), m.ID)
	if len(participants) != 1 {
		t.Fatalf("expected one participant, got %d", len(participants))
	}
}

func TestAdmitRequiresHost(t *testing.T) {
	repo, _, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	if _, err := svc.Join(context.Background(), m.Code, "u1", "Uma"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := svc.Admit(context.Background(), m.Code, "u2", "u1"); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAdmitNotPending(t *testing.T) {
	repo, _, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	if _, err := svc.Admit(context.Background(), m.Code, "host-1", "ghost"); err != domain.ErrNotPending {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestDenyLeavesParticipantsAlone(t *testing.T) {
	repo, bus, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	// u2 is already in; u1 waits.
	if err := repo.AddParticipant(context.Background(), m.ID, "u2", "Vic"); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	if _, err := svc.Join(context.Background(), m.Code, "u1", "Uma"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.Deny(context.Background(), m.Code, "host-1", "u1"); err != nil {
		t.Fatalf("deny: %v", err)
	}

	if unicast := bus.find("user", "denied"); unicast == nil || unicast.target != "u1" {
		t.Fatalf("expected denied unicast to u1, got %+v", unicast)
	}
	if pending, _ := repo.ListPending(context.Background(), m.ID); len(pending) != 0 {
		t.Fatal("expected pending entry removed")
	}
	participants, _ := repo.ListParticipants(context.Background(), m.ID)
	if len(participants) != 1 || participants[0].UserID != "u2" {
		t.Fatalf("deny must not touch participants, got %+v", participants)
	}
}

func TestScheduledMeetingFlow(t *testing.T) {
	repo, _, pub, svc := newAdmissionFixture()
	m := repo.add(&domain.Meeting{
		ID:        uuid.NewString(),
		Code:      "JKL-MNO-PQR",
		HostID:    "host-1",
		Title:     "Planning",
		Status:    domain.MeetingScheduled,
		StartTime: time.Now().Add(time.Hour),
		Duration:  60,
	})

	// Guest polls before the host arrives.
	decision, err := svc.Join(context.Background(), m.Code, "u1", "Uma")
	if err != nil {
		t.Fatalf("guest join: %v", err)
	}
	notStarted, ok := decision.(domain.NotStarted)
	if !ok {
		t.Fatalf("expected NotStarted, got %T", decision)
	}
	if !notStarted.StartTime.Equal(m.StartTime) {
		t.Fatalf("expected start time %v, got %v", m.StartTime, notStarted.StartTime)
	}

	// Host joins twice; the meeting activates exactly once.
	for i := 0; i < 2; i++ {
		if _, err := svc.Join(context.Background(), m.Code, "host-1", "Holly"); err != nil {
			t.Fatalf("host join %d: %v", i, err)
		}
	}
	if repo.activations != 1 {
		t.Fatalf("expected exactly one activation, got %d", repo.activations)
	}
	if pub.count("meeting.started") != 1 {
		t.Fatalf("expected one meeting.started event, got %d", pub.count("meeting.started"))
	}

	// Guest polls again and gets in.
	decision, err = svc.Join(context.Background(), m.Code, "u1", "Uma")
	if err != nil {
		t.Fatalf("guest rejoin: %v", err)
	}
	if _, ok := decision.(domain.Admitted); !ok {
		t.Fatalf("expected Admitted after activation, got %T", decision)
	}
}

func TestEndMeetingIsHostOnlyAndForwardOnly(t *testing.T) {
	repo, bus, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	if err := svc.EndMeeting(context.Background(), m.Code, "u1"); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if err := svc.EndMeeting(context.Background(), m.Code, "host-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if bus.find("room", "meeting-ended") == nil {
		t.Fatal("expected meeting-ended broadcast")
	}

	decision, err := svc.Join(context.Background(), m.Code, "u1", "Uma")
	if err != nil {
		t.Fatalf("join after end: %v", err)
	}
	if _, ok := decision.(domain.Ended); !ok {
		t.Fatalf("expected Ended, got %T", decision)
	}
}

func TestDisconnectedSweepsPendingEntry(t *testing.T) {
	repo, _, _, svc := newAdmissionFixture()
	m := waitingRoomMeeting(repo, "ABC-DEF-GHI")

	if _, err := svc.Join(context.Background(), m.Code, "u1", "Uma"); err != nil {
		t.Fatalf("join: %v", err)
	}

	svc.Disconnected(context.Background(), m.Code, "u1")

	if pending, _ := repo.ListPending(context.Background(), m.ID); len(pending) != 0 {
		t.Fatal("expected pending entry swept on disconnect")
	}
}
