package domain

import (
	"regexp"
	"time"
)

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingEnded     MeetingStatus = "ended"
)

func ParseMeetingStatus(s string) (MeetingStatus, bool) {
	switch MeetingStatus(s) {
	case MeetingScheduled, MeetingActive, MeetingEnded:
		return MeetingStatus(s), true
	default:
		return "", false
	}
}

type AttendeeStatus string

const (
	AttendeePending  AttendeeStatus = "pending"
	AttendeeAccepted AttendeeStatus = "accepted"
	AttendeeDeclined AttendeeStatus = "declined"
)

func ParseAttendeeStatus(s string) (AttendeeStatus, bool) {
	switch AttendeeStatus(s) {
	case AttendeePending, AttendeeAccepted, AttendeeDeclined:
		return AttendeeStatus(s), true
	default:
		return "", false
	}
}

type Settings struct {
	WaitingRoom bool `json:"waiting_room"`
	MuteOnEntry bool `json:"mute_on_entry"`
}

type Participant struct {
	UserID   string     `json:"user_id"`
	Name     string     `json:"name"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type PendingParticipant struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	RequestedAt time.Time `json:"requested_at"`
}

type Attendee struct {
	Email  string         `json:"email"`
	Status AttendeeStatus `json:"status"`
}

type Meeting struct {
	ID          string        `json:"id"`
	Code        string        `json:"code"`
	HostID      string        `json:"host_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      MeetingStatus `json:"status"`
	StartTime   time.Time     `json:"start_time"`
	Duration    int           `json:"duration"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Settings    Settings      `json:"settings"`
	Attendees   []Attendee    `json:"attendees,omitempty"`

	ReminderSent bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type MeetingCreateReq struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   *time.Time `json:"start_time"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Duration    int        `json:"duration"`
	Settings    Settings   `json:"settings"`
	Attendees   []string   `json:"attendees"`
}

// Business rules
const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}-[A-Z]{3}-[A-Z]{3}$`)

// ValidCode reports whether s is a well-formed meeting code (XXX-XXX-XXX).
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// IsHost reports whether the given user owns this meeting.
func (m *Meeting) IsHost(userID string) bool {
	return m.HostID == userID
}

// AcceptsJoins reports whether the meeting can still take joiners.
func (m *Meeting) AcceptsJoins() bool {
	return m.Status != MeetingEnded
}
