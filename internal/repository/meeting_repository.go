package repository

import (
	"context"
	"errors"
	"time"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MeetingRepository is the durable record of meeting state. Every mutation
// that touches participants or status is a single guarded statement (or a
// short transaction) so concurrent admission calls cannot clobber each
// other's writes.
type MeetingRepository interface {
	Create(ctx context.Context, m *domain.Meeting) error
	GetByCode(ctx context.Context, code string) (*domain.Meeting, error)
	GetByID(ctx context.Context, id string) (*domain.Meeting, error)
	ListByHost(ctx context.Context, hostID string, limit, offset int) ([]domain.Meeting, error)
	CodeExists(ctx context.Context, code string) (bool, error)

	Activate(ctx context.Context, code string) (bool, error)
	End(ctx context.Context, code string) (bool, error)

	AddParticipant(ctx context.Context, meetingID, userID, name string) error
	IsParticipant(ctx context.Context, meetingID, userID string) (bool, error)
	MarkLeft(ctx context.Context, meetingID, userID string) error
	ListParticipants(ctx context.Context, meetingID string) ([]domain.Participant, error)

	AddPending(ctx context.Context, meetingID, userID, name string) error
	IsPending(ctx context.Context, meetingID, userID string) (bool, error)
	RemovePending(ctx context.Context, meetingID, userID string) (string, error)
	PromotePending(ctx context.Context, meetingID, userID string) (string, error)
	ListPending(ctx context.Context, meetingID string) ([]domain.PendingParticipant, error)

	UpdateSettings(ctx context.Context, meetingID string, settings domain.Settings) error

	ListAttendees(ctx context.Context, meetingID string) ([]domain.Attendee, error)
	SetAttendeeStatus(ctx context.Context, meetingID, email string, status domain.AttendeeStatus) (bool, error)

	DueForReminder(ctx context.Context, from, to time.Time) ([]domain.Meeting, error)
	MarkReminderSent(ctx context.Context, meetingID string) (bool, error)
}

type meetingRepository struct {
	pool *pgxpool.Pool
}

func NewMeetingRepository(pool *pgxpool.Pool) MeetingRepository {
	return &meetingRepository{pool: pool}
}

const meetingCols = `id, code, host_id, title, description, status,
start_time, duration_min, end_time,
waiting_room, mute_on_entry, reminder_sent,
created_at, updated_at`

func scanMeeting(row pgx.Row) (*domain.Meeting, error) {
	var m domain.Meeting
	var status string
	err := row.Scan(
		&m.ID, &m.Code, &m.HostID, &m.Title, &m.Description, &status,
		&m.StartTime, &m.Duration, &m.EndTime,
		&m.Settings.WaitingRoom, &m.Settings.MuteOnEntry, &m.ReminderSent,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = domain.MeetingStatus(status)
	return &m, nil
}

func (r *meetingRepository) Create(ctx context.Context, m *domain.Meeting) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO meetings (
		id, code, host_id, title, description, status,
		start_time, duration_min, waiting_room, mute_on_entry
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	RETURNING created_at, updated_at`

	err = tx.QueryRow(ctx, q,
		m.ID, m.Code, m.HostID, m.Title, m.Description, string(m.Status),
		m.StartTime, m.Duration, m.Settings.WaitingRoom, m.Settings.MuteOnEntry,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "meetings_code_key" {
				return domain.ErrCodeTaken
			}
			return domain.ErrDuplicateMeeting
		}
		return err
	}

	for _, a := range m.Attendees {
		const aq = `INSERT INTO meeting_attendees (meeting_id, email, status)
			VALUES ($1, lower($2), $3)
			ON CONFLICT (meeting_id, email) DO NOTHING`
		if _, err := tx.Exec(ctx, aq, m.ID, a.Email, string(a.Status)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *meetingRepository) GetByCode(ctx context.Context, code string) (*domain.Meeting, error) {
	const q = `SELECT ` + meetingCols + ` FROM meetings WHERE code=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	m, err := scanMeeting(r.pool.QueryRow(ctx, q, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *meetingRepository) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	const q = `SELECT ` + meetingCols + ` FROM meetings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	m, err := scanMeeting(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *meetingRepository) ListByHost(ctx context.Context, hostID string, limit, offset int) ([]domain.Meeting, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + meetingCols + ` FROM meetings
		WHERE host_id=$1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, hostID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []domain.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, *m)
	}
	return meetings, rows.Err()
}

func (r *meetingRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM meetings WHERE code=$1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, code).Scan(&exists)
	return exists, err
}

// Activate moves a scheduled meeting to active. The status guard in the
// WHERE clause means exactly one caller observes the transition, no matter
// how many race.
func (r *meetingRepository) Activate(ctx context.Context, code string) (bool, error) {
	const q = `UPDATE meetings SET status='active', updated_at=now()
		WHERE code=$1 AND status='scheduled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, code)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *meetingRepository) End(ctx context.Context, code string) (bool, error) {
	const q = `UPDATE meetings SET status='ended', end_time=now(), updated_at=now()
		WHERE code=$1 AND status != 'ended'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, code)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// AddParticipant upserts a participant row. Re-entry after a drop clears
// left_at instead of creating a duplicate. The EXISTS guard rejects joins
// on ended meetings at the store, not just in application code.
func (r *meetingRepository) AddParticipant(ctx context.Context, meetingID, userID, name string) error {
	const q = `INSERT INTO meeting_participants (meeting_id, user_id, name)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM meetings WHERE id=$1 AND status != 'ended')
		ON CONFLICT (meeting_id, user_id)
		DO UPDATE SET left_at = NULL, name = EXCLUDED.name`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, meetingID, userID, name)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEnded
	}
	return nil
}

func (r *meetingRepository) IsParticipant(ctx context.Context, meetingID, userID string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM meeting_participants WHERE meeting_id=$1 AND user_id=$2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, meetingID, userID).Scan(&exists)
	return exists, err
}

func (r *meetingRepository) MarkLeft(ctx context.Context, meetingID, userID string) error {
	const q = `UPDATE meeting_participants SET left_at=now()
		WHERE meeting_id=$1 AND user_id=$2 AND left_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, meetingID, userID)
	return err
}

func (r *meetingRepository) ListParticipants(ctx context.Context, meetingID string) ([]domain.Participant, error) {
	const q = `SELECT user_id, name, joined_at, left_at
		FROM meeting_participants WHERE meeting_id=$1 ORDER BY joined_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.Name, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// AddPending is a guarded insert: it refuses ended meetings and never
// creates a waiting-room entry for a user who already holds a participant
// row, keeping the two sets disjoint. A repeated call is a no-op.
func (r *meetingRepository) AddPending(ctx context.Context, meetingID, userID, name string) error {
	const q = `INSERT INTO pending_participants (meeting_id, user_id, name)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM meetings WHERE id=$1 AND status != 'ended')
		  AND NOT EXISTS (
			SELECT 1 FROM meeting_participants
			WHERE meeting_id=$1 AND user_id=$2 AND left_at IS NULL)
		ON CONFLICT (meeting_id, user_id) DO NOTHING`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, meetingID, userID, name)
	return err
}

func (r *meetingRepository) IsPending(ctx context.Context, meetingID, userID string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM pending_participants WHERE meeting_id=$1 AND user_id=$2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, meetingID, userID).Scan(&exists)
	return exists, err
}

func (r *meetingRepository) RemovePending(ctx context.Context, meetingID, userID string) (string, error) {
	const q = `DELETE FROM pending_participants
		WHERE meeting_id=$1 AND user_id=$2 RETURNING name`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var name string
	err := r.pool.QueryRow(ctx, q, meetingID, userID).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", domain.ErrNotPending
	}
	return name, err
}

// PromotePending atomically moves a waiting-room entry into the
// participant set. The delete and the insert share one transaction so no
// observer ever sees the user in both sets or in neither.
func (r *meetingRepository) PromotePending(ctx context.Context, meetingID, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM pending_participants
		WHERE meeting_id=$1 AND user_id=$2 RETURNING name`
	var name string
	err = tx.QueryRow(ctx, del, meetingID, userID).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", domain.ErrNotPending
	}
	if err != nil {
		return "", err
	}

	const ins = `INSERT INTO meeting_participants (meeting_id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (meeting_id, user_id)
		DO UPDATE SET left_at = NULL`
	if _, err := tx.Exec(ctx, ins, meetingID, userID, name); err != nil {
		return "", err
	}

	return name, tx.Commit(ctx)
}

func (r *meetingRepository) ListPending(ctx context.Context, meetingID string) ([]domain.PendingParticipant, error) {
	const q = `SELECT user_id, name, requested_at
		FROM pending_participants WHERE meeting_id=$1 ORDER BY requested_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []domain.PendingParticipant
	for rows.Next() {
		var p domain.PendingParticipant
		if err := rows.Scan(&p.UserID, &p.Name, &p.RequestedAt); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (r *meetingRepository) UpdateSettings(ctx context.Context, meetingID string, settings domain.Settings) error {
	const q = `UPDATE meetings SET waiting_room=$2, mute_on_entry=$3, updated_at=now()
		WHERE id=$1 AND status != 'ended'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, meetingID, settings.WaitingRoom, settings.MuteOnEntry)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEnded
	}
	return nil
}

func (r *meetingRepository) ListAttendees(ctx context.Context, meetingID string) ([]domain.Attendee, error) {
	const q = `SELECT email, status FROM meeting_attendees
		WHERE meeting_id=$1 ORDER BY email`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attendees []domain.Attendee
	for rows.Next() {
		var a domain.Attendee
		var status string
		if err := rows.Scan(&a.Email, &status); err != nil {
			return nil, err
		}
		a.Status = domain.AttendeeStatus(status)
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

func (r *meetingRepository) SetAttendeeStatus(ctx context.Context, meetingID, email string, status domain.AttendeeStatus) (bool, error) {
	const q = `UPDATE meeting_attendees SET status=$3
		WHERE meeting_id=$1 AND email=lower($2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, meetingID, email, string(status))
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *meetingRepository) DueForReminder(ctx context.Context, from, to time.Time) ([]domain.Meeting, error) {
	const q = `SELECT ` + meetingCols + ` FROM meetings
		WHERE status='scheduled' AND reminder_sent=false
		  AND start_time >= $1 AND start_time < $2
		ORDER BY start_time`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []domain.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, *m)
	}
	return meetings, rows.Err()
}

// MarkReminderSent flips the reminder flag. The flag guard means the flip
// happens once even when several sweep ticks observe the same meeting.
func (r *meetingRepository) MarkReminderSent(ctx context.Context, meetingID string) (bool, error) {
	const q = `UPDATE meetings SET reminder_sent=true, updated_at=now()
		WHERE id=$1 AND reminder_sent=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, meetingID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
