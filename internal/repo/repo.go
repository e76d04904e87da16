package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"meetline/internal/db"
	"meetline/internal/domain"
)

type Repo struct {
	DB *db.DB
}

// ErrNotFound is domain.ErrNotFound so callers can match either.
var ErrNotFound = domain.ErrNotFound

var meetingColumns = []string{
	"id", "title", "status", "scheduled_date", "scheduled_time", "duration_minutes", "type_id", "project_id",
	"agenda", "summary", "started_at", "ended_at", "created_at", "updated_at",
}

func (r Repo) InsertMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting) error {
	_, err := r.DB.SQ.Insert("meetings").Columns(meetingColumns...).
		Values(m.ID, m.Title, string(m.Status), m.Date, m.Time, m.DurationMinutes,
			nullableStringPtr(m.TypeID), nullableStringPtr(m.ProjectID), m.Agenda, m.Summary,
			nullableTime(m.StartedAt), nullableTime(m.EndedAt),
			db.FormatTime(m.CreatedAt), db.FormatTime(m.UpdatedAt)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	for i, pid := range m.ParticipantIDs {
		if _, err := r.DB.SQ.Insert("meeting_participants").
			Columns("meeting_id", "participant_id", "position").
			Values(m.ID, pid, i).
			RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert participant %s: %w", pid, err)
		}
	}
	return nil
}

// UpdateMeeting writes the mutable meeting columns. from is the status the
// caller read; a status change only applies while the row still has it, so a
// concurrent transition is reported as a TransitionError.
func (r Repo) UpdateMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting, from domain.MeetingStatus) error {
	where := sq.Eq{"id": m.ID}
	if m.Status != from {
		where["status"] = string(from)
	}
	res, err := r.DB.SQ.Update("meetings").
		Set("title", m.Title).
		Set("status", string(m.Status)).
		Set("agenda", m.Agenda).
		Set("summary", m.Summary).
		Set("started_at", nullableTime(m.StartedAt)).
		Set("ended_at", nullableTime(m.EndedAt)).
		Set("updated_at", db.FormatTime(m.UpdatedAt)).
		Where(where).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if m.Status != from {
			return &domain.TransitionError{From: from, To: m.Status}
		}
		return ErrNotFound
	}
	return nil
}

// TouchMeeting moves updated_at without changing anything else.
func (r Repo) TouchMeeting(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	_, err := r.DB.SQ.Update("meetings").
		Set("updated_at", db.FormatTime(at)).
		Where(sq.Eq{"id": id}).
		RunWith(tx).ExecContext(ctx)
	return err
}

func (r Repo) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	return r.getMeeting(ctx, r.DB.DB, id)
}

func (r Repo) GetMeetingTx(ctx context.Context, tx *sql.Tx, id string) (domain.Meeting, error) {
	return r.getMeeting(ctx, tx, id)
}

// getMeeting loads the full aggregate: row, participants, notes, tasks, history.
func (r Repo) getMeeting(ctx context.Context, q sq.BaseRunner, id string) (domain.Meeting, error) {
	m, err := r.meetingRow(ctx, q, id)
	if err != nil {
		return m, err
	}
	if m.ParticipantIDs, err = r.listStrings(ctx, q, r.DB.SQ.Select("participant_id").
		From("meeting_participants").Where(sq.Eq{"meeting_id": id}).OrderBy("position")); err != nil {
		return m, fmt.Errorf("list participants: %w", err)
	}
	if m.Notes, err = r.listNotes(ctx, q, id); err != nil {
		return m, err
	}
	if m.RelatedTaskIDs, err = r.listStrings(ctx, q, r.DB.SQ.Select("task_id").
		From("meeting_tasks").Where(sq.Eq{"meeting_id": id}).OrderBy("position")); err != nil {
		return m, fmt.Errorf("list related tasks: %w", err)
	}
	if m.History, err = r.listEvents(ctx, q, id, 0); err != nil {
		return m, err
	}
	return m, nil
}

func (r Repo) meetingRow(ctx context.Context, q sq.BaseRunner, id string) (domain.Meeting, error) {
	var (
		m                            domain.Meeting
		status, createdAt, updatedAt string
		typeID, projectID            sql.NullString
		startedAt, endedAt           sql.NullString
	)
	err := r.DB.SQ.Select(meetingColumns...).From("meetings").Where(sq.Eq{"id": id}).
		RunWith(q).QueryRowContext(ctx).
		Scan(&m.ID, &m.Title, &status, &m.Date, &m.Time, &m.DurationMinutes, &typeID, &projectID,
			&m.Agenda, &m.Summary, &startedAt, &endedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("get meeting: %w", err)
	}
	m.Status = domain.MeetingStatus(status)
	if typeID.Valid {
		m.TypeID = &typeID.String
	}
	if projectID.Valid {
		m.ProjectID = &projectID.String
	}
	if m.StartedAt, err = parseNullTime(startedAt); err != nil {
		return m, err
	}
	if m.EndedAt, err = parseNullTime(endedAt); err != nil {
		return m, err
	}
	if m.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return m, err
	}
	m.ParticipantIDs = []string{}
	m.Notes = []domain.Note{}
	m.RelatedTaskIDs = []string{}
	return m, nil
}

type MeetingFilters struct {
	Status string
	Limit  int
}

// ListMeetings returns the roster ordered by schedule, then creation.
func (r Repo) ListMeetings(ctx context.Context, f MeetingFilters) ([]domain.MeetingBrief, error) {
	query := r.DB.SQ.Select("id", "title", "status", "scheduled_date", "scheduled_time").From("meetings").
		OrderBy("scheduled_date DESC", "scheduled_time DESC", "created_at DESC", "id")
	if f.Status != "" {
		query = query.Where(sq.Eq{"status": f.Status})
	}
	if f.Limit > 0 {
		query = query.Limit(uint64(f.Limit))
	}
	rows, err := query.RunWith(r.DB.DB).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()
	res := []domain.MeetingBrief{}
	for rows.Next() {
		var b domain.MeetingBrief
		var status string
		if err := rows.Scan(&b.ID, &b.Title, &status, &b.Date, &b.Time); err != nil {
			return nil, err
		}
		b.Status = domain.MeetingStatus(status)
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) listStrings(ctx context.Context, q sq.BaseRunner, query sq.SelectBuilder) ([]string, error) {
	rows, err := query.RunWith(q).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return db.FormatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := db.ParseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
