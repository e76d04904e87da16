package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"meetline/internal/db"
	"meetline/internal/domain"
)

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	var noteID any
	if t.NoteID != nil {
		noteID = *t.NoteID
	}
	_, err := r.DB.SQ.Insert("tasks").
		Columns("id", "title", "status", "meeting_id", "note_id", "created_at").
		Values(t.ID, t.Title, t.Status, t.MeetingID, noteID, db.FormatTime(t.CreatedAt)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// LinkTask appends taskID to the meeting's related tasks unless already present.
func (r Repo) LinkTask(ctx context.Context, tx *sql.Tx, meetingID, taskID string) error {
	var exists, position int
	err := r.DB.SQ.Select("COUNT(*)").From("meeting_tasks").
		Where(sq.Eq{"meeting_id": meetingID, "task_id": taskID}).
		RunWith(tx).QueryRowContext(ctx).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check related task: %w", err)
	}
	if exists > 0 {
		return nil
	}
	err = r.DB.SQ.Select("COUNT(*)").From("meeting_tasks").
		Where(sq.Eq{"meeting_id": meetingID}).
		RunWith(tx).QueryRowContext(ctx).Scan(&position)
	if err != nil {
		return fmt.Errorf("count related tasks: %w", err)
	}
	_, err = r.DB.SQ.Insert("meeting_tasks").
		Columns("meeting_id", "task_id", "position").
		Values(meetingID, taskID, position).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("link related task: %w", err)
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var (
		t         domain.Task
		noteID    sql.NullInt64
		createdAt string
	)
	err := r.DB.SQ.Select("id", "title", "status", "meeting_id", "note_id", "created_at").
		From("tasks").Where(sq.Eq{"id": id}).
		RunWith(r.DB.DB).QueryRowContext(ctx).
		Scan(&t.ID, &t.Title, &t.Status, &t.MeetingID, &noteID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, fmt.Errorf("get task: %w", err)
	}
	if noteID.Valid {
		v := noteID.Int64
		t.NoteID = &v
	}
	if t.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return t, err
	}
	return t, nil
}
