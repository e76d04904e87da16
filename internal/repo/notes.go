package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"meetline/internal/db"
	"meetline/internal/domain"
)

var noteColumns = []string{"id", "meeting_id", "text", "source", "task_id", "created_at", "updated_at"}

// InsertNote stores n and returns the assigned id.
func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) (int64, error) {
	var id int64
	err := r.DB.SQ.Insert("notes").
		Columns("meeting_id", "text", "source", "task_id", "created_at", "updated_at").
		Values(n.MeetingID, n.Text, string(n.Source), nullableStringPtr(n.TaskID),
			db.FormatTime(n.CreatedAt), db.FormatTime(n.UpdatedAt)).
		Suffix("RETURNING id").
		RunWith(tx).QueryRowContext(ctx).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return id, nil
}

func (r Repo) GetNoteTx(ctx context.Context, tx *sql.Tx, meetingID string, noteID int64) (domain.Note, error) {
	rows, err := r.DB.SQ.Select(noteColumns...).From("notes").
		Where(sq.Eq{"id": noteID, "meeting_id": meetingID}).
		RunWith(tx).QueryContext(ctx)
	if err != nil {
		return domain.Note{}, fmt.Errorf("get note: %w", err)
	}
	defer rows.Close()
	notes, err := scanNotes(rows)
	if err != nil {
		return domain.Note{}, err
	}
	if len(notes) == 0 {
		return domain.Note{}, ErrNotFound
	}
	return notes[0], nil
}

// UpdateNoteText replaces text and updated_at only.
func (r Repo) UpdateNoteText(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	res, err := r.DB.SQ.Update("notes").
		Set("text", n.Text).
		Set("updated_at", db.FormatTime(n.UpdatedAt)).
		Where(sq.Eq{"id": n.ID, "meeting_id": n.MeetingID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetNoteTask links a task to a note that has none. A note that is already
// linked yields domain.ErrAlreadyConverted.
func (r Repo) SetNoteTask(ctx context.Context, tx *sql.Tx, meetingID string, noteID int64, taskID string) error {
	res, err := r.DB.SQ.Update("notes").
		Set("task_id", taskID).
		Where(sq.Eq{"id": noteID, "meeting_id": meetingID, "task_id": nil}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("link note task: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrAlreadyConverted
	}
	return nil
}

func (r Repo) DeleteNote(ctx context.Context, tx *sql.Tx, meetingID string, noteID int64) error {
	res, err := r.DB.SQ.Delete("notes").
		Where(sq.Eq{"id": noteID, "meeting_id": meetingID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listNotes(ctx context.Context, q sq.BaseRunner, meetingID string) ([]domain.Note, error) {
	rows, err := r.DB.SQ.Select(noteColumns...).From("notes").
		Where(sq.Eq{"meeting_id": meetingID}).
		OrderBy("created_at", "id").
		RunWith(q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]domain.Note, error) {
	res := []domain.Note{}
	for rows.Next() {
		var (
			n                    domain.Note
			source               string
			taskID               sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&n.ID, &n.MeetingID, &n.Text, &source, &taskID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		n.Source = domain.NoteSource(source)
		if taskID.Valid {
			n.TaskID = &taskID.String
		}
		var err error
		if n.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if n.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
