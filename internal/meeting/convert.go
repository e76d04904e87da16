package meeting

import (
	"context"
	"fmt"

	"meetline/internal/domain"
)

// Converter promotes notes, or analysis suggestions, into tasks.
type Converter struct {
	Backend Backend
	Store   *Store
	Notes   *Notes
}

func NewConverter(b Backend, s *Store, notes *Notes) *Converter {
	return &Converter{Backend: b, Store: s, Notes: notes}
}

// ConvertNote creates a task from the note and links it to the note and the
// meeting. A note converts at most once.
func (c *Converter) ConvertNote(ctx context.Context, meetingID string, noteID int64) (domain.Task, error) {
	note, err := c.Notes.find(meetingID, noteID)
	if err != nil {
		return domain.Task{}, err
	}
	if note.Converted() {
		return domain.Task{}, domain.ErrAlreadyConverted
	}
	task, err := c.Backend.ConvertNote(ctx, meetingID, noteID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("convert note: %w", err)
	}
	err = c.Store.update(meetingID, func(r *record) error {
		if idx := r.meeting.NoteIndex(noteID); idx >= 0 && !r.meeting.Notes[idx].Converted() {
			id := task.ID
			r.meeting.Notes[idx].TaskID = &id
		}
		if !r.meeting.HasTask(task.ID) {
			r.meeting.RelatedTaskIDs = append(r.meeting.RelatedTaskIDs, task.ID)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// ConvertSuggestion records text as an ai note and converts it. When the
// conversion fails the note stays, unconverted, and is returned with the error.
func (c *Converter) ConvertSuggestion(ctx context.Context, meetingID, text string) (domain.Note, domain.Task, error) {
	note, err := c.Notes.Add(ctx, meetingID, text, domain.SourceAI)
	if err != nil {
		return domain.Note{}, domain.Task{}, err
	}
	task, err := c.ConvertNote(ctx, meetingID, note.ID)
	if err != nil {
		return note, domain.Task{}, err
	}
	id := task.ID
	note.TaskID = &id
	return note, task, nil
}
