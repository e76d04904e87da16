package meeting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"meetline/internal/domain"
)

// Notes captures, edits and deletes notes of loaded meetings.
type Notes struct {
	Backend Backend
	Store   *Store
	Log     zerolog.Logger
	// OnAdded runs after a note has been stored locally.
	OnAdded func(domain.Note)
}

func NewNotes(b Backend, s *Store) *Notes {
	return &Notes{Backend: b, Store: s, Log: zerolog.Nop()}
}

// Add validates text and source, creates the note remotely and appends the
// backend's note to the meeting.
func (n *Notes) Add(ctx context.Context, meetingID, text string, source domain.NoteSource) (domain.Note, error) {
	clean, err := domain.ValidateNoteText(text)
	if err != nil {
		return domain.Note{}, err
	}
	if !source.Valid() {
		return domain.Note{}, fmt.Errorf("%w: %q", domain.ErrInvalidSource, source)
	}
	if !n.Store.Has(meetingID) {
		return domain.Note{}, notFound(meetingID)
	}
	note, err := n.Backend.AddNote(ctx, meetingID, clean, source)
	if err != nil {
		return domain.Note{}, fmt.Errorf("add note: %w", err)
	}
	err = n.Store.update(meetingID, func(r *record) error {
		if r.meeting.NoteIndex(note.ID) < 0 {
			r.meeting.Notes = append(r.meeting.Notes, note.Clone())
			sortNotes(r.meeting.Notes)
		}
		return nil
	})
	if err != nil {
		return domain.Note{}, err
	}
	n.Log.Debug().Str("meeting_id", meetingID).Int64("note_id", note.ID).Str("source", string(source)).Msg("note.added")
	if n.OnAdded != nil {
		n.OnAdded(note.Clone())
	}
	return note, nil
}

// Edit replaces the text of a note. Source and created_at never change.
func (n *Notes) Edit(ctx context.Context, meetingID string, noteID int64, text string) (domain.Note, error) {
	clean, err := domain.ValidateNoteText(text)
	if err != nil {
		return domain.Note{}, err
	}
	if _, err := n.find(meetingID, noteID); err != nil {
		return domain.Note{}, err
	}
	updated, err := n.Backend.EditNote(ctx, meetingID, noteID, clean)
	if err != nil {
		return domain.Note{}, fmt.Errorf("edit note: %w", err)
	}
	var out domain.Note
	err = n.Store.update(meetingID, func(r *record) error {
		idx := r.meeting.NoteIndex(noteID)
		if idx < 0 {
			return fmt.Errorf("note %d: %w", noteID, domain.ErrNotFound)
		}
		r.meeting.Notes[idx].Text = updated.Text
		if !updated.UpdatedAt.IsZero() {
			r.meeting.Notes[idx].UpdatedAt = updated.UpdatedAt
		}
		out = r.meeting.Notes[idx].Clone()
		return nil
	})
	return out, err
}

// Delete removes the note. A task created from it is left alone.
func (n *Notes) Delete(ctx context.Context, meetingID string, noteID int64) error {
	if _, err := n.find(meetingID, noteID); err != nil {
		return err
	}
	if err := n.Backend.DeleteNote(ctx, meetingID, noteID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return n.Store.update(meetingID, func(r *record) error {
		if idx := r.meeting.NoteIndex(noteID); idx >= 0 {
			r.meeting.Notes = append(r.meeting.Notes[:idx], r.meeting.Notes[idx+1:]...)
		}
		return nil
	})
}

// List returns the meeting's notes oldest first.
func (n *Notes) List(meetingID string) ([]domain.Note, error) {
	m, ok := n.Store.Get(meetingID)
	if !ok {
		return nil, notFound(meetingID)
	}
	return m.Notes, nil
}

func (n *Notes) find(meetingID string, noteID int64) (domain.Note, error) {
	m, ok := n.Store.Get(meetingID)
	if !ok {
		return domain.Note{}, notFound(meetingID)
	}
	idx := m.NoteIndex(noteID)
	if idx < 0 {
		return domain.Note{}, fmt.Errorf("note %d: %w", noteID, domain.ErrNotFound)
	}
	return m.Notes[idx], nil
}
