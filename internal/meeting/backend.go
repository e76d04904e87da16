// Package meeting holds the client-side controllers of a meeting: the record
// store, lifecycle, note capture, dictation, summaries and note conversion.
// Every mutating call is confirm-then-apply: validate, call the Backend, and
// touch local state only after the Backend succeeded.
package meeting

import (
	"context"

	"meetline/internal/domain"
)

// Backend is the remote API the controllers talk to. sdk/go implements it
// over HTTP.
type Backend interface {
	ListMeetings(ctx context.Context) ([]domain.MeetingBrief, error)
	GetMeeting(ctx context.Context, id string) (domain.Meeting, error)
	UpdateMeeting(ctx context.Context, id string, patch domain.MeetingPatch) (domain.Meeting, error)
	AddNote(ctx context.Context, meetingID, text string, source domain.NoteSource) (domain.Note, error)
	EditNote(ctx context.Context, meetingID string, noteID int64, text string) (domain.Note, error)
	DeleteNote(ctx context.Context, meetingID string, noteID int64) error
	ConvertNote(ctx context.Context, meetingID string, noteID int64) (domain.Task, error)
	Analyze(ctx context.Context, meetingID string, notes []domain.NoteInput) (domain.SummaryResult, error)
}
