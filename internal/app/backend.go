package app

import (
	"context"

	"meetline/internal/domain"
	"meetline/internal/engine"
	"meetline/internal/meeting"
	"meetline/internal/repo"
	meetlinesdk "meetline/sdk/go"
)

// Backend is what the CLI needs on top of meeting.Backend.
type Backend interface {
	meeting.Backend
	CreateMeeting(ctx context.Context, draft domain.MeetingDraft) (domain.Meeting, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
}

var (
	_ Backend = LocalBackend{}
	_ Backend = (*meetlinesdk.Client)(nil)
)

// LocalBackend serves the controllers straight from the workspace engine,
// without an HTTP hop.
type LocalBackend struct {
	Engine engine.Engine
}

func (b LocalBackend) ListMeetings(ctx context.Context) ([]domain.MeetingBrief, error) {
	return b.Engine.ListMeetings(ctx, repo.MeetingFilters{})
}

func (b LocalBackend) CreateMeeting(ctx context.Context, draft domain.MeetingDraft) (domain.Meeting, error) {
	return b.Engine.CreateMeeting(ctx, engine.MeetingCreateOptions{
		Title:           draft.Title,
		Date:            draft.Date,
		Time:            draft.Time,
		DurationMinutes: draft.DurationMinutes,
		TypeID:          deref(draft.TypeID),
		ProjectID:       deref(draft.ProjectID),
		ParticipantIDs:  draft.ParticipantIDs,
		Agenda:          draft.Agenda,
	})
}

func (b LocalBackend) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	return b.Engine.GetMeeting(ctx, id)
}

func (b LocalBackend) UpdateMeeting(ctx context.Context, id string, patch domain.MeetingPatch) (domain.Meeting, error) {
	return b.Engine.UpdateMeeting(ctx, engine.MeetingUpdateOptions{
		ID:      id,
		Status:  patch.Status,
		Title:   patch.Title,
		Summary: patch.Summary,
		Agenda:  patch.Agenda,
	})
}

func (b LocalBackend) AddNote(ctx context.Context, meetingID, text string, source domain.NoteSource) (domain.Note, error) {
	return b.Engine.AddNote(ctx, meetingID, text, source)
}

func (b LocalBackend) EditNote(ctx context.Context, meetingID string, noteID int64, text string) (domain.Note, error) {
	return b.Engine.EditNote(ctx, meetingID, noteID, text)
}

func (b LocalBackend) DeleteNote(ctx context.Context, meetingID string, noteID int64) error {
	return b.Engine.DeleteNote(ctx, meetingID, noteID)
}

func (b LocalBackend) ConvertNote(ctx context.Context, meetingID string, noteID int64) (domain.Task, error) {
	return b.Engine.ConvertNote(ctx, meetingID, noteID)
}

func (b LocalBackend) Analyze(ctx context.Context, meetingID string, notes []domain.NoteInput) (domain.SummaryResult, error) {
	return b.Engine.Analyze(ctx, meetingID, notes)
}

func (b LocalBackend) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return b.Engine.GetTask(ctx, id)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
