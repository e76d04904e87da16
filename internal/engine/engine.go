package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetline/internal/analysis"
	"meetline/internal/config"
	"meetline/internal/db"
	"meetline/internal/domain"
	"meetline/internal/events"
	"meetline/internal/metrics"
	"meetline/internal/repo"
)

// TaskStatusOpen is the status of every task created from a note.
const TaskStatusOpen = "open"

// ValidationError marks caller input the engine refuses before touching the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

type Engine struct {
	DB       *db.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Analyzer analysis.Analyzer
	Metrics  *metrics.Backend
	Log      zerolog.Logger
	Now      func() time.Time
}

func New(conn *db.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       conn,
		Repo:     repo.Repo{DB: conn},
		Events:   events.Writer{DB: conn},
		Config:   cfg,
		Analyzer: analysis.New(cfg.Analysis.URL, cfg.Analysis.Timeout),
		Log:      zerolog.Nop(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// MeetingCreateOptions are parameters for scheduling a meeting.
type MeetingCreateOptions struct {
	Title           string
	Date            string
	Time            string
	DurationMinutes int
	TypeID          string
	ProjectID       string
	ParticipantIDs  []string
	Agenda          string
}

func (e Engine) CreateMeeting(ctx context.Context, opts MeetingCreateOptions) (domain.Meeting, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Meeting{}, &ValidationError{Field: "title", Message: "title is required"}
	}
	if opts.Date != "" && !dateRe.MatchString(opts.Date) {
		return domain.Meeting{}, &ValidationError{Field: "date", Message: "date must be YYYY-MM-DD"}
	}
	if opts.Time != "" && !timeRe.MatchString(opts.Time) {
		return domain.Meeting{}, &ValidationError{Field: "time", Message: "time must be HH:MM"}
	}
	if opts.DurationMinutes < 0 {
		return domain.Meeting{}, &ValidationError{Field: "duration_minutes", Message: "duration must not be negative"}
	}
	now := e.now()
	m := domain.Meeting{
		ID:              uuid.NewString(),
		Status:          domain.StatusPlanned,
		Title:           title,
		Date:            opts.Date,
		Time:            opts.Time,
		DurationMinutes: opts.DurationMinutes,
		TypeID:          optionalString(opts.TypeID),
		ProjectID:       optionalString(opts.ProjectID),
		ParticipantIDs:  dedupe(opts.ParticipantIDs),
		Agenda:          opts.Agenda,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Meeting{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMeeting(ctx, tx, m); err != nil {
		return domain.Meeting{}, err
	}
	if err := e.events().Append(ctx, tx, events.MeetingCreated, m.ID, "meeting", m.ID, events.EventPayload{
		"title":  m.Title,
		"status": m.Status,
	}); err != nil {
		return domain.Meeting{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Meeting{}, err
	}
	e.Log.Info().Str("meeting_id", m.ID).Msg("meeting created")
	return e.Repo.GetMeeting(ctx, m.ID)
}

func (e Engine) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	return e.Repo.GetMeeting(ctx, id)
}

func (e Engine) ListMeetings(ctx context.Context, f repo.MeetingFilters) ([]domain.MeetingBrief, error) {
	if f.Status != "" && !domain.MeetingStatus(f.Status).Valid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)}
	}
	return e.Repo.ListMeetings(ctx, f)
}

// MeetingUpdateOptions carries a partial update. Nil fields are left alone.
type MeetingUpdateOptions struct {
	ID      string
	Status  *domain.MeetingStatus
	Title   *string
	Summary *string
	Agenda  *string
}

// UpdateMeeting applies a partial update. Status changes go through the state
// machine and stamp started_at/ended_at.
func (e Engine) UpdateMeeting(ctx context.Context, opts MeetingUpdateOptions) (domain.Meeting, error) {
	if opts.Status != nil && !opts.Status.Valid() {
		return domain.Meeting{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *opts.Status)}
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Meeting{}, &ValidationError{Field: "title", Message: "title must not be empty"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Meeting{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMeetingTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Meeting{}, err
	}
	original := m
	now := e.now()
	var changed []string

	if opts.Status != nil {
		to := *opts.Status
		if err := domain.CheckTransition(m.Status, to); err != nil {
			return domain.Meeting{}, err
		}
		switch to {
		case domain.StatusInProgress:
			m.StartedAt = &now
		case domain.StatusCompleted:
			m.EndedAt = &now
		}
		m.Status = to
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) != m.Title {
		m.Title = strings.TrimSpace(*opts.Title)
		changed = append(changed, "title")
	}
	if opts.Summary != nil && *opts.Summary != m.Summary {
		m.Summary = *opts.Summary
		changed = append(changed, "summary")
	}
	if opts.Agenda != nil && *opts.Agenda != m.Agenda {
		m.Agenda = *opts.Agenda
		changed = append(changed, "agenda")
	}
	if m.Status == original.Status && len(changed) == 0 {
		return m, nil
	}
	m.UpdatedAt = now
	if err := e.Repo.UpdateMeeting(ctx, tx, m, original.Status); err != nil {
		return domain.Meeting{}, err
	}
	if m.Status != original.Status {
		if err := e.events().Append(ctx, tx, events.MeetingStatus, m.ID, "meeting", m.ID, events.EventPayload{
			"from_status": original.Status,
			"to_status":   m.Status,
		}); err != nil {
			return domain.Meeting{}, err
		}
	}
	if len(changed) > 0 {
		if err := e.events().Append(ctx, tx, events.MeetingUpdated, m.ID, "meeting", m.ID, events.EventPayload{
			"fields": changed,
		}); err != nil {
			return domain.Meeting{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Meeting{}, err
	}
	if m.Status != original.Status {
		if e.Metrics != nil {
			e.Metrics.TransitionsTotal.WithLabelValues(string(original.Status), string(m.Status)).Inc()
		}
		e.Log.Info().Str("meeting_id", m.ID).
			Str("from", string(original.Status)).Str("to", string(m.Status)).
			Msg("meeting status changed")
	}
	return e.Repo.GetMeeting(ctx, m.ID)
}

func (e Engine) AddNote(ctx context.Context, meetingID, text string, source domain.NoteSource) (domain.Note, error) {
	text, err := domain.ValidateNoteText(text)
	if err != nil {
		return domain.Note{}, err
	}
	if !source.Valid() {
		return domain.Note{}, domain.ErrInvalidSource
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetMeetingTx(ctx, tx, meetingID); err != nil {
		return domain.Note{}, err
	}
	now := e.now()
	n := domain.Note{
		MeetingID: meetingID,
		Text:      text,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if n.ID, err = e.Repo.InsertNote(ctx, tx, n); err != nil {
		return domain.Note{}, err
	}
	if err := e.Repo.TouchMeeting(ctx, tx, meetingID, now); err != nil {
		return domain.Note{}, err
	}
	if err := e.events().Append(ctx, tx, events.NoteAdded, meetingID, "note", noteKey(n.ID), events.EventPayload{
		"source": n.Source,
	}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	e.countNote("add", source)
	return n, nil
}

// EditNote replaces a note's text. created_at and source never change.
func (e Engine) EditNote(ctx context.Context, meetingID string, noteID int64, text string) (domain.Note, error) {
	text, err := domain.ValidateNoteText(text)
	if err != nil {
		return domain.Note{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.GetNoteTx(ctx, tx, meetingID, noteID)
	if err != nil {
		return domain.Note{}, err
	}
	if n.Text == text {
		return n, nil
	}
	n.Text = text
	n.UpdatedAt = e.now()
	if err := e.Repo.UpdateNoteText(ctx, tx, n); err != nil {
		return domain.Note{}, err
	}
	if err := e.events().Append(ctx, tx, events.NoteEdited, meetingID, "note", noteKey(n.ID), nil); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	e.countNote("edit", n.Source)
	return n, nil
}

// DeleteNote removes the note. A task created from it stays in place, and so
// does the meeting's link to that task.
func (e Engine) DeleteNote(ctx context.Context, meetingID string, noteID int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n, err := e.Repo.GetNoteTx(ctx, tx, meetingID, noteID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteNote(ctx, tx, meetingID, noteID); err != nil {
		return err
	}
	payload := events.EventPayload{"source": n.Source}
	if n.TaskID != nil {
		payload["task_id"] = *n.TaskID
	}
	if err := e.events().Append(ctx, tx, events.NoteDeleted, meetingID, "note", noteKey(noteID), payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.countNote("delete", n.Source)
	return nil
}

// ConvertNote creates a task titled with the note text and links it to both
// the note and the meeting. A note converts at most once.
func (e Engine) ConvertNote(ctx context.Context, meetingID string, noteID int64) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.GetNoteTx(ctx, tx, meetingID, noteID)
	if err != nil {
		return domain.Task{}, err
	}
	if n.Converted() {
		return domain.Task{}, domain.ErrAlreadyConverted
	}
	id := n.ID
	t := domain.Task{
		ID:        uuid.NewString(),
		Title:     n.Text,
		Status:    TaskStatusOpen,
		MeetingID: meetingID,
		NoteID:    &id,
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.SetNoteTask(ctx, tx, meetingID, noteID, t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.LinkTask(ctx, tx, meetingID, t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := e.events().Append(ctx, tx, events.NoteConverted, meetingID, "note", noteKey(noteID), events.EventPayload{
		"task_id": t.ID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if e.Metrics != nil {
		e.Metrics.ConversionsTotal.Inc()
	}
	e.Log.Info().Str("meeting_id", meetingID).Int64("note_id", noteID).Str("task_id", t.ID).Msg("note converted")
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

// Analyze forwards notes to the analysis service. When notes is nil the
// meeting's stored notes are sent.
func (e Engine) Analyze(ctx context.Context, meetingID string, notes []domain.NoteInput) (domain.SummaryResult, error) {
	m, err := e.Repo.GetMeeting(ctx, meetingID)
	if err != nil {
		return domain.SummaryResult{}, err
	}
	if notes == nil {
		notes = make([]domain.NoteInput, 0, len(m.Notes))
		for _, n := range m.Notes {
			notes = append(notes, domain.NoteInput{Text: n.Text, Source: n.Source})
		}
	}
	if len(notes) == 0 {
		return domain.SummaryResult{}, domain.ErrNoContent
	}
	analyzer := e.Analyzer
	if analyzer == nil {
		analyzer = analysis.New("", 0)
	}
	start := time.Now()
	res, err := analyzer.Analyze(ctx, analysis.Request{MeetingID: m.ID, Title: m.Title, Notes: notes})
	if e.Metrics != nil {
		e.Metrics.AnalysisSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.countAnalysis("error")
		var aerr *domain.AnalysisError
		if !errors.As(err, &aerr) {
			err = &domain.AnalysisError{Cause: err}
		}
		e.Log.Warn().Err(err).Str("meeting_id", meetingID).Msg("analysis failed")
		return domain.SummaryResult{}, err
	}
	e.countAnalysis("ok")

	// The result stands even when the history row cannot be written.
	if err := e.recordAnalysis(ctx, meetingID, len(notes), res); err != nil {
		e.Log.Warn().Err(err).Str("meeting_id", meetingID).Msg("analysis event not recorded")
	}
	return res, nil
}

func (e Engine) recordAnalysis(ctx context.Context, meetingID string, notes int, res domain.SummaryResult) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.events().Append(ctx, tx, events.MeetingAnalyzed, meetingID, "meeting", meetingID, events.EventPayload{
		"notes":     notes,
		"tasks":     len(res.Tasks),
		"decisions": len(res.Decisions),
		"questions": len(res.Questions),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) countNote(op string, source domain.NoteSource) {
	if e.Metrics != nil {
		e.Metrics.NotesTotal.WithLabelValues(op, string(source)).Inc()
	}
}

func (e Engine) countAnalysis(outcome string) {
	if e.Metrics != nil {
		e.Metrics.AnalysisTotal.WithLabelValues(outcome).Inc()
	}
}

func noteKey(id int64) string {
	return fmt.Sprintf("%d", id)
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
