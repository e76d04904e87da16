package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"meetline/internal/domain"
)

// Summaries round-trips notes through the analysis service and keeps the
// meeting summary with its saved/dirty state.
type Summaries struct {
	Backend Backend
	Store   *Store
	Log     zerolog.Logger
}

func NewSummaries(b Backend, s *Store) *Summaries {
	return &Summaries{Backend: b, Store: s, Log: zerolog.Nop()}
}

// Analyze sends the meeting's notes for analysis. Failures other than a
// missing meeting come back as *domain.AnalysisError.
func (s *Summaries) Analyze(ctx context.Context, meetingID string) (domain.SummaryResult, error) {
	m, ok := s.Store.Get(meetingID)
	if !ok {
		return domain.SummaryResult{}, notFound(meetingID)
	}
	if len(m.Notes) == 0 {
		return domain.SummaryResult{}, domain.ErrNoContent
	}
	inputs := make([]domain.NoteInput, 0, len(m.Notes))
	for _, n := range m.Notes {
		inputs = append(inputs, domain.NoteInput{Text: n.Text, Source: n.Source})
	}
	res, err := s.Backend.Analyze(ctx, meetingID, inputs)
	if err != nil {
		s.Log.Warn().Err(err).Str("meeting_id", meetingID).Msg("analysis failed")
		var aerr *domain.AnalysisError
		switch {
		case errors.As(err, &aerr):
			return domain.SummaryResult{}, aerr
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoContent):
			return domain.SummaryResult{}, err
		}
		return domain.SummaryResult{}, &domain.AnalysisError{Cause: err}
	}
	return res, nil
}

// Apply writes text into the local summary and marks it unsaved.
func (s *Summaries) Apply(meetingID, text string) error {
	return s.Store.update(meetingID, func(r *record) error {
		r.meeting.Summary = text
		r.summaryDirty = r.meeting.Summary != r.savedSummary
		return nil
	})
}

// Save persists the local summary.
func (s *Summaries) Save(ctx context.Context, meetingID string) (domain.Meeting, error) {
	m, ok := s.Store.Get(meetingID)
	if !ok {
		return domain.Meeting{}, notFound(meetingID)
	}
	summary := m.Summary
	updated, err := s.Backend.UpdateMeeting(ctx, meetingID, domain.MeetingPatch{Summary: &summary})
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("save summary: %w", err)
	}
	err = s.Store.update(meetingID, func(r *record) error {
		r.savedSummary = updated.Summary
		if r.meeting.Summary == summary {
			r.meeting.Summary = updated.Summary
			r.summaryDirty = false
		}
		return nil
	})
	if err != nil {
		return domain.Meeting{}, err
	}
	got, _ := s.Store.Get(meetingID)
	return got, nil
}

// Discard drops unsaved summary edits.
func (s *Summaries) Discard(meetingID string) error {
	return s.Store.update(meetingID, func(r *record) error {
		r.meeting.Summary = r.savedSummary
		r.summaryDirty = false
		return nil
	})
}

func (s *Summaries) Dirty(meetingID string) bool {
	return s.Store.SummaryDirty(meetingID)
}
