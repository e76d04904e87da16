package meeting

import (
	"fmt"
	"slices"
	"sync"

	"meetline/internal/domain"
)

type record struct {
	meeting      domain.Meeting
	savedSummary string
	summaryDirty bool
}

// Store keeps loaded meetings and the roster. Reads return deep copies.
type Store struct {
	mu       sync.RWMutex
	meetings map[string]*record
	roster   []domain.MeetingBrief
}

func NewStore() *Store {
	return &Store{meetings: map[string]*record{}}
}

// Put loads a meeting as fetched from the backend, dropping any unsaved
// summary edit.
func (s *Store) Put(m domain.Meeting) {
	m = m.Clone()
	sortNotes(m.Notes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = &record{meeting: m, savedSummary: m.Summary}
	s.syncRoster(m)
}

// Reload refreshes a loaded meeting from a backend snapshot. Local notes the
// snapshot lacks are kept, as are unsaved summary edits. A meeting that is
// not loaded yet is Put.
func (s *Store) Reload(m domain.Meeting) {
	m = m.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.meetings[m.ID]
	if !ok {
		sortNotes(m.Notes)
		s.meetings[m.ID] = &record{meeting: m, savedSummary: m.Summary}
		s.syncRoster(m)
		return
	}
	seen := make(map[int64]bool, len(m.Notes))
	for _, n := range m.Notes {
		seen[n.ID] = true
	}
	for _, n := range r.meeting.Notes {
		if !seen[n.ID] {
			m.Notes = append(m.Notes, n.Clone())
		}
	}
	sortNotes(m.Notes)
	summary, dirty := r.meeting.Summary, r.summaryDirty
	r.meeting = m
	r.savedSummary = m.Summary
	r.summaryDirty = dirty && summary != m.Summary
	if r.summaryDirty {
		r.meeting.Summary = summary
	}
	s.syncRoster(m)
}

func (s *Store) Get(id string) (domain.Meeting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.meetings[id]
	if !ok {
		return domain.Meeting{}, false
	}
	return r.meeting.Clone(), true
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.meetings[id]
	return ok
}

// Forget drops a loaded meeting. The roster keeps its entry.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meetings, id)
}

func (s *Store) Roster() []domain.MeetingBrief {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MeetingBrief(nil), s.roster...)
}

func (s *Store) SetRoster(items []domain.MeetingBrief) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = append([]domain.MeetingBrief(nil), items...)
}

// SummaryDirty reports whether the summary has local edits not yet saved.
func (s *Store) SummaryDirty(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.meetings[id]
	return ok && r.summaryDirty
}

// merge applies a backend response to a loaded meeting. Notes are kept
// as they are locally; a dirty summary survives.
func (s *Store) merge(m domain.Meeting) error {
	return s.update(m.ID, func(r *record) error {
		notes := r.meeting.Notes
		summary := r.meeting.Summary
		r.meeting = m.Clone()
		r.meeting.Notes = notes
		r.savedSummary = m.Summary
		if r.summaryDirty {
			r.meeting.Summary = summary
		}
		return nil
	})
}

func (s *Store) update(id string, fn func(r *record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.meetings[id]
	if !ok {
		return notFound(id)
	}
	if err := fn(r); err != nil {
		return err
	}
	s.syncRoster(r.meeting)
	return nil
}

func (s *Store) syncRoster(m domain.Meeting) {
	for i := range s.roster {
		if s.roster[i].ID == m.ID {
			s.roster[i] = brief(m)
			return
		}
	}
}

func brief(m domain.Meeting) domain.MeetingBrief {
	return domain.MeetingBrief{ID: m.ID, Title: m.Title, Status: m.Status, Date: m.Date, Time: m.Time}
}

func sortNotes(notes []domain.Note) {
	slices.SortStableFunc(notes, func(a, b domain.Note) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func notFound(id string) error {
	return fmt.Errorf("meeting %s not loaded: %w", id, domain.ErrNotFound)
}
