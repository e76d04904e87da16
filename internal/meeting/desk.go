package meeting

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"meetline/internal/domain"
	"meetline/internal/metrics"
)

// Config wires a Desk.
type Config struct {
	Recognizer Recognizer
	Locale     string
	Policy     RestartPolicy
	Metrics    *metrics.Dictation
	Log        zerolog.Logger
}

// Desk holds the currently open meeting and the controllers that act on it.
// Only the open meeting may dictate.
type Desk struct {
	Backend   Backend
	Store     *Store
	Lifecycle *Lifecycle
	Notes     *Notes
	Dictation *Dictation
	Summaries *Summaries
	Converter *Converter
	Log       zerolog.Logger

	mu      sync.Mutex
	current string
}

func NewDesk(b Backend, cfg Config) *Desk {
	store := NewStore()
	notes := NewNotes(b, store)
	notes.Log = cfg.Log
	lc := NewLifecycle(b, store)
	lc.Log = cfg.Log
	dict := NewDictation(cfg.Recognizer, notes)
	dict.Log = cfg.Log
	dict.Metrics = cfg.Metrics
	if cfg.Locale != "" {
		dict.Locale = cfg.Locale
	}
	if cfg.Policy.MaxRapidRestarts > 0 {
		dict.Policy = cfg.Policy
	}
	sums := NewSummaries(b, store)
	sums.Log = cfg.Log
	return &Desk{
		Backend:   b,
		Store:     store,
		Lifecycle: lc,
		Notes:     notes,
		Dictation: dict,
		Summaries: sums,
		Converter: NewConverter(b, store, notes),
		Log:       cfg.Log,
	}
}

// Open loads the meeting and makes it current. Dictation for a previously
// open meeting is stopped first and that meeting is dropped from the Store.
// Reopening the meeting being dictated keeps dictation and the voice notes
// committed while the snapshot was in flight.
func (d *Desk) Open(ctx context.Context, meetingID string) (domain.Meeting, error) {
	if d.Dictation.MeetingID() != meetingID {
		d.Dictation.StopListening()
	}
	m, err := d.Backend.GetMeeting(ctx, meetingID)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("open meeting: %w", err)
	}
	if d.Dictation.Active() && d.Dictation.MeetingID() == meetingID {
		d.Store.Reload(m)
	} else {
		d.Store.Put(m)
	}
	d.mu.Lock()
	prev := d.current
	d.current = meetingID
	d.mu.Unlock()
	if prev != "" && prev != meetingID {
		d.leave(prev)
	}
	d.Log.Debug().Str("meeting_id", meetingID).Msg("meeting opened")
	got, _ := d.Store.Get(meetingID)
	return got, nil
}

// Close stops dictation and clears the current meeting.
func (d *Desk) Close() {
	d.Dictation.StopListening()
	d.mu.Lock()
	prev := d.current
	d.current = ""
	d.mu.Unlock()
	if prev != "" {
		d.leave(prev)
	}
}

func (d *Desk) leave(meetingID string) {
	d.Lifecycle.stopClocks(meetingID)
	d.Store.Forget(meetingID)
}

// Current returns the open meeting.
func (d *Desk) Current() (domain.Meeting, error) {
	id := d.CurrentID()
	if id == "" {
		return domain.Meeting{}, domain.ErrNotOpen
	}
	m, ok := d.Store.Get(id)
	if !ok {
		return domain.Meeting{}, domain.ErrNotOpen
	}
	return m, nil
}

func (d *Desk) CurrentID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Refresh reloads the roster.
func (d *Desk) Refresh(ctx context.Context) ([]domain.MeetingBrief, error) {
	items, err := d.Backend.ListMeetings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	d.Store.SetRoster(items)
	return d.Store.Roster(), nil
}

// Listen starts dictation for the open meeting.
func (d *Desk) Listen(ctx context.Context) error {
	id := d.CurrentID()
	if id == "" {
		return domain.ErrNotOpen
	}
	if !d.Lifecycle.Can(id, ActionDictate) {
		m, _ := d.Store.Get(id)
		return fmt.Errorf("dictation unavailable for %s meeting: %w", m.Status, domain.ErrInvalidTransition)
	}
	return d.Dictation.StartListening(ctx, id)
}

// Analyze analyzes the open meeting. A result that arrives after another
// meeting was opened is dropped with ErrStaleResult.
func (d *Desk) Analyze(ctx context.Context) (domain.SummaryResult, error) {
	id := d.CurrentID()
	if id == "" {
		return domain.SummaryResult{}, domain.ErrNotOpen
	}
	res, err := d.Summaries.Analyze(ctx, id)
	if d.CurrentID() != id {
		return domain.SummaryResult{}, domain.ErrStaleResult
	}
	return res, err
}
