package meeting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meetline/internal/domain"
)

// Action names a control a view may offer for a meeting.
type Action string

const (
	ActionStart   Action = "start"
	ActionEnd     Action = "end"
	ActionCancel  Action = "cancel"
	ActionAddNote Action = "add_note"
	ActionDictate Action = "dictate"
	ActionAnalyze Action = "analyze"
)

// EndResult is returned by End. PromptSummary asks the view to offer
// summary entry.
type EndResult struct {
	Meeting       domain.Meeting
	PromptSummary bool
}

// Lifecycle runs the meeting state machine against the backend.
type Lifecycle struct {
	Backend Backend
	Store   *Store
	Log     zerolog.Logger
	Now     func() time.Time
	// Tick is the clock period; zero means one second.
	Tick time.Duration

	mu     sync.Mutex
	clocks map[string]map[chan struct{}]struct{}
}

func NewLifecycle(b Backend, s *Store) *Lifecycle {
	return &Lifecycle{Backend: b, Store: s, Log: zerolog.Nop(), Now: time.Now}
}

func (l *Lifecycle) Start(ctx context.Context, meetingID string) (domain.Meeting, error) {
	return l.transition(ctx, meetingID, domain.StatusInProgress)
}

func (l *Lifecycle) End(ctx context.Context, meetingID string) (EndResult, error) {
	m, err := l.transition(ctx, meetingID, domain.StatusCompleted)
	if err != nil {
		return EndResult{}, err
	}
	return EndResult{Meeting: m, PromptSummary: true}, nil
}

func (l *Lifecycle) Cancel(ctx context.Context, meetingID string) (domain.Meeting, error) {
	return l.transition(ctx, meetingID, domain.StatusCancelled)
}

func (l *Lifecycle) transition(ctx context.Context, meetingID string, to domain.MeetingStatus) (domain.Meeting, error) {
	m, ok := l.Store.Get(meetingID)
	if !ok {
		return domain.Meeting{}, notFound(meetingID)
	}
	if err := domain.CheckTransition(m.Status, to); err != nil {
		return domain.Meeting{}, err
	}
	updated, err := l.Backend.UpdateMeeting(ctx, meetingID, domain.MeetingPatch{Status: &to})
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("update meeting status: %w", err)
	}
	if err := l.Store.merge(updated); err != nil {
		return domain.Meeting{}, err
	}
	if to != domain.StatusInProgress {
		l.stopClocks(meetingID)
	}
	l.Log.Info().Str("meeting_id", meetingID).Str("from", string(m.Status)).Str("to", string(to)).Msg("meeting.status")
	got, _ := l.Store.Get(meetingID)
	return got, nil
}

// Elapsed is the running time of an in-progress meeting, or the final
// duration of a completed one. Planned and cancelled meetings report false.
func (l *Lifecycle) Elapsed(meetingID string) (time.Duration, bool) {
	m, ok := l.Store.Get(meetingID)
	if !ok || m.StartedAt == nil {
		return 0, false
	}
	switch m.Status {
	case domain.StatusInProgress:
		return l.now().Sub(*m.StartedAt), true
	case domain.StatusCompleted:
		if m.EndedAt == nil {
			return 0, false
		}
		return m.EndedAt.Sub(*m.StartedAt), true
	}
	return 0, false
}

// Clock emits the elapsed time once per tick while the meeting is in
// progress. The channel is closed when the meeting leaves in_progress or ctx
// ends. Ticks are dropped if the reader falls behind.
func (l *Lifecycle) Clock(ctx context.Context, meetingID string) <-chan time.Duration {
	out := make(chan time.Duration, 1)
	m, ok := l.Store.Get(meetingID)
	if !ok || m.Status != domain.StatusInProgress {
		close(out)
		return out
	}
	stop := l.registerClock(meetingID)
	go func() {
		defer close(out)
		defer l.unregisterClock(meetingID, stop)
		ticker := time.NewTicker(l.tick())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				cur, ok := l.Store.Get(meetingID)
				if !ok || cur.Status != domain.StatusInProgress {
					return
				}
				d, _ := l.Elapsed(meetingID)
				select {
				case out <- d:
				default:
				}
			}
		}
	}()
	return out
}

// Can reports whether the action is offered for the meeting's current state.
func (l *Lifecycle) Can(meetingID string, action Action) bool {
	m, ok := l.Store.Get(meetingID)
	if !ok {
		return false
	}
	switch action {
	case ActionStart:
		return m.Status == domain.StatusPlanned
	case ActionEnd:
		return m.Status == domain.StatusInProgress
	case ActionCancel:
		return m.Status == domain.StatusPlanned || m.Status == domain.StatusInProgress
	case ActionAddNote:
		return m.Status != domain.StatusCancelled
	case ActionDictate:
		return !m.Status.Terminal()
	case ActionAnalyze:
		return len(m.Notes) > 0 && m.Status != domain.StatusCancelled
	}
	return false
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Lifecycle) tick() time.Duration {
	if l.Tick > 0 {
		return l.Tick
	}
	return time.Second
}

func (l *Lifecycle) registerClock(meetingID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clocks == nil {
		l.clocks = map[string]map[chan struct{}]struct{}{}
	}
	if l.clocks[meetingID] == nil {
		l.clocks[meetingID] = map[chan struct{}]struct{}{}
	}
	stop := make(chan struct{})
	l.clocks[meetingID][stop] = struct{}{}
	return stop
}

func (l *Lifecycle) unregisterClock(meetingID string, stop chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clocks[meetingID], stop)
	if len(l.clocks[meetingID]) == 0 {
		delete(l.clocks, meetingID)
	}
}

func (l *Lifecycle) stopClocks(meetingID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for stop := range l.clocks[meetingID] {
		close(stop)
	}
	delete(l.clocks, meetingID)
}
