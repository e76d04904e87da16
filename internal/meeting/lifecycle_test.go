package meeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/domain"
)

func openDesk(t *testing.T, b *fakeBackend, rec Recognizer, status domain.MeetingStatus) (*Desk, string) {
	t.Helper()
	id := b.seed("Weekly sync", status)
	d := NewDesk(b, Config{Recognizer: rec})
	_, err := d.Open(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, id
}

func TestStartEndStampsTimes(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusPlanned)
	ctx := context.Background()

	_, ok := d.Lifecycle.Elapsed(id)
	assert.False(t, ok, "planned meeting has no elapsed time")

	m, err := d.Lifecycle.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, m.Status)
	require.NotNil(t, m.StartedAt)
	assert.Nil(t, m.EndedAt)

	res, err := d.Lifecycle.End(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.PromptSummary)
	require.NotNil(t, res.Meeting.EndedAt)
	assert.False(t, res.Meeting.EndedAt.Before(*res.Meeting.StartedAt))

	elapsed, ok := d.Lifecycle.Elapsed(id)
	require.True(t, ok)
	assert.Equal(t, res.Meeting.EndedAt.Sub(*res.Meeting.StartedAt), elapsed)

	_, err = d.Lifecycle.Start(ctx, id)
	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.StatusCompleted, terr.From)
	assert.Equal(t, 2, b.count("UpdateMeeting"), "rejected transition makes no remote call")
}

func TestEndFromPlannedRejectedLocally(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusPlanned)
	_, err := d.Lifecycle.End(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Zero(t, b.count("UpdateMeeting"))
}

func TestCancelKeepsStartedAt(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	m, err := d.Lifecycle.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, m.Status)
	assert.NotNil(t, m.StartedAt)
	assert.Nil(t, m.EndedAt)
	_, ok := d.Lifecycle.Elapsed(id)
	assert.False(t, ok)
}

func TestTransitionFailureLeavesState(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusPlanned)
	b.failOnce("UpdateMeeting", errors.New("connection refused"))
	_, err := d.Lifecycle.Start(context.Background(), id)
	require.Error(t, err)
	m, _ := d.Store.Get(id)
	assert.Equal(t, domain.StatusPlanned, m.Status)
	assert.Nil(t, m.StartedAt)
}

func TestElapsedWhileRunning(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	m, _ := d.Store.Get(id)
	d.Lifecycle.Now = func() time.Time { return m.StartedAt.Add(90 * time.Second) }
	elapsed, ok := d.Lifecycle.Elapsed(id)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, elapsed)
}

func TestClockStopsOnEnd(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	d.Lifecycle.Tick = 5 * time.Millisecond

	ticks := d.Lifecycle.Clock(context.Background(), id)
	select {
	case _, ok := <-ticks:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}

	_, err := d.Lifecycle.End(context.Background(), id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ticks:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestClockClosedWhenNotRunning(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusPlanned)
	_, ok := <-d.Lifecycle.Clock(context.Background(), id)
	assert.False(t, ok)
}

func TestClockStopsWithContext(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	d.Lifecycle.Tick = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	ticks := d.Lifecycle.Clock(ctx, id)
	cancel()
	select {
	case _, ok := <-ticks:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("clock not closed")
	}
}

func TestCan(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusPlanned)
	assert.True(t, d.Lifecycle.Can(id, ActionStart))
	assert.False(t, d.Lifecycle.Can(id, ActionEnd))
	assert.True(t, d.Lifecycle.Can(id, ActionCancel))
	assert.True(t, d.Lifecycle.Can(id, ActionDictate))
	assert.False(t, d.Lifecycle.Can(id, ActionAnalyze), "no notes yet")

	_, err := d.Notes.Add(context.Background(), id, "agenda", domain.SourceManual)
	require.NoError(t, err)
	assert.True(t, d.Lifecycle.Can(id, ActionAnalyze))

	_, err = d.Lifecycle.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, d.Lifecycle.Can(id, ActionAddNote))
	assert.False(t, d.Lifecycle.Can(id, ActionDictate))
	assert.False(t, d.Lifecycle.Can(id, ActionAnalyze))
	assert.False(t, d.Lifecycle.Can("missing", ActionStart))
}
