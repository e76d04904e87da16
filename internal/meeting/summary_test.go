package meeting

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/domain"
)

func TestAnalyzeWithoutNotes(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	_, err := d.Summaries.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNoContent)
	assert.Zero(t, b.count("Analyze"))
}

func TestAnalyzeSendsNotes(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	var sent []domain.NoteInput
	b.analyze = func(_ context.Context, notes []domain.NoteInput) (domain.SummaryResult, error) {
		sent = notes
		return domain.SummaryResult{Summary: "ok", Tasks: []string{"Call Bob"}}, nil
	}
	_, err := d.Notes.Add(ctx, id, "typed", domain.SourceManual)
	require.NoError(t, err)
	_, err = d.Notes.Add(ctx, id, "spoken", domain.SourceVoice)
	require.NoError(t, err)

	res, err := d.Summaries.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Summary)
	assert.Equal(t, []domain.NoteInput{
		{Text: "typed", Source: domain.SourceManual},
		{Text: "spoken", Source: domain.SourceVoice},
	}, sent)
}

func TestAnalyzeErrors(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	_, err := d.Notes.Add(ctx, id, "typed", domain.SourceManual)
	require.NoError(t, err)

	b.failOnce("Analyze", &domain.AnalysisError{Reason: "model is loading"})
	_, err = d.Summaries.Analyze(ctx, id)
	var aerr *domain.AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "model is loading", aerr.Message())

	b.failOnce("Analyze", errors.New("dial tcp: connection refused"))
	_, err = d.Summaries.Analyze(ctx, id)
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.AnalysisHint, aerr.Message())
	assert.ErrorIs(t, err, domain.ErrAnalysisUnavailable)
}

func TestApplySaveDiscard(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusCompleted)
	ctx := context.Background()

	require.NoError(t, d.Summaries.Apply(id, "First draft"))
	assert.True(t, d.Summaries.Dirty(id))
	assert.Zero(t, b.count("UpdateMeeting"), "apply is local only")

	m, err := d.Summaries.Save(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "First draft", m.Summary)
	assert.False(t, d.Summaries.Dirty(id))
	assert.Equal(t, "First draft", b.stored(id).Summary)

	require.NoError(t, d.Summaries.Apply(id, "Second draft"))
	require.NoError(t, d.Summaries.Discard(id))
	m, _ = d.Store.Get(id)
	assert.Equal(t, "First draft", m.Summary)
	assert.False(t, d.Summaries.Dirty(id))
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusCompleted)
	require.NoError(t, d.Summaries.Apply(id, "draft"))
	b.failOnce("UpdateMeeting", errors.New("offline"))
	_, err := d.Summaries.Save(context.Background(), id)
	require.Error(t, err)
	assert.True(t, d.Summaries.Dirty(id))
	m, _ := d.Store.Get(id)
	assert.Equal(t, "draft", m.Summary)
}

func TestStatusChangeKeepsUnsavedSummary(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	require.NoError(t, d.Summaries.Apply(id, "live draft"))
	_, err := d.Lifecycle.End(context.Background(), id)
	require.NoError(t, err)
	m, _ := d.Store.Get(id)
	assert.Equal(t, "live draft", m.Summary)
	assert.True(t, d.Summaries.Dirty(id))
}
