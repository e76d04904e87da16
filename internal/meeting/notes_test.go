package meeting

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/domain"
)

func TestAddValidatesBeforeRemoteCall(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()

	_, err := d.Notes.Add(ctx, id, "  \n\t ", domain.SourceManual)
	assert.ErrorIs(t, err, domain.ErrEmptyNote)
	_, err = d.Notes.Add(ctx, id, "hello", domain.NoteSource("fax"))
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
	_, err = d.Notes.Add(ctx, "missing", "hello", domain.SourceManual)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, b.count("AddNote"))
}

func TestAddAppendsAfterSuccess(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	var added []int64
	d.Notes.OnAdded = func(n domain.Note) { added = append(added, n.ID) }

	first, err := d.Notes.Add(ctx, id, "  Budget approved  ", domain.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "Budget approved", first.Text)
	second, err := d.Notes.Add(ctx, id, "Ship on Friday", domain.SourceVoice)
	require.NoError(t, err)

	notes, err := d.Notes.List(id)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, first.ID, notes[0].ID)
	assert.Equal(t, second.ID, notes[1].ID)
	assert.Equal(t, domain.SourceVoice, notes[1].Source)
	assert.Equal(t, []int64{first.ID, second.ID}, added)
}

func TestAddFailureLeavesNotes(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	b.failOnce("AddNote", errors.New("timeout"))
	_, err := d.Notes.Add(context.Background(), id, "lost", domain.SourceManual)
	require.Error(t, err)
	notes, _ := d.Notes.List(id)
	assert.Empty(t, notes)
}

func TestEditKeepsSourceAndCreatedAt(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	n, err := d.Notes.Add(ctx, id, "draft", domain.SourceVoice)
	require.NoError(t, err)

	_, err = d.Notes.Edit(ctx, id, n.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyNote)
	assert.Zero(t, b.count("EditNote"))

	edited, err := d.Notes.Edit(ctx, id, n.ID, "final text")
	require.NoError(t, err)
	assert.Equal(t, "final text", edited.Text)
	assert.Equal(t, domain.SourceVoice, edited.Source)
	assert.True(t, n.CreatedAt.Equal(edited.CreatedAt))
	assert.True(t, edited.UpdatedAt.After(n.UpdatedAt))

	_, err = d.Notes.Edit(ctx, id, 999, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteConvertedNoteKeepsTask(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	n, err := d.Notes.Add(ctx, id, "Send invoice", domain.SourceManual)
	require.NoError(t, err)
	task, err := d.Converter.ConvertNote(ctx, id, n.ID)
	require.NoError(t, err)

	require.NoError(t, d.Notes.Delete(ctx, id, n.ID))
	m, _ := d.Store.Get(id)
	assert.Empty(t, m.Notes)
	assert.Equal(t, []string{task.ID}, m.RelatedTaskIDs)

	assert.ErrorIs(t, d.Notes.Delete(ctx, id, n.ID), domain.ErrNotFound)
}

func TestConvertOnce(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	n, err := d.Notes.Add(ctx, id, "Book the room", domain.SourceManual)
	require.NoError(t, err)

	task, err := d.Converter.ConvertNote(ctx, id, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Book the room", task.Title)
	m, _ := d.Store.Get(id)
	require.NotNil(t, m.Notes[0].TaskID)
	assert.Equal(t, task.ID, *m.Notes[0].TaskID)

	_, err = d.Converter.ConvertNote(ctx, id, n.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyConverted)
	assert.Equal(t, 1, b.count("ConvertNote"))
	m, _ = d.Store.Get(id)
	assert.Len(t, m.RelatedTaskIDs, 1)
}

func TestConvertFailureLeavesNoteUnconverted(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()
	n, err := d.Notes.Add(ctx, id, "Book the room", domain.SourceManual)
	require.NoError(t, err)
	b.failOnce("ConvertNote", errors.New("boom"))

	_, err = d.Converter.ConvertNote(ctx, id, n.ID)
	require.Error(t, err)
	m, _ := d.Store.Get(id)
	assert.False(t, m.Notes[0].Converted())
	assert.Empty(t, m.RelatedTaskIDs)
}

func TestConvertSuggestion(t *testing.T) {
	b := newFakeBackend()
	d, id := openDesk(t, b, nil, domain.StatusInProgress)
	ctx := context.Background()

	note, task, err := d.Converter.ConvertSuggestion(ctx, id, "Prepare the demo")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAI, note.Source)
	require.NotNil(t, note.TaskID)
	assert.Equal(t, task.ID, *note.TaskID)

	b.failOnce("ConvertNote", errors.New("boom"))
	note, _, err = d.Converter.ConvertSuggestion(ctx, id, "Write minutes")
	require.Error(t, err)
	assert.NotZero(t, note.ID, "the ai note stays")
	notes, _ := d.Notes.List(id)
	require.Len(t, notes, 2)
	assert.Equal(t, domain.SourceAI, notes[1].Source)
	assert.False(t, notes[1].Converted())
}
