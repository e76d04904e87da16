package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/domain"
)

func TestAnalyzeSuccess(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"summary":"Budget agreed","tasks":["Send invoice"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	res, err := c.Analyze(context.Background(), Request{
		MeetingID: "m-1",
		Title:     "Weekly",
		Notes:     []domain.NoteInput{{Text: "Обсудили бюджет", Source: domain.SourceVoice}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Budget agreed", res.Summary)
	assert.Equal(t, []string{"Send invoice"}, res.Tasks)
	assert.Empty(t, res.Decisions)
	assert.Empty(t, res.Questions)
	assert.Equal(t, "m-1", got.MeetingID)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, domain.SourceVoice, got.Notes[0].Source)
}

func TestAnalyzeRemoteReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model is loading"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Analyze(context.Background(), Request{MeetingID: "m-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAnalysisUnavailable)
	var aerr *domain.AnalysisError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "model is loading", aerr.Message())
}

func TestAnalyzeUnreachableUsesHint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Analyze(context.Background(), Request{MeetingID: "m-1"})
	var aerr *domain.AnalysisError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, domain.AnalysisHint, aerr.Message())
}

func TestAnalyzeNotConfigured(t *testing.T) {
	_, err := New("", 0).Analyze(context.Background(), Request{})
	var aerr *domain.AnalysisError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ReasonNotConfigured, aerr.Message())
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "boom", ErrorReason([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "nested", ErrorReason([]byte(`{"error":{"code":"x","message":"nested"}}`)))
	assert.Equal(t, "", ErrorReason([]byte(`not json`)))
	assert.Equal(t, "", ErrorReason([]byte(`{"detail":"x"}`)))
}
