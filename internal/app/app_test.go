package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/config"
	"meetline/internal/domain"
	"meetline/internal/meeting"
)

func TestLoadConfigOverrides(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, config.Path("/ws"), []byte("analysis:\n  url: http://file\n"), 0o644))

	v := viper.New()
	cfg, err := LoadConfig(fs, "/ws", v)
	require.NoError(t, err)
	assert.Equal(t, "http://file", cfg.Analysis.URL)

	v.Set("analysis.url", "http://flag")
	v.Set("analysis.timeout", "5s")
	v.Set("log.format", "json")
	cfg, err = LoadConfig(fs, "/ws", v)
	require.NoError(t, err)
	assert.Equal(t, "http://flag", cfg.Analysis.URL)
	assert.Equal(t, 5*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)

	v.Set("database.driver", "mysql")
	_, err = LoadConfig(fs, "/ws", v)
	assert.Error(t, err)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("MEETLINE_DICTATION_LOCALE", "en-US")
	v := viper.New()
	BindEnv(v)
	cfg, err := LoadConfig(afero.NewMemMapFs(), "/missing", v)
	require.NoError(t, err)
	assert.Equal(t, "en-US", cfg.Dictation.Locale)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLocalBackendDrivesDesk(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, t.TempDir(), config.Default(), zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close()

	b := LocalBackend{Engine: rt.Engine}
	m, err := b.CreateMeeting(ctx, domain.MeetingDraft{Title: "Standup", ParticipantIDs: []string{"c-1", "c-1", "c-2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, m.ParticipantIDs)

	desk := meeting.NewDesk(b, meeting.Config{})
	defer desk.Close()
	_, err = desk.Open(ctx, m.ID)
	require.NoError(t, err)
	_, err = desk.Lifecycle.Start(ctx, m.ID)
	require.NoError(t, err)
	n, err := desk.Notes.Add(ctx, m.ID, "Deploy on Monday", domain.SourceManual)
	require.NoError(t, err)
	task, err := desk.Converter.ConvertNote(ctx, m.ID, n.ID)
	require.NoError(t, err)

	got, err := b.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deploy on Monday", got.Title)

	_, err = desk.Analyze(ctx)
	var aerr *domain.AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "analysis service not configured", aerr.Message())
}
