package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/analysis"
	"meetline/internal/config"
	"meetline/internal/db"
	"meetline/internal/domain"
	"meetline/internal/engine"
	"meetline/internal/metrics"
	"meetline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
	logs   *lockedBuffer
	db     *db.DB
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, analysisURL string) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err, "open db")
	require.NoError(t, migrate.Migrate(context.Background(), conn), "migrate")

	cfg := config.Default()
	cfg.Analysis.URL = analysisURL
	cfg.Analysis.Timeout = 5 * time.Second
	e := engine.New(conn, cfg)
	reg := prometheus.NewRegistry()
	e.Metrics = metrics.NewBackend(reg)

	logs := &lockedBuffer{}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Logger:   zerolog.New(logs),
		Gatherer: reg,
	})
	require.NoError(t, err, "build handler")
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		logs:   logs,
		db:     conn,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "new request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func createMeeting(t *testing.T, srv *testServer, title string) domain.Meeting {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings", map[string]any{
		"title": title,
		"date":  "2024-05-14",
		"time":  "10:30",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var m domain.Meeting
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func addNote(t *testing.T, srv *testServer, meetingID, text string) domain.Note {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings/"+meetingID+"/notes", map[string]any{
		"text":   text,
		"source": "manual",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var n domain.Note
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

func TestMeetingLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()
	m := createMeeting(t, srv, "Weekly sync")
	assert.Equal(t, domain.StatusPlanned, m.Status)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/meetings/"+m.ID, map[string]any{"status": "completed"}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	apiErr := decodeError(t, data)
	assert.Equal(t, "invalid_transition", apiErr.Code)
	assert.Equal(t, "planned", apiErr.Details["from"])

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/meetings/"+m.ID, map[string]any{"status": "in_progress"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var started domain.Meeting
	require.NoError(t, json.Unmarshal(data, &started))
	require.NotNil(t, started.StartedAt)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/meetings/"+m.ID, map[string]any{"status": "completed"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ended domain.Meeting
	require.NoError(t, json.Unmarshal(data, &ended))
	require.NotNil(t, ended.EndedAt)
	assert.False(t, ended.EndedAt.Before(*ended.StartedAt))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/meetings", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var roster []domain.MeetingBrief
	require.NoError(t, json.Unmarshal(data, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, domain.StatusCompleted, roster[0].Status)
}

func TestBadStatusValue(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	m := createMeeting(t, srv, "Sync")
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/meetings/"+m.ID, map[string]any{"status": "paused"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "bad_request", decodeError(t, data).Code)
}

func TestNotesOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()
	m := createMeeting(t, srv, "Sync")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/notes", map[string]any{
		"text": "   ", "source": "manual",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "empty_note", decodeError(t, data).Code)

	n := addNote(t, srv, m.ID, "Discuss Q3 roadmap")
	res, data = doJSON(t, client, http.MethodPatch, fmt.Sprintf("%s/v0/meetings/%s/notes/%d", srv.URL, m.ID, n.ID), map[string]any{
		"text": "Discuss Q4 roadmap",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var edited domain.Note
	require.NoError(t, json.Unmarshal(data, &edited))
	assert.Equal(t, "Discuss Q4 roadmap", edited.Text)
	assert.True(t, n.CreatedAt.Equal(edited.CreatedAt))

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/meetings/%s/notes/%d", srv.URL, m.ID, n.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/meetings/%s/notes/%d", srv.URL, m.ID, n.ID), nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", decodeError(t, data).Code)
}

func TestConvertTwiceAndTaskSurvivesDelete(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()
	m := createMeeting(t, srv, "Sync")
	n := addNote(t, srv, m.ID, "Send invoice")
	convertURL := fmt.Sprintf("%s/v0/meetings/%s/notes/%d/convert", srv.URL, m.ID, n.ID)

	res, data := doJSON(t, client, http.MethodPost, convertURL, nil, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var task domain.Task
	require.NoError(t, json.Unmarshal(data, &task))
	assert.Equal(t, "Send invoice", task.Title)

	res, data = doJSON(t, client, http.MethodPost, convertURL, nil, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "already_converted", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/meetings/%s/notes/%d", srv.URL, m.ID, n.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/meetings/"+m.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got domain.Meeting
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Empty(t, got.Notes)
	assert.Equal(t, []string{task.ID}, got.RelatedTaskIDs)
}

func TestAnalyzeOverHTTP(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analysis.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Notes) > 0 && req.Notes[0].Text == "fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model is loading"}`))
			return
		}
		_, _ = w.Write([]byte(`{"summary":"short","questions":["who owns it?"]}`))
	}))
	defer remote.Close()

	srv, cleanup := newTestServer(t, remote.URL)
	defer cleanup()
	client := srv.Client()
	m := createMeeting(t, srv, "Sync")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/analyze", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "no_content", decodeError(t, data).Code)

	addNote(t, srv, m.ID, "Budget approved")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/analyze", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var result domain.SummaryResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "short", result.Summary)
	assert.Equal(t, []string{"who owns it?"}, result.Questions)
	assert.Empty(t, result.Tasks)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/analyze", map[string]any{
		"notes": []map[string]any{{"text": "fail", "source": "manual"}},
	}, nil)
	require.Equal(t, http.StatusBadGateway, res.StatusCode, string(data))
	apiErr := decodeError(t, data)
	assert.Equal(t, "analysis_unavailable", apiErr.Code)
	assert.Equal(t, "model is loading", apiErr.Message)
}

func TestAnalyzeNotConfigured(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	m := createMeeting(t, srv, "Sync")
	addNote(t, srv, m.ID, "Budget approved")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/analyze", nil, nil)
	require.Equal(t, http.StatusBadGateway, res.StatusCode, string(data))
	assert.Equal(t, analysis.ReasonNotConfigured, decodeError(t, data).Message)
}

func TestRequestIDAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{RequestIDHeader: "req-42"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "req-42", res.Header.Get(RequestIDHeader))
	assert.Eventually(t, func() bool {
		return strings.Contains(srv.logs.String(), `"request_id":"req-42"`)
	}, time.Second, 10*time.Millisecond)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Len(t, res.Header.Get(RequestIDHeader), 26, "generated ids are ULIDs")

	createMeeting(t, srv, "Sync")
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(data), "meetline_http_requests_total"))
}

func TestHealthReportsDatabase(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var health HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, db.DriverSQLite, health.Database)
	assert.Equal(t, 1, health.SchemaVersion)

	require.NoError(t, srv.db.Close())
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode, string(data))
	assert.Equal(t, "database unreachable", decodeError(t, data).Message)
}

func TestOpenAPIServed(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/meetings/{id}/notes/{noteId}/convert")

	var doc struct {
		Paths map[string]map[string]struct {
			Responses map[string]struct {
				Content map[string]struct {
					Schema struct {
						Ref string `json:"$ref"`
					} `json:"schema"`
				} `json:"content"`
			} `json:"responses"`
		} `json:"paths"`
		Components struct {
			Schemas map[string]struct {
				Properties map[string]json.RawMessage `json:"properties"`
			} `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	envelope, ok := doc.Components.Schemas["MeetlineError"]
	require.True(t, ok)
	assert.Contains(t, envelope.Properties, "error")
	get := doc.Paths["/v0/meetings/{id}"]["get"]
	assert.Equal(t, "#/components/schemas/MeetlineError", get.Responses["default"].Content["application/json"].Schema.Ref)
}
