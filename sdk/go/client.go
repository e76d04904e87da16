package meetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meetline/internal/domain"
)

// Client is the Meetline HTTP API client. It satisfies meeting.Backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the base path,
// e.g. http://127.0.0.1:8080/v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// APIError wraps non-2xx responses. It unwraps to the domain sentinel matching
// Code so errors.Is works on the caller side.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found":
		return domain.ErrNotFound
	case "invalid_transition":
		return domain.ErrInvalidTransition
	case "empty_note":
		return domain.ErrEmptyNote
	case "already_converted":
		return domain.ErrAlreadyConverted
	case "no_content":
		return domain.ErrNoContent
	case "analysis_unavailable":
		return domain.ErrAnalysisUnavailable
	}
	if e.Code == "" && e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// ListMeetings returns the meeting roster.
func (c *Client) ListMeetings(ctx context.Context) ([]domain.MeetingBrief, error) {
	var resp []domain.MeetingBrief
	err := c.do(ctx, http.MethodGet, "meetings", nil, &resp)
	return resp, err
}

// CreateMeeting schedules a planned meeting.
func (c *Client) CreateMeeting(ctx context.Context, draft domain.MeetingDraft) (domain.Meeting, error) {
	var resp domain.Meeting
	err := c.do(ctx, http.MethodPost, "meetings", draft, &resp)
	return resp, err
}

func (c *Client) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	var resp domain.Meeting
	err := c.do(ctx, http.MethodGet, meetingPath(id), nil, &resp)
	return resp, err
}

// UpdateMeeting sends a partial update; status changes go through the
// server-side state machine.
func (c *Client) UpdateMeeting(ctx context.Context, id string, patch domain.MeetingPatch) (domain.Meeting, error) {
	var resp domain.Meeting
	err := c.do(ctx, http.MethodPatch, meetingPath(id), patch, &resp)
	return resp, err
}

func (c *Client) AddNote(ctx context.Context, meetingID, text string, source domain.NoteSource) (domain.Note, error) {
	body := map[string]any{
		"text":   text,
		"source": source,
	}
	var resp domain.Note
	err := c.do(ctx, http.MethodPost, meetingPath(meetingID)+"/notes", body, &resp)
	return resp, err
}

func (c *Client) EditNote(ctx context.Context, meetingID string, noteID int64, text string) (domain.Note, error) {
	body := map[string]any{"text": text}
	var resp domain.Note
	err := c.do(ctx, http.MethodPatch, notePath(meetingID, noteID), body, &resp)
	return resp, err
}

func (c *Client) DeleteNote(ctx context.Context, meetingID string, noteID int64) error {
	return c.do(ctx, http.MethodDelete, notePath(meetingID, noteID), nil, nil)
}

// ConvertNote promotes a note to a task.
func (c *Client) ConvertNote(ctx context.Context, meetingID string, noteID int64) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPost, notePath(meetingID, noteID)+"/convert", nil, &resp)
	return resp, err
}

// Analyze runs notes through the analysis service. Nil notes lets the server
// use the stored ones.
func (c *Client) Analyze(ctx context.Context, meetingID string, notes []domain.NoteInput) (domain.SummaryResult, error) {
	var body any
	if notes != nil {
		body = map[string]any{"notes": notes}
	}
	var resp domain.SummaryResult
	err := c.do(ctx, http.MethodPost, meetingPath(meetingID)+"/analyze", body, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// decodeError understands both the {"error":{"code","message","details"}}
// envelope and a flat {"error":"..."} body.
func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var flat string
		if err := json.Unmarshal(env.Error, &flat); err == nil {
			apiErr.Message = strings.TrimSpace(flat)
		} else {
			var nested struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			}
			if err := json.Unmarshal(env.Error, &nested); err == nil {
				apiErr.Code = nested.Code
				apiErr.Message = nested.Message
				apiErr.Details = nested.Details
			}
		}
	}
	if apiErr.Code == "" && status == http.StatusBadGateway {
		apiErr.Code = "analysis_unavailable"
	}

	switch apiErr.Code {
	case "invalid_transition":
		from, _ := apiErr.Details["from"].(string)
		to, _ := apiErr.Details["to"].(string)
		if from != "" && to != "" {
			return &domain.TransitionError{From: domain.MeetingStatus(from), To: domain.MeetingStatus(to)}
		}
	case "analysis_unavailable":
		reason, _ := apiErr.Details["reason"].(string)
		if reason == "" && apiErr.Message != domain.AnalysisHint {
			reason = apiErr.Message
		}
		return &domain.AnalysisError{Reason: reason, Cause: apiErr}
	}
	return apiErr
}

func meetingPath(id string) string {
	return "meetings/" + url.PathEscape(id)
}

func notePath(meetingID string, noteID int64) string {
	return fmt.Sprintf("%s/notes/%d", meetingPath(meetingID), noteID)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
