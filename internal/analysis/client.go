// Package analysis talks to the external summarization service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meetline/internal/domain"
)

// ReasonNotConfigured is reported when no service URL is set.
const ReasonNotConfigured = "analysis service not configured"

type Request struct {
	MeetingID string             `json:"meeting_id"`
	Title     string             `json:"title"`
	Notes     []domain.NoteInput `json:"notes"`
}

// Analyzer produces a SummaryResult for a set of notes.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (domain.SummaryResult, error)
}

// Client posts requests to the configured service URL.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func New(url string, timeout time.Duration) *Client {
	return &Client{URL: strings.TrimSpace(url), HTTPClient: &http.Client{}, Timeout: timeout}
}

// Analyze returns *domain.AnalysisError for every failure so callers can show
// the service's own reason when it gave one.
func (c *Client) Analyze(ctx context.Context, req Request) (domain.SummaryResult, error) {
	if c == nil || c.URL == "" {
		return domain.SummaryResult{}, &domain.AnalysisError{Reason: ReasonNotConfigured}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if req.Notes == nil {
		req.Notes = []domain.NoteInput{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.SummaryResult{}, &domain.AnalysisError{Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.SummaryResult{}, &domain.AnalysisError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return domain.SummaryResult{}, &domain.AnalysisError{Cause: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.SummaryResult{}, &domain.AnalysisError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.SummaryResult{}, &domain.AnalysisError{
			Reason: ErrorReason(body),
			Cause:  fmt.Errorf("analysis service status %d", resp.StatusCode),
		}
	}
	var res domain.SummaryResult
	if len(bytes.TrimSpace(body)) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return domain.SummaryResult{}, &domain.AnalysisError{Cause: fmt.Errorf("decode analysis response: %w", err)}
	}
	return res, nil
}

// ErrorReason extracts the message from an `{"error": "..."}` body. It also
// understands `{"error": {"message": "..."}}`. Anything else yields "".
func ErrorReason(body []byte) string {
	var flat struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err != nil || len(flat.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(flat.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(flat.Error, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
