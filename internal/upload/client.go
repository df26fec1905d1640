package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goodtune/timetrack/internal/storage"
)

const userAgent = "timetrack/1.0"

// timeLayout renders session bounds as UTC ISO-8601 with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Sink delivers a batch of sessions for one project.
type Sink interface {
	Upload(ctx context.Context, project string, sessions []storage.TimeWindow) error
}

// StatusError is returned when the sink answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sink returned %d", e.Code)
	}
	return fmt.Sprintf("sink returned %d: %s", e.Code, e.Body)
}

// Client is the HTTP sink for session uploads and challenge lookups.
type Client struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewClient builds a client for endpoint. A non-positive timeout falls back
// to ten seconds.
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type sessionPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type uploadPayload struct {
	RepoName string           `json:"repoName"`
	Sessions []sessionPayload `json:"sessions"`
}

// Upload posts sessions for project. Each call carries a fresh
// Idempotency-Key so the sink can recognise replays of the same request.
func (c *Client) Upload(ctx context.Context, project string, sessions []storage.TimeWindow) error {
	body := uploadPayload{
		RepoName: project,
		Sessions: make([]sessionPayload, 0, len(sessions)),
	}
	for _, s := range sessions {
		body.Sessions = append(body.Sessions, sessionPayload{
			Start: s.StartTime().Format(timeLayout),
			End:   s.EndTime().Format(timeLayout),
		})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/sessions", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send upload: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
