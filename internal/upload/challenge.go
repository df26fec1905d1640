package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidChallenge is returned when the sink answers with a challenge
// missing required fields.
var ErrInvalidChallenge = errors.New("invalid challenge")

// Challenge is the active challenge for a repository.
type Challenge struct {
	ID          string    `json:"id"`
	RepoName    string    `json:"repoName"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Validate checks the fields every challenge must carry.
func (c *Challenge) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidChallenge)
	case strings.TrimSpace(c.RepoName) == "":
		return fmt.Errorf("%w: missing repoName", ErrInvalidChallenge)
	case c.ExpiresAt.IsZero():
		return fmt.Errorf("%w: missing expiresAt", ErrInvalidChallenge)
	}
	return nil
}

// Expired reports whether the challenge has lapsed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// FetchChallenge retrieves the current challenge for repoName.
func (c *Client) FetchChallenge(ctx context.Context, repoName string) (*Challenge, error) {
	u := c.endpoint + "/challenge?" + url.Values{"repoName": {repoName}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build challenge request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch challenge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, checkStatus(resp)
	}

	var challenge Challenge
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	if err := challenge.Validate(); err != nil {
		return nil, err
	}
	return &challenge, nil
}
