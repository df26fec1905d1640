package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goodtune/timetrack/internal/api"
	"github.com/goodtune/timetrack/internal/config"
	"github.com/goodtune/timetrack/internal/storage"
)

// daemonBackend forwards commands to a running daemon's local API.
type daemonBackend struct {
	base    string
	client  *http.Client
	loc     *time.Location
	uploads bool
}

func newDaemonBackend(cfg *config.Config) (*daemonBackend, error) {
	loc, err := cfg.Tracking.Location()
	if err != nil {
		return nil, err
	}
	return &daemonBackend{
		base:    "http://" + daemonAddr(cfg.Server),
		client:  &http.Client{Timeout: 30 * time.Second},
		loc:     loc,
		uploads: cfg.Upload.Enabled(),
	}, nil
}

// daemonAddr is where the daemon's API can be reached from this host.
func daemonAddr(cfg config.ServerConfig) string {
	host := cfg.BindAddress
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.APIPort))
}

// daemonError is a non-2xx reply from the daemon.
type daemonError struct {
	Code    int
	Message string
}

func (e *daemonError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.Code)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.Code, e.Message)
}

func (d *daemonBackend) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := d.call(ctx, http.MethodGet, "/health", nil, nil, nil)
	return err
}

func (d *daemonBackend) Location() *time.Location {
	return d.loc
}

func (d *daemonBackend) RecordSession(ctx context.Context, window storage.TimeWindow, project string) error {
	req := api.RecordRequest{Project: project, Start: window.Start, End: window.End}
	_, err := d.call(ctx, http.MethodPost, "/api/sessions", nil, req, nil)
	return err
}

func (d *daemonBackend) TimeInWindow(ctx context.Context, window storage.TimeWindow, project string) (time.Duration, error) {
	query := url.Values{
		"project": {project},
		"start":   {strconv.FormatInt(window.Start, 10)},
		"end":     {strconv.FormatInt(window.End, 10)},
	}
	var resp api.TimeResponse
	if _, err := d.call(ctx, http.MethodGet, "/api/time", query, nil, &resp); err != nil {
		return 0, err
	}
	return time.Duration(resp.Milliseconds) * time.Millisecond, nil
}

func (d *daemonBackend) TodayTime(ctx context.Context, project string) (time.Duration, storage.TimeWindow, error) {
	var resp api.TimeResponse
	if _, err := d.call(ctx, http.MethodGet, "/api/time/today", url.Values{"project": {project}}, nil, &resp); err != nil {
		return 0, storage.TimeWindow{}, err
	}
	return time.Duration(resp.Milliseconds) * time.Millisecond, storage.WindowOf(resp.Start, resp.End), nil
}

func (d *daemonBackend) DayLog(ctx context.Context, project, day string) ([]storage.TimeWindow, error) {
	var resp api.DayLogResponse
	if _, err := d.call(ctx, http.MethodGet, "/api/days/"+url.PathEscape(day), url.Values{"project": {project}}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (d *daemonBackend) Pending(ctx context.Context) (map[string][]storage.TimeWindow, error) {
	if !d.uploads {
		return nil, errUploadsDisabled
	}
	var resp struct {
		Pending map[string][]storage.TimeWindow `json:"pending"`
	}
	if _, err := d.call(ctx, http.MethodGet, "/api/uploads/pending", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pending, nil
}

func (d *daemonBackend) Flush(ctx context.Context) (flushResult, error) {
	var resp struct {
		Status  string `json:"status"`
		Pending int    `json:"pending"`
	}
	status, err := d.call(ctx, http.MethodPost, "/api/uploads/flush", nil, nil, &resp)
	if status == http.StatusServiceUnavailable {
		return flushResult{}, errUploadsDisabled
	}
	if err != nil {
		return flushResult{}, err
	}
	return flushResult{InProgress: resp.Status == "in_progress", Pending: resp.Pending}, nil
}

func (d *daemonBackend) Close() {}

// call sends in as JSON and decodes a 2xx reply into out. It returns the
// HTTP status alongside any error.
func (d *daemonBackend) call(ctx context.Context, method, path string, query url.Values, in, out interface{}) (int, error) {
	target := d.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 2048)).Decode(&apiErr)
		return resp.StatusCode, &daemonError{Code: resp.StatusCode, Message: apiErr.Message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode daemon response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
