package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/timetrack/internal/storage"
	"github.com/goodtune/timetrack/internal/tracking"
	"github.com/gorilla/mux"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RecordRequest is the body of POST /api/sessions. Times are epoch
// milliseconds.
type RecordRequest struct {
	Project string `json:"project"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

// TimeResponse reports tracked time for a project over a window.
type TimeResponse struct {
	Project      string             `json:"project"`
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	Milliseconds int64              `json:"milliseconds"`
	Breakdown    tracking.Breakdown `json:"breakdown"`
	Formatted    string             `json:"formatted"`
}

// DayLogResponse lists the stored sessions of one day.
type DayLogResponse struct {
	Project  string               `json:"project"`
	Day      string               `json:"day"`
	Sessions []storage.TimeWindow `json:"sessions"`
	Count    int                  `json:"count"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uploads": s.uploads != nil,
	})
}

func (s *Server) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Project = strings.TrimSpace(req.Project)
	if req.Project == "" {
		writeError(w, http.StatusBadRequest, "project is required")
		return
	}

	window := storage.TimeWindow{Start: req.Start, End: req.End}
	if err := s.checkWindow(window); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A multi-day session is saved piece by piece; a client hanging up
	// must not leave it half written.
	if err := s.tracker.RecordSession(context.WithoutCancel(r.Context()), window, req.Project); err != nil {
		s.logger.Error().Err(err).Str("project", req.Project).Msg("Failed to record session")
		writeError(w, http.StatusInternalServerError, "Failed to record session")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"project": req.Project,
		"start":   req.Start,
		"end":     req.End,
	})
}

func (s *Server) handleTodayTime(w http.ResponseWriter, r *http.Request) {
	project, ok := projectParam(w, r)
	if !ok {
		return
	}

	total, err := s.tracker.TodayTime(r.Context(), project)
	if err != nil {
		s.logger.Error().Err(err).Str("project", project).Msg("Failed to compute today's time")
		writeError(w, http.StatusInternalServerError, "Failed to compute tracked time")
		return
	}

	writeJSON(w, http.StatusOK, newTimeResponse(project, s.tracker.Today(), total))
}

func (s *Server) handleTimeInWindow(w http.ResponseWriter, r *http.Request) {
	project, ok := projectParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	start, err := parseInstant(query.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := parseInstant(query.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}

	window := storage.TimeWindow{Start: start, End: end}
	if err := s.checkWindow(window); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := s.tracker.TimeInWindow(r.Context(), window, project)
	if err != nil {
		s.logger.Error().Err(err).Str("project", project).Msg("Failed to compute window time")
		writeError(w, http.StatusInternalServerError, "Failed to compute tracked time")
		return
	}

	writeJSON(w, http.StatusOK, newTimeResponse(project, window, total))
}

func (s *Server) handleDayLog(w http.ResponseWriter, r *http.Request) {
	project, ok := projectParam(w, r)
	if !ok {
		return
	}
	day := mux.Vars(r)["day"]
	if _, err := time.Parse(storage.DayLayout, day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}

	sessions, err := s.tracker.DayLog(r.Context(), project, day)
	if err != nil {
		s.logger.Error().Err(err).Str("project", project).Str("day", day).Msg("Failed to load day log")
		writeError(w, http.StatusInternalServerError, "Failed to load day log")
		return
	}
	if sessions == nil {
		sessions = []storage.TimeWindow{}
	}

	writeJSON(w, http.StatusOK, DayLogResponse{
		Project:  project,
		Day:      day,
		Sessions: sessions,
		Count:    len(sessions),
	})
}

func (s *Server) handlePendingUploads(w http.ResponseWriter, r *http.Request) {
	pending := map[string][]storage.TimeWindow{}
	if s.uploads != nil {
		pending = s.uploads.PendingAll()
	}

	total := 0
	for _, sessions := range pending {
		total += len(sessions)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":  pending,
		"projects": len(pending),
		"count":    total,
	})
}

func (s *Server) handleFlushUploads(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "Uploads are not configured")
		return
	}

	ran, err := s.uploads.TryDrain(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Manual upload flush failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	pending := 0
	for _, sessions := range s.uploads.PendingAll() {
		pending += len(sessions)
	}

	if !ran {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":  "in_progress",
			"pending": pending,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "flushed",
		"pending": pending,
	})
}

// checkWindow rejects windows the tracker would spend unbounded time on.
// Empty or reversed windows pass; the tracker treats them as no-ops.
func (s *Server) checkWindow(window storage.TimeWindow) error {
	if !window.Valid() {
		return nil
	}
	if window.Start < 0 {
		return errors.New("start must not be before the Unix epoch")
	}
	if window.End-window.Start > s.config.MaxWindow.Milliseconds() {
		return fmt.Errorf("window longer than %s", s.config.MaxWindow)
	}
	return nil
}

func projectParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	project := strings.TrimSpace(r.URL.Query().Get("project"))
	if project == "" {
		writeError(w, http.StatusBadRequest, "project query parameter is required")
		return "", false
	}
	return project, true
}

func newTimeResponse(project string, window storage.TimeWindow, total time.Duration) TimeResponse {
	b := tracking.SeparateTime(total)
	return TimeResponse{
		Project:      project,
		Start:        window.StartTime(),
		End:          window.EndTime(),
		Milliseconds: total.Milliseconds(),
		Breakdown:    b,
		Formatted:    b.String(),
	}
}

// parseInstant accepts epoch milliseconds or an RFC 3339 timestamp.
func parseInstant(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("required")
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, fmt.Errorf("expected epoch milliseconds or RFC 3339, got %q", value)
	}
	return t.UnixMilli(), nil
}
