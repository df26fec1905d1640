package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/timetrack/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Tracker is the part of the session tracker the API serves.
type Tracker interface {
	RecordSession(ctx context.Context, window storage.TimeWindow, project string) error
	TimeInWindow(ctx context.Context, window storage.TimeWindow, project string) (time.Duration, error)
	TodayTime(ctx context.Context, project string) (time.Duration, error)
	Today() storage.TimeWindow
	DayLog(ctx context.Context, project, day string) ([]storage.TimeWindow, error)
}

// Uploads exposes the upload queue to operators.
type Uploads interface {
	PendingAll() map[string][]storage.TimeWindow
	// TryDrain reports false when a drain was already running.
	TryDrain(ctx context.Context) (bool, error)
}

// DefaultMaxWindow bounds recorded and queried windows when Config leaves
// MaxWindow unset.
const DefaultMaxWindow = 366 * 24 * time.Hour

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
	// MaxWindow is the longest window accepted for recording or querying.
	MaxWindow time.Duration
}

// Server is the local HTTP API used by editor integrations.
type Server struct {
	config   Config
	tracker  Tracker
	uploads  Uploads
	server   *http.Server
	router   *mux.Router
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a new API server. uploads may be nil when no remote sink
// is configured.
func NewServer(cfg Config, tracker Tracker, uploads Uploads, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = DefaultMaxWindow
	}

	s := &Server{
		config:  cfg,
		tracker: tracker,
		uploads: uploads,
		router:  router,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Projects are repository identifiers and may contain slashes, so they
	// travel as a query parameter rather than a path segment.
	s.router.HandleFunc("/api/sessions", s.handleRecordSession).Methods("POST")
	s.router.HandleFunc("/api/time/today", s.handleTodayTime).Methods("GET")
	s.router.HandleFunc("/api/time", s.handleTimeInWindow).Methods("GET")
	s.router.HandleFunc("/api/days/{day}", s.handleDayLog).Methods("GET")

	s.router.HandleFunc("/api/uploads/pending", s.handlePendingUploads).Methods("GET")
	s.router.HandleFunc("/api/uploads/flush", s.handleFlushUploads).Methods("POST")
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}
