package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetrack_sessions_recorded_total",
			Help: "Total single-day session windows written to a day log",
		},
		[]string{"outcome"}, // "merged" or "appended"
	)

	SessionsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timetrack_sessions_discarded_total",
			Help: "Session windows dropped because start >= end",
		},
	)

	SessionSplits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timetrack_session_splits_total",
			Help: "UTC midnight boundaries at which recorded sessions were split",
		},
	)

	TrackedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timetrack_tracked_seconds_total",
			Help: "Seconds of activity submitted to the tracker",
		},
	)

	DayLogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetrack_day_log_loads_total",
			Help: "Day logs loaded from storage",
		},
		[]string{"result"}, // "found", "missing", "malformed"
	)

	// Upload metrics
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetrack_uploads_total",
			Help: "Upload attempts to the remote sink",
		},
		[]string{"result"},
	)

	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timetrack_upload_duration_seconds",
			Help:    "Upload request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PendingUploads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timetrack_pending_uploads",
			Help: "Session windows waiting to be uploaded",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetrack_api_requests_total",
			Help: "Local API requests served",
		},
		[]string{"route", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SessionsRecorded,
		SessionsDiscarded,
		SessionSplits,
		TrackedSeconds,
		DayLogLoads,
		UploadsTotal,
		UploadDuration,
		PendingUploads,
		APIRequestsTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server, letting in-flight scrapes finish.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
