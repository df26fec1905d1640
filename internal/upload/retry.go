package upload

import (
	"time"

	"github.com/rs/zerolog"
)

// Triggerer starts a background drain.
type Triggerer interface {
	Trigger()
}

// RetryScheduler periodically triggers a drain so uploads that failed are
// retried without waiting for new activity.
type RetryScheduler struct {
	queue    Triggerer
	interval time.Duration
	logger   zerolog.Logger
	stopChan chan struct{}
}

// NewRetryScheduler creates a new retry scheduler
func NewRetryScheduler(queue Triggerer, interval time.Duration, logger zerolog.Logger) *RetryScheduler {
	return &RetryScheduler{
		queue:    queue,
		interval: interval,
		logger:   logger.With().Str("component", "retry-scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the retry scheduler. A non-positive interval disables it.
func (rs *RetryScheduler) Start() {
	if rs.interval <= 0 {
		rs.logger.Info().Msg("Upload retry scheduler disabled")
		return
	}
	go rs.run()
	rs.logger.Info().
		Dur("interval", rs.interval).
		Msg("Upload retry scheduler started")
}

// Stop stops the retry scheduler
func (rs *RetryScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("Upload retry scheduler stopped")
}

// run is the main scheduler loop
func (rs *RetryScheduler) run() {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rs.logger.Debug().Msg("Triggering scheduled upload drain")
			rs.queue.Trigger()
		case <-rs.stopChan:
			return
		}
	}
}
