package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DueProcessor delivers outbox rows whose retry time has passed
type DueProcessor interface {
	ProcessDue(ctx context.Context, limit int) (sent, failed int, err error)
}

// NotificationWorkerConfig holds configuration for the notification worker
type NotificationWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	PollTimeout  time.Duration
}

// DefaultNotificationWorkerConfig returns default configuration
func DefaultNotificationWorkerConfig() NotificationWorkerConfig {
	return NotificationWorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    20,
		PollTimeout:  2 * time.Minute,
	}
}

// NotificationStats is a snapshot of the worker's counters
type NotificationStats struct {
	Polls     int
	Sent      int
	Failed    int
	LastPoll  time.Time
	LastError error
}

// NotificationWorker retries queued notifications whose delivery after commit failed
type NotificationWorker struct {
	config    NotificationWorkerConfig
	processor DueProcessor
	logger    *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     NotificationStats
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(config NotificationWorkerConfig, processor DueProcessor, logger *zap.Logger) *NotificationWorker {
	defaults := DefaultNotificationWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = defaults.PollTimeout
	}

	return &NotificationWorker{
		config:    config,
		processor: processor,
		logger:    logger,
	}
}

// Start begins the polling loop
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("notification worker already running")
	}

	var loopCtx context.Context
	loopCtx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("NotificationWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-progress poll to finish
func (w *NotificationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("NotificationWorker stopped",
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *NotificationWorker) Name() string {
	return "NotificationWorker"
}

// Stats returns a copy of the worker's counters
func (w *NotificationWorker) Stats() NotificationStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *NotificationWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll runs one batch
func (w *NotificationWorker) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, w.config.PollTimeout)
	defer cancel()

	sent, failed, err := w.processor.ProcessDue(pollCtx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Polls++
	w.stats.Sent += sent
	w.stats.Failed += failed
	w.stats.LastPoll = time.Now()
	w.stats.LastError = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Failed to process due notifications", zap.Error(err))
		return
	}
	if sent > 0 || failed > 0 {
		w.logger.Info("Processed due notifications", zap.Int("sent", sent), zap.Int("failed", failed))
	}
}
