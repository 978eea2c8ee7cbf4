package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerManager starts registered workers together and stops them in reverse order
type WorkerManager struct {
	workers []Worker
	logger  *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		workers: make([]Worker, 0),
		logger:  logger,
	}
}

// Register adds a worker to be managed
func (m *WorkerManager) Register(worker Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, worker)
	m.logger.Info("Worker registered",
		zap.String("worker_name", worker.Name()),
		zap.Int("total_workers", len(m.workers)))
}

// StartAll starts all registered workers; one failing worker does not keep the others down
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("workers already running")
	}

	var workerCtx context.Context
	workerCtx, m.cancel = context.WithCancel(ctx)
	m.isRunning = true
	workers := append([]Worker(nil), m.workers...)
	m.mu.Unlock()

	m.logger.Info("Starting all workers", zap.Int("count", len(workers)))

	var failed []error
	for _, worker := range workers {
		if err := worker.Start(workerCtx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("worker_name", worker.Name()),
				zap.Error(err))
			failed = append(failed, fmt.Errorf("%s: %w", worker.Name(), err))
			continue
		}
		m.logger.Info("Worker started", zap.String("worker_name", worker.Name()))
	}

	return errors.Join(failed...)
}

// StopAll gracefully stops all workers
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		m.logger.Warn("Workers not running, nothing to stop")
		return nil
	}

	m.isRunning = false
	cancel := m.cancel
	workers := append([]Worker(nil), m.workers...)
	m.mu.Unlock()

	m.logger.Info("Stopping all workers", zap.Int("count", len(workers)))

	if cancel != nil {
		cancel()
	}

	var failed []error
	for i := len(workers) - 1; i >= 0; i-- {
		worker := workers[i]
		if err := worker.Stop(); err != nil {
			m.logger.Error("Failed to stop worker",
				zap.String("worker_name", worker.Name()),
				zap.Error(err))
			failed = append(failed, err)
		} else {
			m.logger.Info("Worker stopped", zap.String("worker_name", worker.Name()))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to stop %d workers: %w", len(failed), errors.Join(failed...))
	}

	m.logger.Info("All workers stopped successfully")
	return nil
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning returns whether workers are running
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}
