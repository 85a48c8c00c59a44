// Package worker runs the periodic background jobs of the engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerManager starts and stops background workers together
type WorkerManager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	workers []Worker
	// started holds the workers whose Start succeeded, in start order
	started []Worker
	running bool
	cancel  context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{logger: logger.Named("workers")}
}

// Register adds a worker to be managed
func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	m.workers = append(m.workers, w)
	n := len(m.workers)
	m.mu.Unlock()

	m.logger.Info("Worker registered", zap.String("worker_name", w.Name()), zap.Int("total_workers", n))
}

// StartAll starts every registered worker. A worker that fails to start is
// skipped and reported in the returned error; the others keep running.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.started = m.started[:0]

	var errs []error
	for _, w := range m.workers {
		log := m.logger.With(zap.String("worker_name", w.Name()))
		if err := w.Start(runCtx); err != nil {
			log.Error("Failed to start worker", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.started = append(m.started, w)
		log.Info("Worker started")
	}

	return errors.Join(errs...)
}

// StopAll stops the started workers in reverse order. It is a no-op when
// nothing is running.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	stopping := slices.Clone(m.started)
	m.started = nil
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()

	var errs []error
	for _, w := range slices.Backward(stopping) {
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %d workers: %w", len(errs), errors.Join(errs...))
	}

	m.logger.Info("Workers stopped", zap.Int("count", len(stopping)))
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
	return m.running
}
