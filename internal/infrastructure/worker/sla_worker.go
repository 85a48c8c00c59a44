package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/scheduler"
)

// Ticker runs one scheduler pass
type Ticker interface {
	Tick(ctx context.Context) scheduler.TickResult
}

// SLAWorkerConfig holds configuration for the SLA worker
type SLAWorkerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
}

// SLAStatus is a snapshot of the worker's progress
type SLAStatus struct {
	Running    bool
	Runs       int
	LastRun    time.Time
	LastResult scheduler.TickResult
}

// SLAWorker drives the scheduler on a fixed interval. The first tick waits for
// InitialDelay; overlapping ticks are skipped rather than queued.
type SLAWorker struct {
	config SLAWorkerConfig
	ticker Ticker
	logger *zap.Logger

	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	cron       *cron.Cron
	delay      *time.Timer
	isRunning  bool
	runs       int
	lastRun    time.Time
	lastResult scheduler.TickResult
}

// NewSLAWorker creates a new SLA worker
func NewSLAWorker(config SLAWorkerConfig, ticker Ticker, logger *zap.Logger) *SLAWorker {
	return &SLAWorker{
		config: config,
		ticker: ticker,
		logger: logger,
	}
}

// Start schedules the ticks
func (w *SLAWorker) Start(ctx context.Context) error {
	if w.config.Interval <= 0 {
		return fmt.Errorf("sla worker interval must be positive")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("sla worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	cronLogger := NewCronLogger(w.logger)
	w.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	w.cron.Schedule(cron.Every(w.config.Interval), cron.FuncJob(w.run))

	c := w.cron
	w.delay = time.AfterFunc(w.config.InitialDelay, func() {
		w.mu.Lock()
		if !w.isRunning {
			w.mu.Unlock()
			return
		}
		c.Start()
		w.mu.Unlock()
		w.run()
	})
	w.isRunning = true

	w.logger.Info("SLAWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("initial_delay", w.config.InitialDelay))
	return nil
}

// Stop cancels pending ticks and waits for a running one to finish
func (w *SLAWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.delay.Stop()
	w.cancel()
	c := w.cron
	w.mu.Unlock()

	<-c.Stop().Done()

	w.logger.Info("SLAWorker stopped", zap.Int("runs", w.Status().Runs))
	return nil
}

// Name returns the worker name for identification
func (w *SLAWorker) Name() string {
	return "SLAWorker"
}

// Status returns the latest tick summary
func (w *SLAWorker) Status() SLAStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return SLAStatus{
		Running:    w.isRunning,
		Runs:       w.runs,
		LastRun:    w.lastRun,
		LastResult: w.lastResult,
	}
}

func (w *SLAWorker) run() {
	w.mu.RLock()
	ctx := w.ctx
	w.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	result := w.ticker.Tick(ctx)

	w.mu.Lock()
	w.runs++
	w.lastRun = time.Now()
	w.lastResult = result
	w.mu.Unlock()
}
