package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/scheduler"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/infrastructure/metrics"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/internal/infrastructure/worker"
	"github.com/garyjia/approval-engine/pkg/database"
)

// Container owns every long-lived component. Start builds them in dependency
// order and Close tears them down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	startWorkers bool

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	notifiers  *NotifierBundle
	prometheus *metrics.Prometheus
	metrics    port.Metrics

	// Application
	dispatcher   dispatcher.Dispatcher
	notification service.NotificationService
	workflow     workflow.WorkflowEngine
	scheduler    *scheduler.Scheduler

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Template port.TemplateRepository
	Instance port.InstanceRepository
	Task     port.TaskRepository
	History  port.HistoryRepository
	Role     port.RoleRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures the container
type Option func(*Container)

// WithoutWorkers builds the scheduler but does not start the background
// worker; used by one-shot CLI commands.
func WithoutWorkers() Option {
	return func(c *Container) {
		c.startWorkers = false
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:       cfg,
		logger:       logger,
		startWorkers: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Metrics and notifier
// 3. Dispatcher, notification service, engine and scheduler
// 4. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternal(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	if err := c.initApplication(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Dispatcher, engine and scheduler initialized")

	if err := c.initWorkers(); err != nil {
		c.closeDispatcher()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized", zap.Bool("started", c.startWorkers))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close shuts components down in reverse start order: workers, so no tick
// runs against a closing database, then the dispatcher, which drains pending
// notifications, then the database.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	if c.cancel != nil {
		c.cancel()
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"workers", func() error {
			if c.workers == nil || !c.workers.IsRunning() {
				return nil
			}
			return c.workers.StopAll()
		}},
		{"dispatcher", func() error {
			if c.dispatcher == nil {
				return nil
			}
			return c.dispatcher.Close()
		}},
		{"database", func() error {
			if c.conn == nil {
				return nil
			}
			return c.conn.Close()
		}},
	}

	var errs []error
	for _, step := range steps {
		if err := step.run(); err != nil {
			c.logger.Error("Failed to close component", zap.String("component", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", step.name, err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	c.logger.Info("Container closed")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports per-component health. The lark entry is present only when
// Lark delivery is enabled.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		status.Overall = status.Overall && h.Healthy
	}
	notInitialized := ComponentHealth{Message: "not initialized"}

	if c.conn == nil {
		set("database", notInitialized)
	} else if err := c.conn.Ping(); err != nil {
		set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
	} else {
		set("database", ComponentHealth{Healthy: true})
	}

	if c.workers == nil {
		set("workers", notInitialized)
	} else {
		count := c.workers.GetWorkerCount()
		set("workers", ComponentHealth{
			Healthy: !c.startWorkers || count == 0 || c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", count),
		})
	}

	if c.notifiers != nil && c.notifiers.Messenger != nil {
		state := c.notifiers.Messenger.State().String()
		set("lark", ComponentHealth{Healthy: state != "open", Message: "breaker " + state})
	}

	if c.dispatcher == nil {
		set("dispatcher", notInitialized)
	} else {
		set("dispatcher", ComponentHealth{Healthy: true})
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExternal() error {
	c.prometheus, c.metrics = ProvideMetrics(&c.config.Metrics)

	notifiers, err := ProvideNotifier(&c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.notifiers = notifiers
	return nil
}

func (c *Container) initApplication() error {
	disp, err := ProvideDispatcher(c.config.Workflow.NotificationTimeout, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	c.notification = service.NewNotificationService(c.notifiers.Notifier, c.metrics, c.logger.Named("notification"))
	c.notification.Register(c.dispatcher)

	deps := &WorkflowDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Authorizer: ProvideAuthorizer(c.config, c.repositories),
		Metrics:    c.metrics,
		Logger:     c.logger,
	}

	engine, err := ProvideWorkflowEngine(deps)
	if err != nil {
		c.closeDispatcher()
		return err
	}
	c.workflow = engine

	sched, err := ProvideScheduler(deps)
	if err != nil {
		c.closeDispatcher()
		return err
	}
	c.scheduler = sched
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&c.config.SLA, c.scheduler, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if !c.startWorkers {
		return nil
	}
	if err := c.workers.StartAll(c.ctx); err != nil {
		_ = c.workers.StopAll()
		return err
	}
	return nil
}

func (c *Container) closeDispatcher() {
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
		c.dispatcher = nil
	}
}

func (c *Container) closeDatabase() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Migrator returns a migrator bound to the container's connection.
func (c *Container) Migrator() *database.Migrator {
	return database.NewMigrator(c.conn, c.logger)
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Scheduler returns the SLA scheduler.
func (c *Container) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

// MetricsHandler returns the Prometheus handler, or nil when metrics are disabled.
func (c *Container) MetricsHandler() http.Handler {
	if c.prometheus == nil {
		return nil
	}
	return c.prometheus.Handler()
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// HTTPLogger adapts the container's logger to the HTTP adapter's Logger.
func (c *Container) HTTPLogger() *KVLogger {
	return NewKVLogger(c.logger.Named("http"))
}

// KVLogger exposes a zap logger through the Info/Error key-value interfaces
// of the dispatcher and the HTTP server.
type KVLogger struct {
	sugar *zap.SugaredLogger
}

// NewKVLogger wraps logger
func NewKVLogger(logger *zap.Logger) *KVLogger {
	return &KVLogger{sugar: logger.Sugar()}
}

func (l *KVLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *KVLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}
