// Package container provides dependency construction and lifecycle management
// for the approval engine.
package container

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/history"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/scheduler"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/config"
	infraLark "github.com/garyjia/approval-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-engine/internal/infrastructure/external/notify"
	"github.com/garyjia/approval-engine/internal/infrastructure/metrics"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/internal/infrastructure/worker"
	"github.com/garyjia/approval-engine/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and, when enabled, applies the embedded
// migrations before anything else touches it.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.NewMigrator(conn, logger).Up(); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Template: repository.NewTemplateRepository(db, logger),
		Instance: repository.NewInstanceRepository(db, logger),
		Task:     repository.NewTaskRepository(db, logger),
		History:  repository.NewHistoryRepository(db, logger),
		Role:     repository.NewRoleRepository(db, logger),
	}, nil
}

// ProvideMetrics returns the Prometheus collectors, or nil with a no-op
// port.Metrics when metrics are disabled.
func ProvideMetrics(cfg *config.MetricsConfig) (*metrics.Prometheus, port.Metrics) {
	if cfg == nil || !cfg.Enabled {
		return nil, port.NopMetrics{}
	}
	p := metrics.NewPrometheus()
	return p, p
}

// NotifierBundle holds the active notifier and, when Lark is enabled, its messenger.
type NotifierBundle struct {
	Notifier  port.Notifier
	Messenger *infraLark.Messenger
}

// ProvideNotifier selects Lark IM delivery when configured and falls back to
// the log notifier otherwise.
func ProvideNotifier(cfg *config.LarkConfig, logger *zap.Logger) (*NotifierBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark disabled, notifications go to the log")
		return &NotifierBundle{Notifier: notify.NewLogNotifier(logger)}, nil
	}

	larkCfg := infraLark.Config{
		AppID:               cfg.AppID,
		AppSecret:           cfg.AppSecret,
		ReceiveIDType:       cfg.ReceiveIDType,
		BreakerMaxRequests:  cfg.BreakerMaxRequests,
		BreakerInterval:     cfg.BreakerInterval,
		BreakerTimeout:      cfg.BreakerTimeout,
		BreakerFailureLimit: cfg.BreakerFailureLimit,
	}
	messenger := infraLark.NewMessenger(infraLark.NewSDKClient(larkCfg, logger), larkCfg, logger)

	return &NotifierBundle{
		Notifier:  infraLark.NewNotifier(messenger),
		Messenger: messenger,
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(handlerTimeout time.Duration, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(NewKVLogger(logger.Named("dispatcher"))),
	}
	if handlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(handlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ProvideAuthorizer returns the role-based authorizer, or nil when disabled.
func ProvideAuthorizer(cfg *config.Config, repos *RepositoryBundle) port.Authorizer {
	if cfg.Workflow.Authorizer != "roles" {
		return nil
	}
	return notify.NewRoleAuthorizer(repos.Instance, repos.Template, repos.Role, cfg.SLA.EscalationRoleName)
}

// WorkflowDeps holds dependencies for the engine and the scheduler.
type WorkflowDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Authorizer port.Authorizer
	Metrics    port.Metrics
	Logger     *zap.Logger
}

func (d *WorkflowDeps) validate() error {
	if d == nil {
		return fmt.Errorf("workflow deps are required")
	}
	if d.Config == nil {
		return fmt.Errorf("config is required")
	}
	if d.Repos == nil {
		return fmt.Errorf("repositories are required")
	}
	if d.TxManager == nil {
		return fmt.Errorf("transaction manager is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	opts := []workflow.EngineOption{
		workflow.WithAllowOverdueActions(deps.Config.Workflow.AllowOverdueActions),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.Authorizer != nil {
		opts = append(opts, workflow.WithAuthorizer(deps.Authorizer))
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewEngine(
		deps.Repos.Template,
		deps.Repos.Instance,
		deps.Repos.Task,
		history.NewLog(deps.Repos.History),
		deps.Repos.Role,
		deps.TxManager,
		deps.Logger.Named("engine"),
		opts...,
	), nil
}

// SchedulerConfig maps the sla section onto the scheduler's settings.
func SchedulerConfig(cfg config.SLAConfig) scheduler.Config {
	return scheduler.Config{
		SLAEnabled:          cfg.Enabled,
		EscalationEnabled:   cfg.EscalationEnabled,
		EscalationGrace:     time.Duration(cfg.EscalationGraceHours) * time.Hour,
		EscalationRole:      cfg.EscalationRoleName,
		EscalationExtension: time.Duration(cfg.EscalationExtensionHours) * time.Hour,
		Strategy:            scheduler.Strategy(cfg.EscalationStrategy),
		BatchSize:           cfg.SchedulerBatchSize,
		Workers:             cfg.Workers,
		MaxConflictRetries:  cfg.MaxConflictRetries,
	}
}

// ProvideScheduler creates the SLA and escalation scheduler.
func ProvideScheduler(deps *WorkflowDeps) (*scheduler.Scheduler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	var opts []scheduler.Option
	if deps.Dispatcher != nil {
		opts = append(opts, scheduler.WithDispatcher(deps.Dispatcher))
	}
	if deps.Metrics != nil {
		opts = append(opts, scheduler.WithMetrics(deps.Metrics))
	}

	return scheduler.New(
		SchedulerConfig(deps.Config.SLA),
		deps.Repos.Task,
		history.NewLog(deps.Repos.History),
		deps.Repos.Role,
		deps.TxManager,
		deps.Logger.Named("scheduler"),
		opts...,
	)
}

// ProvideWorkers registers the cron-driven SLA worker. The worker set is empty
// when the SLA scheduler is disabled.
func ProvideWorkers(cfg *config.SLAConfig, ticker worker.Ticker, logger *zap.Logger) (*worker.WorkerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sla config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)
	if !cfg.Enabled {
		logger.Info("SLA scheduler disabled, no SLA worker registered")
		return manager, nil
	}
	if ticker == nil {
		return nil, fmt.Errorf("scheduler is required when sla is enabled")
	}

	manager.Register(worker.NewSLAWorker(worker.SLAWorkerConfig{
		Interval:     cfg.Interval(),
		InitialDelay: cfg.InitialDelay,
	}, ticker, logger.Named("sla-worker")))
	return manager, nil
}
