package container

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/application/service"
	"github.com/garyjia/vendor-lifecycle/internal/application/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/external/email"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/metrics"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/repository"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/worker"
	"github.com/garyjia/vendor-lifecycle/migrations"
	"github.com/garyjia/vendor-lifecycle/pkg/database"
	"github.com/garyjia/vendor-lifecycle/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// MetricsBundle holds the collectors and the registry they are exposed from.
type MetricsBundle struct {
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// ProvideDatabase opens the database, applies pending migrations and wraps it in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
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
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	var source fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}
	if err := database.NewMigrator(conn, logger).RunMigrations(source); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		RFQ:          repository.NewRFQRepository(sqlDB, logger),
		Vendor:       repository.NewVendorRepository(sqlDB, logger),
		Counterparty: repository.NewCounterpartyRepository(sqlDB, logger),
		Comment:      repository.NewCommentRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		Sequence:     repository.NewSequenceRepository(sqlDB, logger),
	}, nil
}

// ProvideMetrics registers the service collectors plus Go runtime and process collectors.
// It returns nil when metrics are disabled.
func ProvideMetrics(cfg *MetricsConfig) *MetricsBundle {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsBundle{
		Metrics:  metrics.New(registry, cfg.Prefix),
		Registry: registry,
	}
}

// ProvideNotifier creates the SMTP notifier.
func ProvideNotifier(cfg *SMTPConfig, logger *zap.Logger) (port.Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("smtp config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	notifier, err := email.NewNotifier(email.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
	if err != nil {
		return nil, err
	}
	return notifier, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the audit log and metrics handlers.
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	kv := utils.NewKVLogger(logger)
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(kv))

	service.NewAuditLog(kv).Subscribe(d)
	if m != nil {
		d.SubscribeNamed(event.TypeTransitionCommitted, "metrics.transition", "counts committed transitions", m.HandleTransition)
		d.SubscribeNamed(event.TypeRFQRegistered, "metrics.registration", "counts registrations", m.HandleRegistration)
	}

	return d, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	TxManager    port.TransactionManager
	Notifier     port.Notifier
	Dispatcher   dispatcher.Dispatcher
	Metrics      *metrics.Metrics
	SMTP         *SMTPConfig
	Notification *NotificationConfig
	Logger       *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger)

	opts := []service.NotificationOption{}
	if deps.SMTP != nil {
		opts = append(opts, service.WithReviewers(deps.SMTP.Reviewers))
	}
	if n := deps.Notification; n != nil {
		opts = append(opts, service.WithRetryPolicy(n.MaxAttempts, n.BaseBackoff, n.MaxBackoff))
	}
	if deps.Metrics != nil {
		opts = append(opts, service.WithDeliveryObserver(deps.Metrics.ObserveDelivery))
	}
	notifications := service.NewNotificationService(deps.Repos.Notification, deps.Notifier, serviceLogger, opts...)

	return &ServiceBundle{
		Notification: notifications,
		Registration: service.NewRegistrationService(
			deps.Repos.RFQ,
			deps.Repos.Counterparty,
			deps.Repos.Comment,
			deps.Repos.History,
			deps.Repos.Sequence,
			deps.TxManager,
			notifications,
			deps.Dispatcher,
			serviceLogger,
		),
		Query: service.NewQueryService(
			deps.Repos.RFQ,
			deps.Repos.Vendor,
			deps.Repos.Counterparty,
			deps.Repos.Comment,
			deps.Repos.History,
		),
		Export: service.NewExportService(deps.Repos.Vendor, deps.Repos.RFQ, serviceLogger),
	}, nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Outbox     port.Outbox
	Dispatcher dispatcher.Dispatcher
	Workflow   *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the lifecycle engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(utils.NewKVLogger(deps.Logger)),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.Workflow != nil {
		opts = append(opts,
			workflow.WithRenewalWindow(deps.Workflow.RenewalWindowDays),
			workflow.WithLocation(deps.Workflow.Location),
		)
	}

	return workflow.NewEngine(workflow.Repositories{
		RFQs:           deps.Repos.RFQ,
		Vendors:        deps.Repos.Vendor,
		Counterparties: deps.Repos.Counterparty,
		Comments:       deps.Repos.Comment,
		History:        deps.Repos.History,
		Sequences:      deps.Repos.Sequence,
	}, deps.TxManager, deps.Outbox, opts...), nil
}

// ProvideWorkers creates the worker manager with the notification retry worker registered but not started.
func ProvideWorkers(processor worker.DueProcessor, cfg *NotificationConfig, logger *zap.Logger) (*worker.WorkerManager, error) {
	if processor == nil {
		return nil, fmt.Errorf("notification processor is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)
	manager.Register(worker.NewNotificationWorker(worker.NotificationWorkerConfig{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	}, processor, logger))

	return manager, nil
}
