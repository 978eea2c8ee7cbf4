package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/application/service"
	"github.com/garyjia/vendor-lifecycle/internal/application/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/metrics"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/worker"
	"github.com/garyjia/vendor-lifecycle/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	notifier     port.Notifier
	metrics      *MetricsBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	workers *worker.WorkerManager

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	RFQ          port.RFQRepository
	Vendor       port.VendorRepository
	Counterparty port.CounterpartyRepository
	Comment      port.CommentRepository
	History      port.HistoryRepository
	Notification port.NotificationRepository
	Sequence     port.SequenceRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Notification service.NotificationService
	Registration service.RegistrationService
	Query        service.QueryService
	Export       service.ExportService
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

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing:
// database and repositories, metrics, the SMTP notifier, the dispatcher,
// services and the engine, then the notification worker.
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

	c.metrics = ProvideMetrics(&c.config.Metrics)

	notifier, err := ProvideNotifier(&c.config.SMTP, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	c.notifier = notifier

	if err := c.initApplication(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Dispatcher, services and workflow engine initialized")

	workers, err := ProvideWorkers(c.services.Notification, &c.config.Notification, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	if err := workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.workers = workers
	c.logger.Info("Workers started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = bundle.Conn
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.conn.DB, c.logger)
	if err != nil {
		_ = c.conn.Close()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initApplication() error {
	disp, err := ProvideDispatcher(c.collectors(), c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	services, err := ProvideServices(&ServiceDeps{
		Repos:        c.repositories,
		TxManager:    c.db,
		Notifier:     c.notifier,
		Dispatcher:   c.dispatcher,
		Metrics:      c.collectors(),
		SMTP:         &c.config.SMTP,
		Notification: &c.config.Notification,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Outbox:     services.Notification,
		Dispatcher: c.dispatcher,
		Workflow:   &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) collectors() *metrics.Metrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Metrics
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// waits for in-flight audit and metrics handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.conn == nil:
		set("database", false, "not initialized")
	default:
		if err := c.conn.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.workers != nil {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
	} else {
		set("workers", false, "not initialized")
	}

	set("dispatcher", c.dispatcher != nil, "")
	set("workflow", c.engine != nil, "")

	if c.repositories != nil {
		if pending, err := c.repositories.Notification.CountByStatus(context.Background(), entity.NotificationStatusFailed); err == nil {
			set("notifications", true, fmt.Sprintf("awaiting retry: %d", pending))
		}
	}

	return status
}

// Engine returns the lifecycle engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Metrics returns the collectors, or nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Metrics {
	return c.collectors()
}

// MetricsHandler serves the metrics registry, or returns nil when metrics are disabled.
func (c *Container) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return promhttp.HandlerFor(c.metrics.Registry, promhttp.HandlerOpts{})
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
