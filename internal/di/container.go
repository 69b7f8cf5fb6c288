package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goliatone/go-lifecycle/internal/actions"
	lifecyclecmd "github.com/goliatone/go-lifecycle/internal/commands/lifecycle"
	"github.com/goliatone/go-lifecycle/internal/contentstore"
	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/invocations"
	"github.com/goliatone/go-lifecycle/internal/jobs"
	"github.com/goliatone/go-lifecycle/internal/locks"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/internal/logging/console"
	"github.com/goliatone/go-lifecycle/internal/logging/gologger"
	"github.com/goliatone/go-lifecycle/internal/logging/zaplogger"
	"github.com/goliatone/go-lifecycle/internal/metrics"
	"github.com/goliatone/go-lifecycle/internal/reporting"
	"github.com/goliatone/go-lifecycle/internal/runtimeconfig"
	"github.com/goliatone/go-lifecycle/internal/scheduler"
	"github.com/goliatone/go-lifecycle/internal/storage"
	"github.com/goliatone/go-lifecycle/internal/workflow"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// Container wires the lifecycle runtime from a runtimeconfig.Config.
type Container struct {
	Config runtimeconfig.Config

	loggerProvider interfaces.LoggerProvider
	syncLogger     func() error

	bunDB   *bun.DB
	ownsDB  bool
	content interfaces.SessionFactory

	handles  documents.HandleRepository
	requests documents.PendingRequestRepository
	schedule interfaces.Scheduler

	locker     locks.Locker
	redis      redis.UniversalClient
	ownsRedis  bool
	registry   *actions.Registry
	collabs    *actions.Collaborators
	reporter   interfaces.FaultReporter
	audit      jobs.AuditRecorder
	clock      func() time.Time
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	metrics    *metrics.Collectors

	commandRegistry lifecyclecmd.CommandRegistry
	cronRegistrar   lifecyclecmd.CronRegistrar

	invocations *invocations.Service
	firer       *invocations.Firer
	interpreter *workflow.Interpreter
	dispatcher  *jobs.Dispatcher
	handlers    *lifecyclecmd.HandlerSet
}

// Option mutates the container before it is finalised.
type Option func(*Container)

// WithLoggerProvider overrides the configured logger provider.
func WithLoggerProvider(provider interfaces.LoggerProvider) Option {
	return func(c *Container) {
		c.loggerProvider = provider
	}
}

// WithBunDB supplies an open database. The container does not close it.
func WithBunDB(db *bun.DB) Option {
	return func(c *Container) {
		c.bunDB = db
	}
}

// WithContentStore overrides the in-memory content store.
func WithContentStore(store interfaces.SessionFactory) Option {
	return func(c *Container) {
		c.content = store
	}
}

// WithRedisClient supplies the client used by the redis lock provider. The
// container does not close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
	}
}

// WithLocker overrides the configured lock provider.
func WithLocker(locker locks.Locker) Option {
	return func(c *Container) {
		c.locker = locker
	}
}

// WithActionRegistry replaces the built-in action library.
func WithActionRegistry(registry *actions.Registry) Option {
	return func(c *Container) {
		c.registry = registry
	}
}

// WithCollaborators replaces the optional collaborator set.
func WithCollaborators(collabs *actions.Collaborators) Option {
	return func(c *Container) {
		c.collabs = collabs
	}
}

// WithFaultReporter overrides the logger-backed fault reporter.
func WithFaultReporter(reporter interfaces.FaultReporter) Option {
	return func(c *Container) {
		c.reporter = reporter
	}
}

// WithAuditRecorder overrides the in-memory audit recorder.
func WithAuditRecorder(recorder jobs.AuditRecorder) Option {
	return func(c *Container) {
		c.audit = recorder
	}
}

// WithClock overrides time.Now across the runtime.
func WithClock(clock func() time.Time) Option {
	return func(c *Container) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMetricsRegistry registers collectors with reg instead of a private registry.
func WithMetricsRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(c *Container) {
		c.registerer = reg
		c.gatherer = gatherer
	}
}

// WithCommandRegistry registers lifecycle command handlers with reg and cron.
func WithCommandRegistry(reg lifecyclecmd.CommandRegistry, cron lifecyclecmd.CronRegistrar) Option {
	return func(c *Container) {
		c.commandRegistry = reg
		c.cronRegistrar = cron
	}
}

// NewContainer validates cfg and builds every runtime component.
func NewContainer(cfg runtimeconfig.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Container{
		Config: cfg,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	steps := []func() error{
		c.configureLogger,
		c.configureStorage,
		c.configureScheduler,
		c.configureLocks,
		c.configureMetrics,
		c.configureRuntime,
		c.configureCommands,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) configureLogger() error {
	if c.loggerProvider != nil || !c.Config.Features.Logger {
		return nil
	}
	cfg := c.Config.Logging
	switch cfg.Provider {
	case "gologger":
		provider, err := gologger.NewProvider(gologger.Config{
			Level:     cfg.Level,
			Format:    cfg.Format,
			AddSource: cfg.AddSource,
			Focus:     cfg.Focus,
		})
		if err != nil {
			return fmt.Errorf("di: configure go-logger: %w", err)
		}
		c.loggerProvider = provider
	case "zap":
		provider, err := zaplogger.NewProvider(zaplogger.Config{
			Level:     cfg.Level,
			Format:    cfg.Format,
			AddSource: cfg.AddSource,
			Writer:    os.Stderr,
		})
		if err != nil {
			return fmt.Errorf("di: configure zap: %w", err)
		}
		c.loggerProvider = provider
		c.syncLogger = provider.Sync
	default:
		opts := console.Options{Writer: os.Stderr}
		if level, ok := console.ParseLevel(cfg.Level); ok {
			opts.MinLevel = &level
		}
		c.loggerProvider = console.NewProvider(opts)
	}
	return nil
}

func (c *Container) configureStorage() error {
	cfg := c.Config.Storage
	if cfg.Driver != runtimeconfig.StorageDriverMemory && c.bunDB == nil {
		db, err := storage.Open(context.Background(), cfg)
		if err != nil {
			return err
		}
		c.bunDB = db
		c.ownsDB = true
	}

	logger := logging.StorageLogger(c.loggerProvider)
	if c.bunDB != nil && cfg.Driver != runtimeconfig.StorageDriverMemory {
		if cfg.AutoMigrate {
			applied, err := storage.Migrate(context.Background(), c.bunDB)
			if err != nil {
				return err
			}
			logger.Debug("storage.migrated", "applied", len(applied))
		}
		c.handles = documents.NewBunHandleRepository(c.bunDB)
		c.requests = documents.NewBunPendingRequestRepository(c.bunDB)
	} else {
		c.handles = documents.NewMemoryHandleRepository()
		c.requests = documents.NewMemoryPendingRequestRepository()
	}
	if c.content == nil {
		c.content = contentstore.New(contentstore.WithClock(c.clock))
	}
	logger.Info("storage.configured", "driver", cfg.Driver)
	return nil
}

func (c *Container) configureScheduler() error {
	cfg := c.Config.Scheduler
	opts := []scheduler.Option{
		scheduler.WithClock(c.clock),
		scheduler.WithDefaultMaxAttempts(cfg.MaxAttempts),
	}
	provider := "in-memory"
	if cfg.Provider == runtimeconfig.SchedulerProviderBun {
		if c.bunDB == nil {
			return runtimeconfig.ErrSchedulerRequiresSQLStorage
		}
		c.schedule = scheduler.NewBun(c.bunDB, opts...)
		provider = "bun"
	} else {
		c.schedule = scheduler.NewInMemory(opts...)
	}
	logging.SchedulerLogger(c.loggerProvider).Info("scheduler.configured",
		"provider", provider,
		"poll_interval", cfg.PollInterval.Std(),
		"workers", cfg.Workers,
	)
	return nil
}

func (c *Container) configureLocks() error {
	if c.locker != nil {
		return nil
	}
	cfg := c.Config.Locks
	if cfg.Provider != runtimeconfig.LocksProviderRedis {
		c.locker = locks.NewMemoryLocker()
		return nil
	}
	if c.redis == nil {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("di: connect redis %s: %w", cfg.RedisAddr, err)
		}
		c.redis = client
		c.ownsRedis = true
	}
	opts := []locks.RedisOption{locks.WithTTL(cfg.TTL.Std())}
	if cfg.Prefix != "" {
		opts = append(opts, locks.WithPrefix(cfg.Prefix))
	}
	c.locker = locks.NewRedisLocker(c.redis, opts...)
	return nil
}

func (c *Container) configureMetrics() error {
	if !c.Config.Metrics.Enabled {
		return nil
	}
	if c.registerer == nil {
		reg := prometheus.NewRegistry()
		c.registerer = reg
		c.gatherer = reg
	}
	collectors, err := metrics.New(c.registerer, c.Config.Metrics.Namespace)
	if err != nil {
		return fmt.Errorf("di: register metrics: %w", err)
	}
	c.metrics = collectors
	return nil
}

func (c *Container) configureRuntime() error {
	if c.registry == nil {
		c.registry = actions.DefaultRegistry()
	}
	if c.collabs == nil {
		if c.Config.Features.CoreArchiver {
			c.collabs = actions.DefaultCollaborators()
		} else {
			c.collabs = actions.NewCollaborators()
		}
	}
	if c.reporter == nil {
		c.reporter = reporting.NewLoggerReporter(logging.ModuleLogger(c.loggerProvider, "lifecycle.faults"))
	}
	if c.audit == nil {
		c.audit = jobs.NewInMemoryAuditRecorder()
	}

	definition, err := workflow.CompileDefinition(c.Config.Workflow)
	if err != nil {
		return err
	}

	c.invocations = invocations.NewService(c.schedule, c.registry,
		invocations.WithClock(c.clock),
		invocations.WithLogger(logging.InvocationsLogger(c.loggerProvider)),
	)

	interpreterOpts := []workflow.Option{
		workflow.WithDefinition(definition),
		workflow.WithRegistry(c.registry),
		workflow.WithCollaborators(c.collabs),
		workflow.WithLocker(c.locker),
		workflow.WithReporter(c.reporter),
		workflow.WithLogger(logging.WorkflowLogger(c.loggerProvider)),
		workflow.WithClock(c.clock),
		workflow.WithMaxAttempts(c.Config.Scheduler.MaxAttempts),
	}
	firerOpts := []invocations.FirerOption{
		invocations.WithFirerLogger(logging.InvocationsLogger(c.loggerProvider)),
	}
	dispatcherOpts := []jobs.Option{
		jobs.WithAuditRecorder(c.audit),
		jobs.WithLogger(logging.JobsLogger(c.loggerProvider)),
		jobs.WithClock(c.clock),
		jobs.WithPollInterval(c.Config.Scheduler.PollInterval.Std()),
		jobs.WithBatchSize(c.Config.Scheduler.BatchSize),
		jobs.WithWorkers(c.Config.Scheduler.Workers),
		jobs.WithReconcileOnStart(c.Config.Scheduler.ReconcileOnStart),
	}
	if c.metrics != nil {
		interpreterOpts = append(interpreterOpts, workflow.WithObserver(c.metrics))
		firerOpts = append(firerOpts,
			invocations.WithCounter(invocations.NewFireCounter(c.metrics.InvocationsFired)),
			invocations.WithObserver(c.metrics),
		)
		dispatcherOpts = append(dispatcherOpts, jobs.WithDispatchObserver(c.metrics))
	}

	interpreter, err := workflow.NewInterpreter(c.handles, c.requests, c.content, c.invocations, interpreterOpts...)
	if err != nil {
		return err
	}
	c.interpreter = interpreter
	c.firer = invocations.NewFirer(c.schedule, interpreter, firerOpts...)
	c.dispatcher = jobs.NewDispatcher(c.invocations, c.firer, dispatcherOpts...)
	return nil
}

func (c *Container) configureCommands() error {
	if !c.Config.Commands.Enabled {
		return nil
	}
	var pass lifecyclecmd.DuePass
	if c.Config.Features.Dispatcher {
		pass = c.dispatcher
	}
	opts := lifecyclecmd.Options{
		Registry:     c.commandRegistry,
		Cron:         c.cronRegistrar,
		Timeout:      c.Config.Commands.Timeout.Std(),
		DispatchCron: c.Config.Commands.DispatchCron,
	}
	if c.metrics != nil {
		opts.Observer = c.metrics
	}
	handlers, err := lifecyclecmd.RegisterLifecycleCommands(c.interpreter, pass, c.loggerProvider, opts)
	if err != nil {
		return err
	}
	c.handlers = handlers
	return nil
}

// Close stops the dispatcher and releases connections the container opened.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	var errs error
	if c.ownsRedis && c.redis != nil {
		errs = errors.Join(errs, c.redis.Close())
		c.redis = nil
	}
	if c.ownsDB && c.bunDB != nil {
		errs = errors.Join(errs, c.bunDB.Close())
		c.bunDB = nil
	}
	if c.syncLogger != nil {
		// Sync reports EINVAL on terminals; nothing actionable.
		_ = c.syncLogger()
	}
	return errs
}

// LoggerProvider returns the configured provider, nil when logging is disabled.
func (c *Container) LoggerProvider() interfaces.LoggerProvider { return c.loggerProvider }

// BunDB returns the SQL handle, nil for memory storage.
func (c *Container) BunDB() *bun.DB { return c.bunDB }

// ContentStore returns the content session factory.
func (c *Container) ContentStore() interfaces.SessionFactory { return c.content }

// Handles returns the handle repository.
func (c *Container) Handles() documents.HandleRepository { return c.handles }

// Requests returns the pending request repository.
func (c *Container) Requests() documents.PendingRequestRepository { return c.requests }

// Scheduler returns the schedule table.
func (c *Container) Scheduler() interfaces.Scheduler { return c.schedule }

// Locker returns the per-handle locker.
func (c *Container) Locker() locks.Locker { return c.locker }

// ActionRegistry returns the action library.
func (c *Container) ActionRegistry() *actions.Registry { return c.registry }

// Collaborators returns the optional collaborator set.
func (c *Container) Collaborators() *actions.Collaborators { return c.collabs }

// Metrics returns the collectors, nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Collectors { return c.metrics }

// Gatherer returns the registry holding the collectors, nil when metrics are disabled.
func (c *Container) Gatherer() prometheus.Gatherer { return c.gatherer }

// AuditRecorder returns the dispatcher audit recorder.
func (c *Container) AuditRecorder() jobs.AuditRecorder { return c.audit }

// Invocations returns the invocation service.
func (c *Container) Invocations() *invocations.Service { return c.invocations }

// Firer returns the invocation firer.
func (c *Container) Firer() *invocations.Firer { return c.firer }

// Interpreter returns the workflow interpreter.
func (c *Container) Interpreter() *workflow.Interpreter { return c.interpreter }

// Dispatcher returns the polling dispatcher.
func (c *Container) Dispatcher() *jobs.Dispatcher { return c.dispatcher }

// Handlers returns the command handlers, nil when commands are disabled.
func (c *Container) Handlers() *lifecyclecmd.HandlerSet { return c.handlers }

// Now reads the container clock.
func (c *Container) Now() time.Time { return c.clock() }
