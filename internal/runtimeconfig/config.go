package runtimeconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage, scheduler and lock provider names.
const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"

	SchedulerProviderMemory = "memory"
	SchedulerProviderBun    = "bun"

	LocksProviderMemory = "memory"
	LocksProviderRedis  = "redis"
)

var ErrStorageDriverUnknown = errors.New("lifecycle config: storage driver is invalid")
var ErrStorageDSNRequired = errors.New("lifecycle config: storage dsn is required for sql drivers")
var ErrSchedulerProviderUnknown = errors.New("lifecycle config: scheduler provider is invalid")

// ErrSchedulerRequiresSQLStorage keeps the durable schedule table next to the handles it fires against.
var ErrSchedulerRequiresSQLStorage = errors.New("lifecycle config: bun scheduler requires sql storage")
var ErrSchedulerPollIntervalInvalid = errors.New("lifecycle config: scheduler poll interval must be positive")
var ErrSchedulerWorkersInvalid = errors.New("lifecycle config: scheduler workers must be positive")
var ErrSchedulerBatchSizeInvalid = errors.New("lifecycle config: scheduler batch size must be zero or positive")
var ErrSchedulerMaxAttemptsInvalid = errors.New("lifecycle config: scheduler max attempts must be positive")
var ErrLocksProviderUnknown = errors.New("lifecycle config: locks provider is invalid")
var ErrLocksRedisAddrRequired = errors.New("lifecycle config: redis address is required for redis locks")
var ErrLocksTTLInvalid = errors.New("lifecycle config: lock ttl must be positive")
var ErrLoggingProviderRequired = errors.New("lifecycle config: logging provider is required when logging feature is enabled")
var ErrLoggingProviderUnknown = errors.New("lifecycle config: logging provider is invalid")
var ErrLoggingLevelInvalid = errors.New("lifecycle config: logging level is invalid")
var ErrLoggingFormatInvalid = errors.New("lifecycle config: logging format is invalid")
var ErrCommandsTimeoutInvalid = errors.New("lifecycle config: command timeout must be zero or positive")

// Config aggregates adapter bindings and feature flags for the lifecycle module.
type Config struct {
	Enabled   bool            `toml:"enabled"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Locks     LocksConfig     `toml:"locks"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Workflow  WorkflowConfig  `toml:"workflow"`
	Commands  CommandsConfig  `toml:"commands"`
	Features  Features        `toml:"features"`
}

// StorageConfig selects where handles and pending requests live.
type StorageConfig struct {
	// Driver is one of memory, sqlite or postgres.
	Driver       string `toml:"driver"`
	DSN          string `toml:"dsn"`
	AutoMigrate  bool   `toml:"auto_migrate"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// SchedulerConfig controls the schedule table and the dispatcher loop.
type SchedulerConfig struct {
	// Provider is memory or bun.
	Provider         string   `toml:"provider"`
	PollInterval     Duration `toml:"poll_interval"`
	BatchSize        int      `toml:"batch_size"`
	Workers          int      `toml:"workers"`
	MaxAttempts      int      `toml:"max_attempts"`
	ReconcileOnStart bool     `toml:"reconcile_on_start"`
	// LockFile guards against two dispatchers polling the same database file.
	LockFile string `toml:"lock_file"`
}

// LocksConfig selects the per-handle lock implementation.
type LocksConfig struct {
	// Provider is memory or redis.
	Provider  string   `toml:"provider"`
	RedisAddr string   `toml:"redis_addr"`
	RedisDB   int      `toml:"redis_db"`
	Prefix    string   `toml:"prefix"`
	TTL       Duration `toml:"ttl"`
}

// LoggingConfig captures provider-specific options for runtime logging.
type LoggingConfig struct {
	Provider  string   `toml:"provider"`
	Level     string   `toml:"level"`
	Format    string   `toml:"format"`
	AddSource bool     `toml:"add_source"`
	Focus     []string `toml:"focus"`
}

// MetricsConfig toggles Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// WorkflowConfig declares the handle state chart. Empty configs fall back to
// the built-in chart.
type WorkflowConfig struct {
	Name        string                     `toml:"name"`
	States      []WorkflowStateConfig      `toml:"states"`
	Transitions []WorkflowTransitionConfig `toml:"transitions"`
}

// WorkflowStateConfig declares one state.
type WorkflowStateConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Terminal    bool   `toml:"terminal"`
	Initial     bool   `toml:"initial"`
}

// WorkflowTransitionConfig declares one event edge.
type WorkflowTransitionConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	From        string `toml:"from"`
	To          string `toml:"to"`
}

// CommandsConfig captures optional command-layer behaviour.
type CommandsConfig struct {
	Enabled bool `toml:"enabled"`
	// Timeout bounds each command handler. Zero disables it.
	Timeout Duration `toml:"timeout"`
	// DispatchCron registers the due-invocation cron command when set.
	DispatchCron string `toml:"dispatch_cron"`
}

// Features toggles module functionality.
type Features struct {
	Logger bool `toml:"logger"`
	// CoreArchiver binds the core archive collaborator. Without it archive
	// falls back to deleting the unpublished variant.
	CoreArchiver bool `toml:"core_archiver"`
	Dispatcher   bool `toml:"dispatcher"`
}

// DefaultConfig returns defaults suited to a single-process deployment.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Storage: StorageConfig{
			Driver:       "memory",
			AutoMigrate:  true,
			MaxOpenConns: 1,
		},
		Scheduler: SchedulerConfig{
			Provider:         "memory",
			PollInterval:     Duration(time.Second),
			BatchSize:        100,
			Workers:          4,
			MaxAttempts:      3,
			ReconcileOnStart: true,
		},
		Locks: LocksConfig{
			Provider: "memory",
			Prefix:   "lifecycle:lock:",
			TTL:      Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Provider: "console",
			Level:    "info",
		},
		Metrics: MetricsConfig{
			Namespace: "lifecycle",
		},
		Commands: CommandsConfig{},
		Features: Features{
			CoreArchiver: true,
			Dispatcher:   true,
		},
	}
}

// Validate performs high-level consistency checks.
func (cfg Config) Validate() error {
	driver := normalize(cfg.Storage.Driver)
	switch driver {
	case StorageDriverMemory:
	case StorageDriverSQLite, StorageDriverPostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("%w: %s", ErrStorageDSNRequired, driver)
		}
	default:
		return fmt.Errorf("%w: %s", ErrStorageDriverUnknown, cfg.Storage.Driver)
	}

	switch normalize(cfg.Scheduler.Provider) {
	case SchedulerProviderMemory:
	case SchedulerProviderBun:
		if driver == StorageDriverMemory {
			return ErrSchedulerRequiresSQLStorage
		}
	default:
		return fmt.Errorf("%w: %s", ErrSchedulerProviderUnknown, cfg.Scheduler.Provider)
	}
	if cfg.Scheduler.PollInterval <= 0 {
		return ErrSchedulerPollIntervalInvalid
	}
	if cfg.Scheduler.Workers <= 0 {
		return ErrSchedulerWorkersInvalid
	}
	if cfg.Scheduler.BatchSize < 0 {
		return ErrSchedulerBatchSizeInvalid
	}
	if cfg.Scheduler.MaxAttempts <= 0 {
		return ErrSchedulerMaxAttemptsInvalid
	}

	switch normalize(cfg.Locks.Provider) {
	case LocksProviderMemory:
	case LocksProviderRedis:
		if strings.TrimSpace(cfg.Locks.RedisAddr) == "" {
			return ErrLocksRedisAddrRequired
		}
		if cfg.Locks.TTL <= 0 {
			return ErrLocksTTLInvalid
		}
	default:
		return fmt.Errorf("%w: %s", ErrLocksProviderUnknown, cfg.Locks.Provider)
	}

	if cfg.Commands.Timeout < 0 {
		return ErrCommandsTimeoutInvalid
	}

	if cfg.Features.Logger {
		provider := normalize(cfg.Logging.Provider)
		if provider == "" {
			return ErrLoggingProviderRequired
		}
		if !isSupportedProvider(provider) {
			return fmt.Errorf("%w: %s", ErrLoggingProviderUnknown, provider)
		}
		if level := strings.TrimSpace(cfg.Logging.Level); level != "" && !isSupportedLevel(level) {
			return fmt.Errorf("%w: %s", ErrLoggingLevelInvalid, level)
		}
		if provider != "console" {
			if format := strings.TrimSpace(cfg.Logging.Format); format != "" && !isSupportedFormat(format) {
				return fmt.Errorf("%w: %s", ErrLoggingFormatInvalid, format)
			}
		}
	}
	return nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func isSupportedProvider(provider string) bool {
	switch provider {
	case "console", "gologger", "zap":
		return true
	default:
		return false
	}
}

func isSupportedLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return true
	default:
		return false
	}
}

func isSupportedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "console", "pretty":
		return true
	default:
		return false
	}
}
