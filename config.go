package lifecycle

import "github.com/goliatone/go-lifecycle/internal/runtimeconfig"

var (
	ErrStorageDriverUnknown         = runtimeconfig.ErrStorageDriverUnknown
	ErrStorageDSNRequired           = runtimeconfig.ErrStorageDSNRequired
	ErrSchedulerProviderUnknown     = runtimeconfig.ErrSchedulerProviderUnknown
	ErrSchedulerRequiresSQLStorage  = runtimeconfig.ErrSchedulerRequiresSQLStorage
	ErrSchedulerPollIntervalInvalid = runtimeconfig.ErrSchedulerPollIntervalInvalid
	ErrSchedulerWorkersInvalid      = runtimeconfig.ErrSchedulerWorkersInvalid
	ErrSchedulerBatchSizeInvalid    = runtimeconfig.ErrSchedulerBatchSizeInvalid
	ErrSchedulerMaxAttemptsInvalid  = runtimeconfig.ErrSchedulerMaxAttemptsInvalid
	ErrLocksProviderUnknown         = runtimeconfig.ErrLocksProviderUnknown
	ErrLocksRedisAddrRequired       = runtimeconfig.ErrLocksRedisAddrRequired
	ErrLocksTTLInvalid              = runtimeconfig.ErrLocksTTLInvalid
	ErrLoggingProviderRequired      = runtimeconfig.ErrLoggingProviderRequired
	ErrLoggingProviderUnknown       = runtimeconfig.ErrLoggingProviderUnknown
	ErrLoggingLevelInvalid          = runtimeconfig.ErrLoggingLevelInvalid
	ErrLoggingFormatInvalid         = runtimeconfig.ErrLoggingFormatInvalid
	ErrCommandsTimeoutInvalid       = runtimeconfig.ErrCommandsTimeoutInvalid
)

type (
	Config                   = runtimeconfig.Config
	StorageConfig            = runtimeconfig.StorageConfig
	SchedulerConfig          = runtimeconfig.SchedulerConfig
	LocksConfig              = runtimeconfig.LocksConfig
	LoggingConfig            = runtimeconfig.LoggingConfig
	MetricsConfig            = runtimeconfig.MetricsConfig
	WorkflowConfig           = runtimeconfig.WorkflowConfig
	WorkflowStateConfig      = runtimeconfig.WorkflowStateConfig
	WorkflowTransitionConfig = runtimeconfig.WorkflowTransitionConfig
	CommandsConfig           = runtimeconfig.CommandsConfig
	Features                 = runtimeconfig.Features
	Duration                 = runtimeconfig.Duration
)

func DefaultConfig() Config {
	return runtimeconfig.DefaultConfig()
}

// LoadConfig reads a TOML file over DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	return runtimeconfig.LoadFile(path)
}

// ParseConfig decodes TOML bytes over DefaultConfig and validates them.
func ParseConfig(data []byte) (Config, error) {
	return runtimeconfig.Parse(data)
}
