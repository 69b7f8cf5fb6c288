package zaplogger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// Config captures the options exposed by the zap adapter.
type Config struct {
	Level     string
	Format    string
	AddSource bool
	Writer    io.Writer
}

// Provider hands out named zap sugared loggers.
type Provider struct {
	root *zap.SugaredLogger
}

// NewProvider builds a zap core from cfg. Format accepts json or console.
func NewProvider(cfg Config) (*Provider, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "pretty":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("logging: unsupported zap format %q", cfg.Format)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	options := []zap.Option{}
	if cfg.AddSource {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer), level)
	return &Provider{root: zap.New(core, options...).Sugar()}, nil
}

// Wrap adapts an existing sugared logger.
func Wrap(logger *zap.SugaredLogger) *Provider {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Provider{root: logger}
}

// GetLogger satisfies interfaces.LoggerProvider.
func (p *Provider) GetLogger(name string) interfaces.Logger {
	if p == nil || p.root == nil {
		return logging.NoOp()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return &adapter{inner: p.root}
	}
	return &adapter{inner: p.root.Named(name)}
}

// Sync flushes buffered entries.
func (p *Provider) Sync() error {
	if p == nil || p.root == nil {
		return nil
	}
	return p.root.Sync()
}

type adapter struct {
	inner *zap.SugaredLogger
	ctx   context.Context
}

var (
	_ interfaces.Logger       = (*adapter)(nil)
	_ interfaces.FieldsLogger = (*adapter)(nil)
)

func (l *adapter) Trace(msg string, args ...any) { l.with().Debugw(msg, args...) }
func (l *adapter) Debug(msg string, args ...any) { l.with().Debugw(msg, args...) }
func (l *adapter) Info(msg string, args ...any)  { l.with().Infow(msg, args...) }
func (l *adapter) Warn(msg string, args ...any)  { l.with().Warnw(msg, args...) }
func (l *adapter) Error(msg string, args ...any) { l.with().Errorw(msg, args...) }

// Fatal logs at error level and does not exit.
func (l *adapter) Fatal(msg string, args ...any) { l.with().Errorw(msg, args...) }

func (l *adapter) WithFields(fields map[string]any) interfaces.Logger {
	if len(fields) == 0 {
		return l
	}
	return &adapter{inner: l.inner.With(sortedPairs(fields)...), ctx: l.ctx}
}

func (l *adapter) WithContext(ctx context.Context) interfaces.Logger {
	if ctx == nil {
		return l
	}
	return &adapter{inner: l.inner, ctx: ctx}
}

func (l *adapter) with() *zap.SugaredLogger {
	fields := logging.ContextFields(l.ctx)
	if len(fields) == 0 {
		return l.inner
	}
	return l.inner.With(sortedPairs(fields)...)
}

func sortedPairs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error", "fatal":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unsupported zap level %q", level)
	}
}
