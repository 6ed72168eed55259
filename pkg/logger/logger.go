// Package logger wraps log/slog with the configuration and context
// helpers used across ovpn-manager. It stays a thin layer: components
// receive a *Logger and log through the standard slog API plus a few
// domain helpers.
package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
)

// Logger wraps slog.Logger with domain-specific helpers while staying thin.
type Logger struct {
	*slog.Logger
	config Config
}

// Level represents the logging level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents the log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds configuration for the logger.
type Config struct {
	Level      Level  `mapstructure:"level" yaml:"level" json:"level"`
	Format     Format `mapstructure:"format" yaml:"format" json:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source" json:"add_source"`
	Component  string `mapstructure:"component" yaml:"component" json:"component"`
	Version    string `mapstructure:"version" yaml:"version" json:"version"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format" json:"time_format"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Component:  "ovpn-manager",
		Version:    "unknown",
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the provided configuration.
func New(config Config) *Logger {
	level := parseLevel(config.Level)
	handler := createHandler(config, level)

	return &Logger{
		Logger: slog.New(handler),
		config: config,
	}
}

// NewDevelopment creates a logger optimized for development.
func NewDevelopment(component string) *Logger {
	return New(Config{
		Level:      LevelDebug,
		Format:     FormatText,
		AddSource:  true,
		Component:  component,
		Version:    "dev",
		TimeFormat: time.Kitchen,
	})
}

// NewProduction creates a logger optimized for production.
func NewProduction(component, version string) *Logger {
	return New(Config{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Component:  component,
		Version:    version,
		TimeFormat: time.RFC3339,
	})
}

// Context keys for structured logging.
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	InstanceKey  contextKey = "instance"
	ClientKey    contextKey = "client"
	OperationKey contextKey = "operation"
)

// With returns a new logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithComponent returns a logger scoped to a sub-component.
func (l *Logger) WithComponent(name string) *Logger {
	cfg := l.config
	cfg.Component = name
	return &Logger{
		Logger: l.Logger.With(slog.String("component", name)),
		config: cfg,
	}
}

// WithContext extracts logging context and returns a scoped logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := extractContextAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}

	return &Logger{
		Logger: l.Logger.With(attrsToAny(attrs)...),
		config: l.config,
	}
}

// Unwrap returns the underlying slog.Logger for direct access.
func (l *Logger) Unwrap() *slog.Logger {
	return l.Logger
}

// ErrorCtx logs an error with automatic context enrichment. Command
// failures get their exit code and stderr attached as attributes.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, err error, args ...any) {
	attrs := []any{slog.String("error", err.Error())}

	var cmdErr *apperrors.CommandError
	if errors.As(err, &cmdErr) {
		attrs = append(attrs,
			slog.Int("exit_code", cmdErr.ExitCode),
			slog.String("stderr", cmdErr.Stderr),
		)
	}

	attrs = append(attrs, args...)
	l.WithContext(ctx).Error(msg, attrs...)
}

// HTTPRequest logs an HTTP request/response with level selected by status.
func (l *Logger) HTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, args ...any) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}

	attrs := []any{
		slog.String("http_method", method),
		slog.String("http_path", path),
		slog.Int("http_status", status),
		slog.Duration("duration_ms", duration),
	}
	attrs = append(attrs, args...)

	msg := fmt.Sprintf("%s %s %d", method, path, status)
	l.WithContext(ctx).Log(ctx, level, msg, attrs...)
}

// Command logs an external command invocation at debug level.
func (l *Logger) Command(ctx context.Context, name string, args []string, duration time.Duration) {
	l.WithContext(ctx).Debug("external command",
		slog.String("command", name),
		slog.Any("args", args),
		slog.Duration("duration_ms", duration))
}

// Helper functions

func parseLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(config Config, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	switch config.Format {
	case FormatText:
		return tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: config.TimeFormat,
			AddSource:  config.AddSource,
		})
	default:
		return slog.NewJSONHandler(os.Stdout, opts)
	}
}

func extractContextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	for _, key := range []contextKey{RequestIDKey, InstanceKey, ClientKey, OperationKey} {
		if val, ok := ctx.Value(key).(string); ok && val != "" {
			attrs = append(attrs, slog.String(string(key), val))
		}
	}

	return attrs
}

func attrsToAny(attrs []slog.Attr) []any {
	result := make([]any, len(attrs))
	for i, attr := range attrs {
		result[i] = attr
	}
	return result
}

// Context helper functions

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithInstance returns a context carrying the instance name.
func WithInstance(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, InstanceKey, name)
}

// WithClient returns a context carrying the client name.
func WithClient(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ClientKey, name)
}

// WithOperation returns a context carrying the operation name.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(RequestIDKey).(string); ok {
		return val
	}
	return ""
}
