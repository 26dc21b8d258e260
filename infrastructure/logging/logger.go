// Package logging provides structured logging with request/instance-scoped
// context, built on logrus the way the rest of the ambient stack is.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey ContextKey = "trace_id"
	// InstanceIDKey is the context key for the instance a log line concerns.
	InstanceIDKey ContextKey = "instance_id"
)

// Logger wraps logrus.Logger with additional functionality.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{
		Logger:  logger,
		service: service,
	}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables. Defaults to "info" and "text" (this runs on a desktop, not
// behind a log aggregator, so a human-readable default wins).
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "text"
	}
	return New(service, level, format)
}

// WithContext creates a new logger entry with context values attached.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if instanceID := ctx.Value(InstanceIDKey); instanceID != nil {
		entry = entry.WithField("instance_id", instanceID)
	}

	return entry
}

// WithInstance creates a new logger entry scoped to a single instance.
func (l *Logger) WithInstance(instanceID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service":     l.service,
		"instance_id": instanceID,
	})
}

// WithFields creates a new logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a new logger entry with an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// Context helper functions

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithInstanceID adds an instance ID to the context.
func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, InstanceIDKey, instanceID)
}

// GetInstanceID retrieves the instance ID from context.
func GetInstanceID(ctx context.Context) string {
	if instanceID, ok := ctx.Value(InstanceIDKey).(string); ok {
		return instanceID
	}
	return ""
}

// Domain-scoped structured logging helpers

// LogChildProcess logs a supervisor lifecycle transition for one instance.
func (l *Logger) LogChildProcess(ctx context.Context, instanceID, event string, fields map[string]interface{}) {
	logFields := logrus.Fields{
		"instance_id": instanceID,
		"event":       event,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	l.WithContext(ctx).WithFields(logFields).Info("child process event")
}

// LogDownload logs an artifact download outcome.
func (l *Logger) LogDownload(ctx context.Context, url string, bytesWritten int64, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"url":           url,
		"bytes_written": bytesWritten,
		"duration_ms":   duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("download failed")
	} else {
		entry.Info("download completed")
	}
}

// LogSchedulerDispatch logs a cron-triggered task dispatch.
func (l *Logger) LogSchedulerDispatch(ctx context.Context, taskID, instanceID, kind string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"task_id":     taskID,
		"instance_id": instanceID,
		"kind":        kind,
	})
	if err != nil {
		entry.WithError(err).Error("scheduled task failed")
	} else {
		entry.Info("scheduled task dispatched")
	}
}

// LogBackup logs a backup archive/restore outcome.
func (l *Logger) LogBackup(ctx context.Context, instanceID, operation string, sizeBytes int64, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"instance_id": instanceID,
		"operation":   operation,
		"size_bytes":  sizeBytes,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("backup operation failed")
	} else {
		entry.Info("backup operation completed")
	}
}

// LogDatabaseQuery logs a registry query.
func (l *Logger) LogDatabaseQuery(ctx context.Context, query string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"query":       query,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("database query failed")
	} else {
		entry.Debug("database query executed")
	}
}

// Fatal logs a fatal error and exits.
func (l *Logger) Fatal(ctx context.Context, message string, err error) {
	l.WithContext(ctx).WithError(err).Fatal(message)
}

// Global logger instance

var defaultLogger *Logger

// InitDefault initializes the default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, initializing a fallback if needed.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("serverforge", "info", "text")
	}
	return defaultLogger
}

// FormatDuration formats a duration in milliseconds for log messages.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
