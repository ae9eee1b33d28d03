// Package common: context-aware logging helpers built on top of the global
// Logger. ContextLogger carries a fixed field set (service, request id,
// device id, ...) through a request's lifetime without every call site
// re-specifying it.
package common

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents standard logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// LoggerConfig contains configuration for creating a logger.
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "json" or "text"
	TimeFormat string
}

// Configure applies config to the global Logger. Called once at process
// start from core.New.
func Configure(config LoggerConfig) {
	switch config.Level {
	case LogLevelDebug:
		Logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		Logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		Logger.SetLevel(logrus.ErrorLevel)
	case LogLevelFatal:
		Logger.SetLevel(logrus.FatalLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	if config.Format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: timeFormat, FullTimestamp: true})
	}
}

// ContextLogger carries a fixed field set across a sequence of log calls.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger creates a context-aware logger seeded with fields.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	baseFields := make(logrus.Fields, len(fields))
	for k, v := range fields {
		baseFields[k] = v
	}
	return &ContextLogger{logger: logger, fields: baseFields}
}

// WithField returns a copy of cl with key=value added.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a copy of cl with fields merged in.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: newFields}
}

// WithError returns a copy of cl with the error's message attached.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithFields(map[string]interface{}{"error": err.Error(), "error_type": fmt.Sprintf("%T", err)})
}

// WithRequestContext pulls the request id and device id off ctx, if present,
// matching the values the HTTP surface's device-id middleware stores there.
func (cl *ContextLogger) WithRequestContext(ctx context.Context) *ContextLogger {
	fields := map[string]interface{}{}
	if requestID, ok := ctx.Value(ctxKeyRequestID).(string); ok && requestID != "" {
		fields["request_id"] = requestID
	}
	if deviceID, ok := ctx.Value(ctxKeyDeviceID).(string); ok && deviceID != "" {
		fields["device_id"] = deviceID
	}
	return cl.WithFields(fields)
}

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyDeviceID  ctxKey = "device_id"
)

// WithRequestID attaches a request id to ctx for later retrieval by WithRequestContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// WithDeviceID attaches a device id to ctx for later retrieval by WithRequestContext.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ctxKeyDeviceID, deviceID)
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

// LogDuration logs an operation's duration when the returned func is called,
// meant to be used with defer: `defer common.LogDuration(logger, "sync.check")()`.
func LogDuration(logger *ContextLogger, operation string) func() {
	start := time.Now()
	return func() {
		logger.WithFields(map[string]interface{}{
			"operation":   operation,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("operation completed")
	}
}
