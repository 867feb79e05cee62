package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Keys the HTTP layer stores on the request context.
const (
	TraceIDKey        = "trace_id"
	RequestIDKey      = "request_id"
	SourceKey         = "source"
	SubscriptionIDKey = "subscription_id"
)

// ContextLogger adds request scoped fields to log entries.
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{
		logger: logger,
	}
}

// For returns a logger carrying whichever known ids ctx holds.
func (cl *ContextLogger) For(ctx context.Context) *zap.Logger {
	var fields []zapcore.Field
	for _, key := range []string{TraceIDKey, RequestIDKey, SourceKey, SubscriptionIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, zap.String(key, v))
		}
	}
	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// LogRequest logs one served HTTP request. Server errors log at error
// level and client errors at warn.
func (cl *ContextLogger) LogRequest(ctx context.Context, method, path string, status int, elapsed time.Duration) {
	fields := []zapcore.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	l := cl.For(ctx)
	switch {
	case status >= 500:
		l.Error("http_request", fields...)
	case status >= 400:
		l.Warn("http_request", fields...)
	default:
		l.Info("http_request", fields...)
	}
}
