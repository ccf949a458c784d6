package telemetry

import (
	"context"
	"log/slog"
)

type ctxKey string

const (
	ctxKeyLogger    ctxKey = "logger"
	ctxKeyRequestID ctxKey = "request_id"
)

// WithLogger stores a request-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// ScopedLogger returns the logger stored by WithLogger, if any.
func ScopedLogger(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(ctxKeyLogger).(*slog.Logger)
	return logger, ok && logger != nil
}

// FromContext returns the request-scoped logger, or fallback, or slog.Default.
func FromContext(ctx context.Context, fallback ...*slog.Logger) *slog.Logger {
	if logger, ok := ScopedLogger(ctx); ok {
		return logger
	}
	for _, l := range fallback {
		if l != nil {
			return l
		}
	}
	return slog.Default()
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request_id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
