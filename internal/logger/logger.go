// Package logger sets up the process-wide slog JSON logger and carries
// request trace IDs through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates a JSON logger for the given service writing to stdout and
// installs it as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

var traceSeq atomic.Uint64

// NewTraceID returns "{prefix}-{unixMilli}-{seq}". seq is process-wide,
// so two requests in the same millisecond still get distinct IDs.
func NewTraceID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", prefix, now.UnixMilli(), traceSeq.Add(1))
}

// Attrs prepends the context trace ID (when set) to the key/value pairs kv.
// Usage: slog.Warn("msg", logger.Attrs(ctx, "series", key)...)
func Attrs(ctx context.Context, kv ...any) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return kv
	}
	return append([]any{slog.String("trace_id", tid)}, kv...)
}
