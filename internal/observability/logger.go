package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: redactSecrets}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// redactSecrets masks attributes whose key names a credential.
func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	for _, marker := range []string{"token", "api_key", "password", "secret", "dsn"} {
		if strings.Contains(key, marker) {
			return slog.String(attr.Key, "[REDACTED]")
		}
	}
	return attr
}

// NopLogger discards everything; components fall back to it when no logger is wired.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// EnsureTraceID returns ctx unchanged when it already carries a trace id.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return ctx, traceID
	}
	traceID := NewTraceID()
	return ContextWithTraceID(ctx, traceID), traceID
}
