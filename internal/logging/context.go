package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	requestKey
	runKey
	loggerKey
)

// Correlation ids come from HTTP and MCP clients, so anything that would be
// rejected as a session id is left out of the log rather than trusted.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ContextFields returns the trace, session, request and run ids carried by
// ctx as log fields.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	for _, f := range []struct {
		key   ctxKey
		field string
	}{
		{sessionKey, "session.id"},
		{requestKey, "request.id"},
		{runKey, "run.id"},
	} {
		if id := idFrom(ctx, f.key); id != "" {
			fields = append(fields, zap.String(f.field, id))
		}
	}
	return fields
}

func withID(ctx context.Context, key ctxKey, id string) context.Context {
	if !idPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key ctxKey) string {
	id, _ := ctx.Value(key).(string)
	return id
}

// WithSessionID records the agent session in ctx. Empty or malformed ids
// leave ctx unchanged.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withID(ctx, sessionKey, sessionID)
}

// SessionIDFromContext returns the session id set by WithSessionID.
func SessionIDFromContext(ctx context.Context) string {
	return idFrom(ctx, sessionKey)
}

// WithRequestID records the HTTP request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withID(ctx, requestKey, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestKey)
}

// WithRunID records the agent run in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return withID(ctx, runKey, runID)
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by WithLogger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return NewNop()
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
