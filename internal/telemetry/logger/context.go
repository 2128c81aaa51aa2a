package logger

import "context"

type contextKey string

const (
	loggerKey    contextKey = "kvs.logger"
	connIDKey    contextKey = "kvs.conn_id"
)

// WithLogger attaches l to ctx.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger attached to ctx, or Default() if none.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithConnID attaches a per-connection correlation ID to ctx.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// ConnIDFromContext extracts the connection ID attached to ctx, if any.
func ConnIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(connIDKey).(string); ok {
		return id
	}
	return ""
}

// L returns the logger for ctx, enriched with its connection ID.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if connID := ConnIDFromContext(ctx); connID != "" {
		l = l.With("conn_id", connID)
	}
	return l
}
