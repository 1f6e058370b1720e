package logger

import (
	"context"
	log "log/slog"
)

type ctxKey string

const (
	// TraceIDKey is also the gin context key set by the trace middleware.
	TraceIDKey = "trace_id"
	SessionKey = "session_user"
)

// WithTrace returns ctx carrying a trace id.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

// WithSession tags everything logged under ctx with the viewer's id.
func WithSession(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey(SessionKey), userID)
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey(TraceIDKey)).(string)
	return id
}

// SessionUser is the viewer id set by WithSession, empty before auth.
func SessionUser(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey(SessionKey)).(string)
	return id
}

// ContextHandler adds trace and session attributes found in ctx.
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if ctx != nil {
		if traceID, ok := ctx.Value(ctxKey(TraceIDKey)).(string); ok {
			r.AddAttrs(log.String(TraceIDKey, traceID))
		}
		if userID, ok := ctx.Value(ctxKey(SessionKey)).(string); ok {
			r.AddAttrs(log.String(SessionKey, userID))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []log.Attr) log.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) log.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}
