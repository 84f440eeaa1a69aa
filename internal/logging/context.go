package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	entityTypeKey ctxKey = iota
	entityIDKey
	actorIDKey
)

// WithEntityType returns a context with the entity type set.
func WithEntityType(ctx context.Context, et string) context.Context {
	return context.WithValue(ctx, entityTypeKey, et)
}

// WithEntityID returns a context with the entity ID set.
func WithEntityID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, entityIDKey, id)
}

// WithActorID returns a context with the acting user's ID set.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// EntityType extracts the entity type from the context, or "" if absent.
func EntityType(ctx context.Context) string {
	v, _ := ctx.Value(entityTypeKey).(string)
	return v
}

// EntityID extracts the entity ID from the context, or "" if absent.
func EntityID(ctx context.Context) string {
	v, _ := ctx.Value(entityIDKey).(string)
	return v
}

// ActorID extracts the actor ID from the context, or "" if absent.
func ActorID(ctx context.Context) string {
	v, _ := ctx.Value(actorIDKey).(string)
	return v
}

// WithIDs sets all three correlation IDs on the context at once.
func WithIDs(ctx context.Context, entityType, entityID, actorID string) context.Context {
	ctx = WithEntityType(ctx, entityType)
	ctx = WithEntityID(ctx, entityID)
	ctx = WithActorID(ctx, actorID)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if et := EntityType(ctx); et != "" {
		logger = logger.With(slog.String("entity_type", et))
	}
	if id := EntityID(ctx); id != "" {
		logger = logger.With(slog.String("entity_id", id))
	}
	if actor := ActorID(ctx); actor != "" {
		logger = logger.With(slog.String("actor_id", actor))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := EntityType(ctx); v != "" {
		r.AddAttrs(slog.String("entity_type", v))
	}
	if v := EntityID(ctx); v != "" {
		r.AddAttrs(slog.String("entity_id", v))
	}
	if v := ActorID(ctx); v != "" {
		r.AddAttrs(slog.String("actor_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
