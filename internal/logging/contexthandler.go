package logging

import (
	"context"
	"log/slog"
)

// ContextFunc supplies the attributes stamped onto every record, such as
// the current run id and track kind. It is called per record so the
// values track the live session.
type ContextFunc func() []slog.Attr

// ContextHandler decorates another handler with session attributes.
type ContextHandler struct {
	inner   slog.Handler
	context ContextFunc
}

// NewContextHandler wraps inner so each record carries the attributes
// returned by fn at emit time.
func NewContextHandler(inner slog.Handler, fn ContextFunc) *ContextHandler {
	return &ContextHandler{
		inner:   inner,
		context: fn,
	}
}

// Enabled defers to the wrapped handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle stamps the session attributes and forwards the record.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.context != nil {
		r.AddAttrs(h.context()...)
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs wraps the inner handler's WithAttrs result.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:   h.inner.WithAttrs(attrs),
		context: h.context,
	}
}

// WithGroup wraps the inner handler's WithGroup result.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:   h.inner.WithGroup(name),
		context: h.context,
	}
}
