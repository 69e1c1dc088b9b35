package rscope

import (
	"context"
	"log/slog"
)

// LogHandler decorates a slog.Handler so that records logged with a
// context (InfoContext and friends) carry the ambient request and
// session ids.
type LogHandler struct {
	inner slog.Handler
}

// NewLogHandler wraps h with request-scope attribute injection.
func NewLogHandler(h slog.Handler) *LogHandler {
	return &LogHandler{inner: h}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("requestId", id))
	}
	if id := SessionID(ctx); id != "" {
		r.AddAttrs(slog.String("sessionId", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{inner: h.inner.WithGroup(name)}
}
