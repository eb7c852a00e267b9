package redaction

import (
	"context"
	"log/slog"
)

// Handler scrubs messages and string attributes before passing records on.
type Handler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewHandler wraps next. A nil redactor returns next unchanged.
func NewHandler(next slog.Handler, r *Redactor) slog.Handler {
	if r == nil {
		return next
	}
	return &Handler{next: next, redactor: r}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactor.ScrubString(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.attr(a)
	}
	return &Handler{next: h.next.WithAttrs(scrubbed), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), redactor: h.redactor}
}

func (h *Handler) attr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		if h.redactor.SensitiveKey(a.Key) {
			return slog.String(a.Key, h.redactor.mask(v.String()))
		}
		return slog.String(a.Key, h.redactor.ScrubString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]any, len(group))
		for i, g := range group {
			attrs[i] = h.attr(g)
		}
		return slog.Group(a.Key, attrs...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.redactor.ScrubString(err.Error()))
		}
		return slog.Any(a.Key, h.redactor.Redact(v.Any()))
	default:
		return slog.Attr{Key: a.Key, Value: v}
	}
}
