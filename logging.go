package havenmem

import (
	"context"
	"log/slog"
)

// discardHandler is a slog.Handler that drops every record. It backs the
// zero-value logger used when a caller does not supply one, matching the
// no-op-handler fallback pattern used by the litestore backend rather
// than special-casing a nil *slog.Logger at every call site.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
