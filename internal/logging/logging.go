// Package logging holds the slog plumbing shared by pipestream packages.
//
// Loggers are injected, never global. Every package accepts an optional
// *slog.Logger and scopes it once at construction with Component, so a
// nil logger silently discards. Only main configures output format,
// destination and levels, through ComponentFilterHandler.
//
// Logging stays at lifecycle boundaries (capture configured, payload
// consumed, store commit). Nothing logs per Read.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger, or a discard logger when it is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// Component scopes logger to a named component, appending any extra
// attributes. A nil logger yields a discard logger.
//
//	s.logger = logging.Component(cfg.Logger, "capture-store", "type", "file")
func Component(logger *slog.Logger, name string, args ...any) *slog.Logger {
	return Default(logger).With(append([]any{ComponentKey, name}, args...)...)
}
