// Package logs carries decisions made while processing requests back to the
// caller as data. Nothing in the processing path writes to a logger directly.
package logs

import (
	"context"
	"log/slog"
)

type PendingLog struct {
	Level   slog.Level
	Message string
	Err     error
	Attrs   []slog.Attr
}

func Debug(msg string, attrs ...slog.Attr) PendingLog {
	return PendingLog{Level: slog.LevelDebug, Message: msg, Attrs: attrs}
}

func Info(msg string, attrs ...slog.Attr) PendingLog {
	return PendingLog{Level: slog.LevelInfo, Message: msg, Attrs: attrs}
}

func Warn(msg string, attrs ...slog.Attr) PendingLog {
	return PendingLog{Level: slog.LevelWarn, Message: msg, Attrs: attrs}
}

func Error(msg string, err error, attrs ...slog.Attr) PendingLog {
	return PendingLog{Level: slog.LevelError, Message: msg, Err: err, Attrs: attrs}
}

// Emit writes pending logs in order.
func Emit(ctx context.Context, logger *slog.Logger, pending []PendingLog) {
	if logger == nil {
		return
	}
	for _, p := range pending {
		attrs := p.Attrs
		if p.Err != nil {
			attrs = append(append([]slog.Attr{}, attrs...), slog.String("error", p.Err.Error()))
		}
		logger.LogAttrs(ctx, p.Level, p.Message, attrs...)
	}
}
