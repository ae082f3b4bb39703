// Package logger provides structured logging on top of log/slog with
// correlation ID support.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Logger is a thin facade over slog. Plain methods log without context;
// the *Ctx variants attach the correlation ID carried by ctx.
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger writing JSON to stdout, or plain text when format is
// "console".
func New(level, format string) *Logger {
	handlerOpts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "console") {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}

	// Auto-inject correlation_id from context.
	handler = NewCorrelationHandler(handler)

	return &Logger{slog: slog.New(handler)}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(message(msg, args...))
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(message(msg, args...))
}

func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(message(msg, args...))
}

func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(message(msg, args...))
}

// Fatal logs the error and exits.
func (l *Logger) Fatal(err error) {
	l.slog.Error(err.Error())
	os.Exit(1)
}

func (l *Logger) DebugCtx(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, message(msg, args...))
}

func (l *Logger) InfoCtx(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, message(msg, args...))
}

func (l *Logger) WarnCtx(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, message(msg, args...))
}

func (l *Logger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, message(msg, args...))
}

func message(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
