// Package logger provides structured logging with automatic secret redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Workflow session logging (state changes, timeouts, aborts)
//   - Gateway and webhook call logging
//   - Automatic bot token and webhook URL redaction
//   - Contextual logging with session, user and thread fields
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	outputMu  sync.Mutex
	logOutput io.Writer = os.Stderr
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	DefaultLogger = slog.New(NewContextHandler(newBaseHandler(level, false)))
}

func newBaseHandler(level slog.Level, useJSON bool) slog.Handler {
	outputMu.Lock()
	out := logOutput
	outputMu.Unlock()

	opts := &slog.HandlerOptions{Level: level}
	if useJSON {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
// "trace" is accepted and treated as debug.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput redirects all subsequently configured loggers to w.
// Tests use it to capture log output.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	logOutput = w
	outputMu.Unlock()
	SetLevel(slog.LevelInfo)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(NewContextHandler(newBaseHandler(level, false)))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context fields attached.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context fields attached.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors such as a failed best-effort cleanup.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context fields attached.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context fields attached.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// Transition logs a workflow state change.
func Transition(ctx context.Context, from, to, event string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"from", from,
		"to", to,
		"event", event,
	)
	allAttrs = append(allAttrs, attrs...)
	DebugContext(ctx, "workflow transition", allAttrs...)
}

// GatewayError logs a failed call to the chat gateway.
func GatewayError(ctx context.Context, operation string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"operation", operation,
		"error", RedactSensitiveData(err.Error()),
	)
	allAttrs = append(allAttrs, attrs...)
	ErrorContext(ctx, "gateway call failed", allAttrs...)
}

var (
	// secretPatterns match credentials that may appear in URLs, headers or
	// error strings returned by the gateway.
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[MNO][A-Za-z0-9_-]{23,27}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,40}`), // bot tokens
		regexp.MustCompile(`(/api/webhooks/\d+/)[A-Za-z0-9_-]+`),                                 // webhook URLs
		regexp.MustCompile(`(Bot|Bearer)\s+[A-Za-z0-9._-]+`),                                     // auth headers
	}
)

// RedactSensitiveData removes tokens and webhook secrets from strings.
// Webhook URLs keep their id path segment; auth headers keep their scheme.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bot "):
				return "Bot [REDACTED]"
			case strings.HasPrefix(match, "Bearer "):
				return "Bearer [REDACTED]"
			case strings.HasPrefix(match, "/api/webhooks/"):
				sub := pattern.FindStringSubmatch(match)
				return sub[1] + "[REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
