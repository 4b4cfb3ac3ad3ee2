package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey    contextKey = "requestID"
	evaluationIDKey contextKey = "evaluationID"
)

// LevelTrace sits below DEBUG for per-value dumps
const LevelTrace = slog.LevelDebug - 4

var (
	mu     sync.RWMutex
	logger *slog.Logger
	output io.Writer = os.Stderr
)

func init() {
	logger = slog.New(NewCompactHandler(output, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Configure replaces the global logger. JSON output is meant for machines,
// the compact format for terminals.
func Configure(w io.Writer, level slog.Level, jsonOutput bool) {
	mu.Lock()
	defer mu.Unlock()

	output = w
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(NewCompactHandler(w, opts))
	}
}

// SetLevel changes the logging level, keeping the compact format
func SetLevel(level slog.Level) {
	mu.RLock()
	w := output
	mu.RUnlock()
	Configure(w, level, false)
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(level slog.Level) {
	mu.RLock()
	w := output
	mu.RUnlock()
	Configure(w, level, true)
}

// LevelFromVerbosity maps a named level or a -v count to a slog level.
// A non-empty name wins over the count.
func LevelFromVerbosity(name string, count int) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "":
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown verbosity %q", name)
	}

	switch {
	case count >= 2:
		return LevelTrace, nil
	case count == 1:
		return slog.LevelDebug, nil
	default:
		return slog.LevelInfo, nil
	}
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithEvaluationID tags every log line of one graph evaluation
func WithEvaluationID(ctx context.Context, evaluationID string) context.Context {
	return context.WithValue(ctx, evaluationIDKey, evaluationID)
}

// GetEvaluationID retrieves the evaluation ID from context
func GetEvaluationID(ctx context.Context) string {
	if id, ok := ctx.Value(evaluationIDKey).(string); ok {
		return id
	}
	return ""
}

// withCorrelation prepends the request and evaluation IDs found in ctx
func withCorrelation(ctx context.Context, args []any) []any {
	var prefix []any
	if requestID := GetRequestID(ctx); requestID != "" {
		prefix = append(prefix, "requestID", requestID)
	}
	if evaluationID := GetEvaluationID(ctx); evaluationID != "" {
		prefix = append(prefix, "evaluationID", evaluationID)
	}
	if prefix == nil {
		return args
	}
	return append(prefix, args...)
}

// Trace logs at TRACE level (very verbose, debug-time only)
func Trace(msg string, args ...any) {
	current().Log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs at TRACE level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	current().Log(ctx, LevelTrace, msg, withCorrelation(ctx, args)...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, withCorrelation(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, withCorrelation(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	current().WarnContext(ctx, msg, withCorrelation(ctx, args)...)
}

// Error logs at ERROR level (logical bugs that shouldn't happen)
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, withCorrelation(ctx, args)...)
}

// Fatal logs at ERROR level and exits (unrecoverable errors)
func Fatal(msg string, args ...any) {
	current().Error(msg, args...)
	os.Exit(1)
}
