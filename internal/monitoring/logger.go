package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger provides structured logging with domain helpers
type Logger struct {
	*slog.Logger
}

// ParseLevel maps a config string to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON logger on stdout
func NewLogger(level string) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, route, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"route", route,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs an error attached to an HTTP request
func (l *Logger) APIErrorLogger(err error, method, route, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"route", route,
		"ip", ip,
		"status_code", statusCode,
	)
}

// ExternalAPILogger logs calls to the hosting API
func (l *Logger) ExternalAPILogger(apiName, operation string, statusCode int, duration time.Duration, err error) {
	level := slog.LevelDebug
	attrs := []any{
		"api_name", apiName,
		"operation", operation,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", err.Error())
	}

	l.Log(context.Background(), level, "External API Call", attrs...)
}

// RunLogger logs the outcome of a free-rider run
func (l *Logger) RunLogger(runID, groupID string, members, flagged, diffFailures int, duration time.Duration, err error) {
	attrs := []any{
		"run_id", runID,
		"group_id", groupID,
		"members", members,
		"flagged", flagged,
		"diff_failures", diffFailures,
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		l.Error("Free-rider run failed", append(attrs, "error", err.Error())...)
		return
	}
	l.Info("Free-rider run completed", attrs...)
}

// PartialFetchLogger logs a commit whose diff stats could not be fetched.
// The commit still counts, without line or file totals.
func (l *Logger) PartialFetchLogger(repository, sha string, err error) {
	l.Warn("Commit diff unavailable",
		"event", "partial_fetch",
		"repository", repository,
		"sha", sha,
		"error", err,
	)
}

// CacheLogger logs report cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	l.Debug("Cache Operation",
		"operation", operation,
		"key", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// SystemLogger logs process-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).Round(time.Second).String(),
	)
}

var startTime = time.Now()
