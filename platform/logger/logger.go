// Package logger wraps slog and adds typed helpers for the log events
// the application emits on hot paths.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger extended with application-specific events.
type Logger struct {
	*slog.Logger
}

// New builds a logger for the given environment. Development logs
// human-readable text at debug level, everything else JSON at info.
func New(env string) *Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// HTTPRequest logs one served request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// AuthEvent logs a sign-up or sign-in attempt. The reason is only
// recorded for failures.
func (l *Logger) AuthEvent(event, email string, success bool, reason string) {
	if success {
		l.Info("auth_event",
			slog.String("event", event),
			slog.String("email", email),
			slog.Bool("success", success),
		)
		return
	}
	l.Warn("auth_event",
		slog.String("event", event),
		slog.String("email", email),
		slog.Bool("success", success),
		slog.String("reason", reason),
	)
}

// GraphRequest logs a call to the social Graph API. Token values are
// never logged.
func (l *Logger) GraphRequest(method, endpoint string, status int, latencyMs float64) {
	l.Debug("graph_request",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
	)
}

// UploadEvent logs photo upload lifecycle transitions.
func (l *Logger) UploadEvent(event string, uploadID string, args ...any) {
	attrs := []any{
		slog.String("event", event),
		slog.String("upload_id", uploadID),
	}
	l.Info("upload_event", append(attrs, args...)...)
}

// RateLimitExceeded logs a request rejected by the rate limiter.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
