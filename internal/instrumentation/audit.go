package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Attempt captures one authorization attempt for audit logging.
// It never holds the authorization code or any token.
type Attempt struct {
	Mode      string
	SessionID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Reason    string
	Error     string

	TraceID string
}

// NewAttempt creates a new Attempt with timing started.
// Call Complete() when the attempt reaches its outcome.
func NewAttempt(mode, sessionID string) *Attempt {
	return &Attempt{
		Mode:      mode,
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// WithSpanContext extracts the trace id from the current span.
func (a *Attempt) WithSpanContext(ctx context.Context) *Attempt {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		a.TraceID = span.SpanContext().TraceID().String()
	}
	return a
}

// Complete marks the attempt as finished and calculates its duration.
func (a *Attempt) Complete(success bool, reason string, err error) *Attempt {
	a.Duration = time.Since(a.StartTime)
	a.Success = success
	a.Reason = reason
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Result returns ResultSuccess or ResultFailure.
func (a *Attempt) Result() string {
	if a.Success {
		return ResultSuccess
	}
	return ResultFailure
}

// LogAttrs returns slog attributes for structured logging.
func (a *Attempt) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("mode", a.Mode),
		slog.String("session_id", a.SessionID),
		slog.Duration("duration", a.Duration),
		slog.Bool("success", a.Success),
	}
	if a.Reason != "" {
		attrs = append(attrs, slog.String("reason", a.Reason))
	}
	if a.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", a.TraceID))
	}
	if a.Error != "" {
		attrs = append(attrs, slog.String("error", a.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per authorization attempt.
type AuditLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditLogger creates an enabled AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger,
		enabled: config.Enabled,
	}
}

// LogAttempt logs a finished attempt. Failures are logged at warn level.
// A nil AuditLogger is a no-op.
func (al *AuditLogger) LogAttempt(a *Attempt) {
	if al == nil || !al.enabled {
		return
	}

	attrs := a.LogAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if a.Success {
		al.logger.Info("authorization_succeeded", args...)
	} else {
		al.logger.Warn("authorization_failed", args...)
	}
}
