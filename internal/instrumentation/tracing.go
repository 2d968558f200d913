package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the gmailauth package.
const TracerName = "github.com/teemow/gmailauth"

// Span attribute keys.
const (
	// SpanAttrMode is the authorization mode (automated or manual).
	SpanAttrMode = "gmailauth.mode"

	// SpanAttrSession is the authorization session id.
	SpanAttrSession = "gmailauth.session_id"

	// SpanAttrReason is the failure kind of a finished attempt.
	SpanAttrReason = "gmailauth.reason"

	// SpanAttrRefreshToken records whether a refresh token was returned, never its value.
	SpanAttrRefreshToken = "gmailauth.refresh_token_present"
)

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartAuthorizationSpan starts the root span for one authorization attempt.
func StartAuthorizationSpan(ctx context.Context, mode, sessionID string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "authorize."+mode,
		trace.WithAttributes(
			attribute.String(SpanAttrMode, mode),
			attribute.String(SpanAttrSession, sessionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartExchangeSpan starts a client span around the token endpoint call.
func StartExchangeSpan(ctx context.Context, mode string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google.oauth.exchange",
		trace.WithAttributes(attribute.String(SpanAttrMode, mode)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
