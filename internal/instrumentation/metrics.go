package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMode   = "mode"
	attrResult = "result"
	attrReason = "reason"
	attrPath   = "path"
	attrStatus = "status"
)

// Metrics records authorization metrics. The zero value and a nil *Metrics
// are valid no-op recorders.
type Metrics struct {
	authorizationsTotal   metric.Int64Counter
	authorizationDuration metric.Float64Histogram
	callbackRequestsTotal metric.Int64Counter
	tokenExchangesTotal   metric.Int64Counter
	tokenExchangeDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.authorizationsTotal, err = meter.Int64Counter(
		"gmailauth_authorizations_total",
		metric.WithDescription("Total number of authorization attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmailauth_authorizations_total counter: %w", err)
	}

	m.authorizationDuration, err = meter.Float64Histogram(
		"gmailauth_authorization_duration_seconds",
		metric.WithDescription("Time from starting an authorization to its outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 30, 60, 90, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmailauth_authorization_duration_seconds histogram: %w", err)
	}

	m.callbackRequestsTotal, err = meter.Int64Counter(
		"gmailauth_callback_requests_total",
		metric.WithDescription("Total number of requests received by the loopback callback listener"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmailauth_callback_requests_total counter: %w", err)
	}

	m.tokenExchangesTotal, err = meter.Int64Counter(
		"gmailauth_token_exchanges_total",
		metric.WithDescription("Total number of authorization code exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmailauth_token_exchanges_total counter: %w", err)
	}

	m.tokenExchangeDuration, err = meter.Float64Histogram(
		"gmailauth_token_exchange_duration_seconds",
		metric.WithDescription("Authorization code exchange duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmailauth_token_exchange_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordAuthorization records the outcome of one authorization attempt.
//
// Parameters:
//   - mode: ModeAutomated or ModeManual
//   - result: ResultSuccess or ResultFailure
//   - reason: failure kind, see ReasonLabel
//   - duration: time from start to terminal outcome
func (m *Metrics) RecordAuthorization(ctx context.Context, mode, result, reason string, duration time.Duration) {
	if m == nil || m.authorizationsTotal == nil || m.authorizationDuration == nil {
		return
	}

	m.authorizationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
		attribute.String(attrReason, ReasonLabel(reason)),
	))
	m.authorizationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
	))
}

// RecordCallbackRequest records a request served by the callback listener.
func (m *Metrics) RecordCallbackRequest(ctx context.Context, path string, statusCode int) {
	if m == nil || m.callbackRequestsTotal == nil {
		return
	}

	m.callbackRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrPath, CallbackPathLabel(path)),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	))
}

// RecordTokenExchange records one authorization code exchange.
func (m *Metrics) RecordTokenExchange(ctx context.Context, mode, result string, duration time.Duration) {
	if m == nil || m.tokenExchangesTotal == nil || m.tokenExchangeDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
	)
	m.tokenExchangesTotal.Add(ctx, 1, attrs)
	m.tokenExchangeDuration.Record(ctx, duration.Seconds(), attrs)
}
