// Package instrumentation provides OpenTelemetry instrumentation for gmailauth.
//
// The CLI is short-lived, so metrics and traces are pushed (OTLP) or printed
// (stdout) rather than scraped. Instrumentation is disabled by default; a
// disabled Provider hands out a no-op Metrics recorder so callers never need
// nil checks.
//
// # Metrics
//
//   - gmailauth_authorizations_total: authorization attempts by mode, result and reason
//   - gmailauth_authorization_duration_seconds: time from start to terminal outcome
//   - gmailauth_callback_requests_total: loopback callback requests by path and status
//   - gmailauth_token_exchanges_total: code-for-token exchanges by mode and result
//
// # Tracing
//
// One span per authorization attempt (authorize.<mode>) and one client span
// per token exchange (google.oauth.exchange).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: otlp or stdout (default: otlp)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: use plain HTTP for OTLP (default: false)
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 1.0)
//   - OTEL_SERVICE_NAME: Service name (default: gmailauth)
//   - AUDIT_LOGGING_ENABLED: log one audit record per attempt (default: true)
package instrumentation
