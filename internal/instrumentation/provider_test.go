package instrumentation

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected no-op tracer when disabled")
	}

	// Recording on the no-op recorder must not panic
	provider.Metrics().RecordAuthorization(context.Background(), ModeManual, ResultFailure, "timeout", time.Second)

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	var console bytes.Buffer
	provider, err := NewProvider(ctx, Config{
		ServiceName:       "test-service",
		ServiceVersion:    "1.0.0",
		Enabled:           true,
		MetricsExporter:   ExporterStdout,
		TracingExporter:   ExporterStdout,
		TraceSamplingRate: 1.0,
		ConsoleWriter:     &console,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if provider.Metrics() == nil {
		t.Fatal("expected metrics to be non-nil")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected tracer to be non-nil")
	}

	_, span := StartAuthorizationSpan(ctx, ModeManual, "session-1")
	span.End()
	provider.Metrics().RecordAuthorization(ctx, ModeManual, ResultSuccess, "", time.Second)

	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("expected no error on shutdown, got %v", err)
	}

	out := console.String()
	if !strings.Contains(out, "authorize.manual") {
		t.Errorf("expected span in console output, got %q", out)
	}
	if !strings.Contains(out, "gmailauth_authorizations_total") {
		t.Errorf("expected metric in console output, got %q", out)
	}
}

func TestNewProvider_OTLPWithoutEndpoint(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		ServiceName:     "test-service",
		Enabled:         true,
		MetricsExporter: ExporterOTLP,
		TracingExporter: ExporterNone,
	})
	if err == nil {
		t.Fatal("expected error when OTLP endpoint is missing")
	}
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		ServiceName:     "test-service",
		Enabled:         true,
		MetricsExporter: "prometheus",
	})
	if err == nil {
		t.Fatal("expected error for unsupported metrics exporter")
	}
}
