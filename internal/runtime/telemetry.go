package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const relayDurationMetric = "scribe.relay.duration"

// relayDurationBuckets (seconds) span a short clip through the 60s relay
// timeout; the SDK defaults are tuned for millisecond values.
var relayDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60}

// telemetry owns the providers installed as otel globals.
type telemetry struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics http.Handler
}

func setupTelemetry(cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	exporter, kind, err := newSpanExporter(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("span exporter: %w", err)
	}
	t := &telemetry{
		tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		),
	}

	reader, handler, err := newPrometheusReader()
	if err != nil {
		logger.Warn("prometheus exporter unavailable; metrics are not served", slog.String("error", err.Error()))
		t.meter = newMeterProvider(res)
	} else {
		t.meter = newMeterProvider(res, reader)
		t.metrics = handler
	}

	otel.SetTracerProvider(t.tracer)
	otel.SetMeterProvider(t.meter)
	logger.Info("telemetry initialized",
		slog.String("span_exporter", kind),
		slog.Bool("metrics", t.metrics != nil))
	return t, nil
}

// newSpanExporter picks OTLP when an endpoint is configured. Otherwise spans
// go to stderr because stdout carries the JSON log stream.
func newSpanExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		return exp, "stderr", err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	return exp, "otlp " + endpoint, err
}

// newPrometheusReader registers the otel exporter on a private registry with
// the Go and process collectors, so /metrics shows only this service.
func newPrometheusReader() (sdkmetric.Reader, http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	return exporter, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}

func newMeterProvider(res *resource.Resource, readers ...sdkmetric.Reader) *sdkmetric.MeterProvider {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: relayDurationMetric},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: relayDurationBuckets,
			}},
		)),
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	return sdkmetric.NewMeterProvider(opts...)
}

// Shutdown flushes both providers.
func (t *telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meter.Shutdown(ctx), t.tracer.Shutdown(ctx))
}
