package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestRelayDurationUsesSecondBuckets(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := newMeterProvider(resource.Empty(), reader)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	hist, err := mp.Meter("test").Float64Histogram(relayDurationMetric)
	if err != nil {
		t.Fatal(err)
	}
	hist.Record(ctx, 12.5)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != relayDurationMetric {
				continue
			}
			data, ok := m.Data.(metricdata.Histogram[float64])
			if !ok || len(data.DataPoints) != 1 {
				t.Fatalf("unexpected data %T", m.Data)
			}
			if !slices.Equal(data.DataPoints[0].Bounds, relayDurationBuckets) {
				t.Fatalf("unexpected bounds %v", data.DataPoints[0].Bounds)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("duration histogram not collected")
	}
}

func TestPrometheusHandlerServesServiceMetrics(t *testing.T) {
	ctx := context.Background()
	reader, handler, err := newPrometheusReader()
	if err != nil {
		t.Fatalf("prometheus reader: %v", err)
	}
	mp := newMeterProvider(resource.Empty(), reader)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	counter, err := mp.Meter("test").Int64Counter("scribe.relay.requests")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(ctx, 3)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"scribe_relay_requests", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
