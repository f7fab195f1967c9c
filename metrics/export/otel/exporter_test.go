package otel

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tossapp/authkit"
)

type fakeSource struct {
	snapshot authkit.MetricsSnapshot
	dropped  uint64
}

func (s *fakeSource) MetricsSnapshot() authkit.MetricsSnapshot { return s.snapshot }
func (s *fakeSource) AuditDropped() uint64                     { return s.dropped }

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	values := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}
	return values
}

func TestExporterObservesSnapshot(t *testing.T) {
	m := authkit.NewMetrics(authkit.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(authkit.MetricLoginSuccess)
	m.Inc(authkit.MetricLoginSuccess)
	m.Observe(authkit.MetricLoginLatency, 2*time.Millisecond)

	source := &fakeSource{snapshot: m.Snapshot(), dropped: 5}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exporter, err := NewExporterFromSource(provider.Meter("authkit-test"), source)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	defer func() { _ = exporter.Close() }()

	values := collect(t, reader)

	if got := values["authkit_login_success_total"]; got != 2 {
		t.Fatalf("login success = %d, want 2", got)
	}
	if got := values["authkit_audit_dropped_total"]; got != 5 {
		t.Fatalf("audit dropped = %d, want 5", got)
	}
	if got := values["authkit_login_latency_seconds_bucket_le_0_005"]; got != 1 {
		t.Fatalf("latency bucket = %d, want 1", got)
	}
	if got := values["authkit_login_latency_seconds_count"]; got != 1 {
		t.Fatalf("latency count = %d, want 1", got)
	}
}

func TestExporterCloseStopsCollection(t *testing.T) {
	m := authkit.NewMetrics(authkit.MetricsConfig{Enabled: true})
	source := &fakeSource{snapshot: m.Snapshot()}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exporter, err := NewExporterFromSource(provider.Meter("authkit-test"), source)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		if len(scope.Metrics) != 0 {
			t.Fatalf("metrics still collected after close: %v", scope.Metrics)
		}
	}
}

func TestExporterNilArguments(t *testing.T) {
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("err = %v, want ErrNilMeter", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	if _, err := NewExporterFromSource(provider.Meter("authkit-test"), nil); err != ErrNilSource {
		t.Fatalf("err = %v, want ErrNilSource", err)
	}
}
