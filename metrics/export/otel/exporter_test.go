package otel

import (
	"context"
	"errors"
	"testing"

	goTokens "github.com/MrEthical07/goTokens"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	snapshot goTokens.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goTokens.MetricsSnapshot { return f.snapshot }

func (f *fakeSource) AuditDropped() uint64 { return f.dropped }

func collect(t *testing.T, reader *metric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	values := make(map[string]int64)
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
	source := &fakeSource{
		snapshot: goTokens.MetricsSnapshot{
			Counters: map[goTokens.MetricID]uint64{
				goTokens.MetricLoginSuccess:    5,
				goTokens.MetricValidateFailure: 2,
			},
			Histograms: map[goTokens.MetricID][]uint64{
				goTokens.MetricValidateLatency: {3, 1, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 4,
	}

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	exporter, err := NewExporterFromSource(provider.Meter("test"), source)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() { _ = exporter.Close() }()

	values := collect(t, reader)

	if got := values["gotokens_login_success_total"]; got != 5 {
		t.Fatalf("login counter = %d, want 5", got)
	}
	if got := values["gotokens_validate_failure_total"]; got != 2 {
		t.Fatalf("failure counter = %d, want 2", got)
	}
	if got := values["gotokens_audit_dropped_total"]; got != 4 {
		t.Fatalf("dropped counter = %d, want 4", got)
	}

	// Buckets surface cumulatively.
	if got := values["gotokens_validate_latency_seconds_bucket_le_0_005"]; got != 3 {
		t.Fatalf("first bucket = %d, want 3", got)
	}
	if got := values["gotokens_validate_latency_seconds_bucket_le_inf"]; got != 5 {
		t.Fatalf("inf bucket = %d, want 5", got)
	}
	if got := values["gotokens_validate_latency_seconds_count"]; got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
}

func TestExporterTracksLiveSource(t *testing.T) {
	source := &fakeSource{
		snapshot: goTokens.MetricsSnapshot{
			Counters:   map[goTokens.MetricID]uint64{goTokens.MetricRefreshSuccess: 1},
			Histograms: map[goTokens.MetricID][]uint64{},
		},
	}

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	exporter, err := NewExporterFromSource(provider.Meter("test"), source)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() { _ = exporter.Close() }()

	if got := collect(t, reader)["gotokens_refresh_success_total"]; got != 1 {
		t.Fatalf("first collection = %d, want 1", got)
	}

	source.snapshot.Counters[goTokens.MetricRefreshSuccess] = 9

	if got := collect(t, reader)["gotokens_refresh_success_total"]; got != 9 {
		t.Fatalf("second collection = %d, want 9", got)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	if _, err := NewExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("nil meter = %v, want ErrNilMeter", err)
	}
	if _, err := NewExporterFromSource(provider.Meter("test"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source = %v, want ErrNilSource", err)
	}
}

func TestExporterCloseIdempotent(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	exporter, err := NewExporterFromSource(provider.Meter("test"), &fakeSource{
		snapshot: goTokens.MetricsSnapshot{
			Counters:   map[goTokens.MetricID]uint64{},
			Histograms: map[goTokens.MetricID][]uint64{},
		},
	})
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}

	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var nilExporter *Exporter
	if err := nilExporter.Close(); err != nil {
		t.Fatalf("nil Close = %v", err)
	}
}
