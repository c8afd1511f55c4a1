package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	roleAuth "github.com/MrEthical07/roleAuth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot roleAuth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() roleAuth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := roleAuth.MetricsSnapshot{
		Counters:   make(map[roleAuth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[roleAuth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// findPoint returns the value of the data point named name whose "le"
// attribute equals le. An empty le matches points without that attribute.
func findPoint(rm metricdata.ResourceMetrics, name, le string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, p := range points {
				v, ok := p.Attributes.Value(attribute.Key("le"))
				if (le == "" && !ok) || (ok && v.AsString() == le) {
					return p.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("roleauth-test")

	src := &fakeSource{
		snapshot: roleAuth.MetricsSnapshot{
			Counters: map[roleAuth.MetricID]uint64{
				roleAuth.MetricRoleSwitchSuccess:     3,
				roleAuth.MetricRoleSwitchCompensated: 1,
			},
			Histograms: map[roleAuth.MetricID][]uint64{
				roleAuth.MetricRoleSwitchLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	checks := []struct {
		name, le string
		want     int64
	}{
		{"roleauth_role_switch_success_total", "", 3},
		{"roleauth_role_switch_compensated_total", "", 1},
		{"roleauth_audit_dropped_total", "", 1},
		{"roleauth_role_switch_latency_seconds_bucket", "0.005", 1},
		{"roleauth_role_switch_latency_seconds_bucket", "0.1", 5},
		{"roleauth_role_switch_latency_seconds_bucket", "+Inf", 8},
		{"roleauth_role_switch_latency_seconds_count", "", 8},
	}
	for _, c := range checks {
		got, ok := findPoint(rm, c.name, c.le)
		if !ok {
			t.Fatalf("metric %s{le=%q} not collected", c.name, c.le)
		}
		if got != c.want {
			t.Fatalf("%s{le=%q} = %d, want %d", c.name, c.le, got, c.want)
		}
	}
	if _, ok := findPoint(rm, "roleauth_authenticate_latency_seconds_count", ""); ok {
		t.Fatal("histograms absent from the snapshot must not be observed")
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newTestMeter()
	meter := provider.Meter("roleauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("roleauth-test")

	src := &fakeSource{
		snapshot: roleAuth.MetricsSnapshot{
			Counters: map[roleAuth.MetricID]uint64{
				roleAuth.MetricLoginSuccess: 1,
			},
			Histograms: map[roleAuth.MetricID][]uint64{
				roleAuth.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[roleAuth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
