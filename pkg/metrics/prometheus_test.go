package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordTick("BTCUSDT", true)
	r.RecordTick("BTCUSDT", true)
	r.RecordTick("BTCUSDT", false)
	r.RecordDetectorFire("pumpdump", "pump")
	r.RecordWindowSize("BTCUSDT", 500)

	if got := testutil.ToFloat64(r.ticks.WithLabelValues("BTCUSDT", "true")); got != 2 {
		t.Fatalf("expected 2 final ticks, got %v", got)
	}
	if got := testutil.ToFloat64(r.detectorFires.WithLabelValues("pumpdump", "pump")); got != 1 {
		t.Fatalf("expected 1 fire, got %v", got)
	}
	if got := testutil.ToFloat64(r.windowSize.WithLabelValues("BTCUSDT")); got != 500 {
		t.Fatalf("expected window 500, got %v", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	NewWithRegistry(prometheus.NewRegistry())
	NewWithRegistry(prometheus.NewRegistry())
}
