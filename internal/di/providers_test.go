package di

import (
	"testing"

	"FinWatch/internal/repository"
	"FinWatch/internal/service/notify"
	"FinWatch/internal/usecase"
	"FinWatch/pkg/config"
	applogger "FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
)

func parseConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("channels:\n  general: g\n" + extra))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func TestProvideDetectorsOrderAndToggles(t *testing.T) {
	cfg := parseConfig(t, "detectors:\n  volatility:\n    enabled: false\n")
	n := notify.NewLogNotifier(applogger.Nop())
	store := repository.NewCacheDocumentStore(nil, "state")

	set := ProvideDetectors(cfg, n, store, metrics.Nop{}, applogger.Nop())
	var names []string
	for _, o := range set.Observers {
		names = append(names, o.Name())
	}
	want := []string{"pumpdump", "trend", "bullish_run"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if len(set.Loaders) != len(want) || set.Digest == nil {
		t.Fatalf("expected loaders for every detector and a digest")
	}
}

func TestProvideNotifierSelection(t *testing.T) {
	l := applogger.Nop()

	cfg := parseConfig(t, "notifier:\n  per_second: 0\n")
	n, err := ProvideNotifier(cfg, nil, nil, l)
	if err != nil {
		t.Fatalf("log notifier: %v", err)
	}
	if _, ok := n.(*notify.LogNotifier); !ok {
		t.Fatalf("expected log notifier, got %T", n)
	}

	cfg = parseConfig(t, "")
	n, err = ProvideNotifier(cfg, nil, nil, l)
	if err != nil {
		t.Fatalf("rate limited notifier: %v", err)
	}
	if _, ok := n.(*notify.RateLimited); !ok {
		t.Fatalf("expected rate limited notifier, got %T", n)
	}

	cfg = parseConfig(t, "notifier:\n  type: webhook\n  webhook_url: http://hook.local\n  per_second: 0\n")
	n, err = ProvideNotifier(cfg, nil, nil, l)
	if err != nil {
		t.Fatalf("webhook notifier: %v", err)
	}
	if _, ok := n.(*notify.WebhookNotifier); !ok {
		t.Fatalf("expected webhook notifier, got %T", n)
	}

	cfg = parseConfig(t, "notifier:\n  type: redis\n")
	if _, err := ProvideNotifier(cfg, nil, nil, l); err == nil {
		t.Fatalf("expected error for redis notifier without queue")
	}
}

func TestProvideDocumentStoreBackends(t *testing.T) {
	cfg := parseConfig(t, "store:\n  backend: memory\n")
	store, err := ProvideDocumentStore(cfg, nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*repository.CacheDocumentStore); !ok {
		t.Fatalf("expected cache document store, got %T", store)
	}

	cfg = parseConfig(t, "store:\n  backend: file\n  dir: "+t.TempDir()+"\n")
	store, err = ProvideDocumentStore(cfg, nil)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if _, ok := store.(*repository.FileDocumentStore); !ok {
		t.Fatalf("expected file document store, got %T", store)
	}
}

func TestOptionalInfrastructureIsNil(t *testing.T) {
	cfg := parseConfig(t, "")
	if p, err := ProvideKafkaProducer(cfg); err != nil || p != nil {
		t.Fatalf("expected no producer without brokers: %v", err)
	}
	if rc, err := ProvideRedisCache(cfg); err != nil || rc != nil {
		t.Fatalf("expected no redis for file store and log notifier: %v", err)
	}
	if ch, err := ProvideClickHouseClient(cfg); err != nil || ch != nil {
		t.Fatalf("expected no clickhouse when archive is disabled: %v", err)
	}
	if a := ProvideCandleArchiver(cfg, nil, metrics.Nop{}, applogger.Nop()); a != nil {
		t.Fatalf("expected no archiver without clickhouse")
	}
	if q := ProvideCommandQueue(cfg, nil, nil, applogger.Nop()); q != nil {
		t.Fatalf("expected no command queue by default")
	}
}

func TestProvideAlertRegistryRejectsBadGap(t *testing.T) {
	cfg := parseConfig(t, "")
	cfg.Detectors.Alerts.CloseGapPct = "abc"
	n := notify.NewLogNotifier(applogger.Nop())
	if _, err := ProvideAlertRegistry(cfg, usecase.NewPriceResolver(0), n, nil, metrics.Nop{}, applogger.Nop()); err == nil {
		t.Fatalf("expected error for malformed close gap")
	}
}
