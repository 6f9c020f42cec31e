package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
channels:
  general: "group-general"
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Binance.WindowLimit != 500 {
		t.Fatalf("expected window limit 500, got %d", c.Binance.WindowLimit)
	}
	if c.Binance.FetchConcurrency != 2 {
		t.Fatalf("expected fetch concurrency 2, got %d", c.Binance.FetchConcurrency)
	}
	if len(c.Binance.Exclude) != 5 {
		t.Fatalf("expected 5 excluded symbols, got %v", c.Binance.Exclude)
	}
	if c.Detectors.Volatility.Rearm != 10*time.Minute {
		t.Fatalf("expected 10m rearm, got %s", c.Detectors.Volatility.Rearm)
	}
	if c.Detectors.BullishRun.Debounce != 500*time.Millisecond {
		t.Fatalf("expected 500ms debounce, got %s", c.Detectors.BullishRun.Debounce)
	}
	if !c.Detectors.Trend.Enabled {
		t.Fatalf("expected trend enabled by default")
	}
	if c.TrendChannel() != "group-general" || c.DigestChannel() != "group-general" {
		t.Fatalf("expected channel fallback to general")
	}
	if c.Queue.CommandsEnabled || c.Queue.RetryLimit != 3 || c.Queue.NotifyPrefix != "finwatch:notify" {
		t.Fatalf("unexpected queue defaults: %+v", c.Queue)
	}
	if c.Notifier.Burst != 20 || c.Notifier.PerSecond != 1 || c.Engine.MaxProvisionalRPS != 4 {
		t.Fatalf("unexpected throttle defaults: burst=%d rate=%v rps=%d",
			c.Notifier.Burst, c.Notifier.PerSecond, c.Engine.MaxProvisionalRPS)
	}
}

func TestParseRedisNotifier(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
notifier:
  type: redis
  per_second: 0
queue:
  commands_enabled: true
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Notifier.Type != "redis" || c.Notifier.PerSecond != 0 || !c.Queue.CommandsEnabled {
		t.Fatalf("unexpected config: %+v %+v", c.Notifier, c.Queue)
	}
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
detectors:
  trend:
    enabled: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Detectors.Trend.Enabled {
		t.Fatalf("expected trend disabled")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing channel": `binance: {interval: 5m}`,
		"bad interval":    minimalYAML + "binance:\n  interval: 7m\n",
		"window too big":  minimalYAML + "binance:\n  window_limit: 900\n",
		"kafka notifier":  minimalYAML + "notifier:\n  type: kafka\n",
		"webhook no url":  minimalYAML + "notifier:\n  type: webhook\n",
		"archive no host": minimalYAML + "archive:\n  enabled: true\n",
		"bad store":       minimalYAML + "store:\n  backend: s3\n",
		"bad notifier":    minimalYAML + "notifier:\n  type: smtp\n",
		"log topic":       minimalYAML + "log:\n  topic: finwatch.logs\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"BINANCE_API_KEY": "k",
		"SYMBOLS_EXCLUDE": "AAAUSDT,BBBUSDT",
		"KAFKA_BROKERS":   "b1:9092,b2:9092",
		"STORE_BACKEND":   "memory",
		"REDIS_ADDR":      "cache.local:6380",
	}
	c.applyEnv(func(k string) string { return env[k] })
	if c.Binance.APIKey != "k" {
		t.Fatalf("api key not applied")
	}
	if len(c.Binance.Exclude) != 2 || c.Binance.Exclude[1] != "BBBUSDT" {
		t.Fatalf("exclude not applied: %v", c.Binance.Exclude)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers not applied: %v", c.Kafka.Brokers)
	}
	if c.Redis.Host != "cache.local" || c.Redis.Port != 6380 {
		t.Fatalf("redis addr not applied: %s:%d", c.Redis.Host, c.Redis.Port)
	}
	if c.Store.Backend != "memory" {
		t.Fatalf("store backend not applied")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
