package logger

import (
	"context"
	"testing"
	"time"
)

type chanPublisher struct {
	ch chan []AggregatedLogEntry
}

func (p *chanPublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.ch <- payload.([]AggregatedLogEntry)
	return nil
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &chanPublisher{ch: make(chan []AggregatedLogEntry, 1)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs",
		Service:        "finwatch",
		Publisher:      pub,
	})
	defer c.Close()

	c.AddLog("error", "send failed", map[string]interface{}{"symbol": "BTCUSDT"}, "a.go:1")
	c.AddLog("error", "send failed", map[string]interface{}{"symbol": "BTCUSDT"}, "a.go:1")
	c.AddLog("error", "store failed", nil, "b.go:2")

	select {
	case logs := <-pub.ch:
		if len(logs) != 2 {
			t.Fatalf("expected 2 unique entries, got %d", len(logs))
		}
		for _, e := range logs {
			if e.Message == "send failed" && e.Count != 2 {
				t.Fatalf("expected count 2, got %d", e.Count)
			}
			if e.Service != "finwatch" {
				t.Fatalf("expected service stamp, got %q", e.Service)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected flush on threshold")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	l := Nop().With("test")
	l.Info("hello", String("k", "v"), Float64("f", 1.5), Time("t", time.Now()))
	l.Error("boom", Error(context.Canceled))
}

func TestCloseFlushesRemainingAndDropsLater(t *testing.T) {
	pub := &chanPublisher{ch: make(chan []AggregatedLogEntry, 2)}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	c.AddLog("warn", "slow", nil, "a.go:1")
	c.Close()
	c.AddLog("warn", "late", nil, "a.go:2")
	c.Close()

	select {
	case logs := <-pub.ch:
		if len(logs) != 1 || logs[0].Message != "slow" {
			t.Fatalf("unexpected final batch %+v", logs)
		}
	default:
		t.Fatalf("expected final flush on close")
	}
	if len(pub.ch) != 0 {
		t.Fatalf("expected entries after close to be dropped")
	}
}

func TestLoggerFeedsCollectorWithComponent(t *testing.T) {
	pub := &chanPublisher{ch: make(chan []AggregatedLogEntry, 1)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	child := l.With("alerts")

	child.Info("ignored")
	child.Error("deliver failed", String("symbol", "BTCUSDT"), Error(nil))
	l.RemoveCollector()

	logs := <-pub.ch
	if len(logs) != 1 {
		t.Fatalf("expected only the error entry, got %+v", logs)
	}
	f := logs[0].Fields
	if f["component"] != "alerts" || f["symbol"] != "BTCUSDT" || f["error"] != "" {
		t.Fatalf("unexpected fields %v", f)
	}
}
