package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
)

func TestFetchCollectsFailures(t *testing.T) {
	m := &fakeMarket{
		candles: map[string][]models.Candle{},
		failing: map[string]bool{"DDDUSDT": true},
		delay:   5 * time.Millisecond,
	}
	syms := []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT"}
	for _, s := range syms {
		m.candles[s] = series(10, 100)
	}
	f := NewCandleFetcher(m, 2, nil, nil)

	res, err := f.Fetch(context.Background(), syms, domrepo.Interval5m, 10, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Successes) != 4 || len(res.Failures) != 1 {
		t.Fatalf("expected 4/1, got %d/%d", len(res.Successes), len(res.Failures))
	}
	if res.Failures[0].Symbol != "DDDUSDT" {
		t.Fatalf("unexpected failure %v", res.Failures[0].Symbol)
	}
	for _, s := range res.Successes {
		if len(s.Candles) != 9 {
			t.Fatalf("%s: expected open candle dropped, got %d", s.Symbol, len(s.Candles))
		}
	}
	if m.peak > 2 {
		t.Fatalf("concurrency exceeded: %d", m.peak)
	}
}

func TestFetchKeepsOpenCandle(t *testing.T) {
	m := &fakeMarket{candles: map[string][]models.Candle{"BTCUSDT": series(5, 1)}}
	f := NewCandleFetcher(m, 2, nil, nil)
	res, err := f.Fetch(context.Background(), []string{"BTCUSDT"}, domrepo.Interval5m, 5, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Successes[0].Candles) != 5 {
		t.Fatalf("expected 5 candles, got %d", len(res.Successes[0].Candles))
	}
}

func TestFetchRejectsLargeLimit(t *testing.T) {
	m := &fakeMarket{}
	f := NewCandleFetcher(m, 2, nil, nil)
	_, err := f.Fetch(context.Background(), []string{"BTCUSDT"}, domrepo.Interval5m, 501, false)
	if !errors.Is(err, models.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if m.peak != 0 {
		t.Fatalf("expected no upstream requests")
	}
}
