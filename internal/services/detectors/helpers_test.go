package detectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("transport down")
	}
	f.sent = append(f.sent, n)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeNotifier) messages() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.sent...)
}

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore { return &memStore{docs: map[string][]byte{}} }

func (s *memStore) Load(_ context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.docs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (s *memStore) Save(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[key] = b
	s.mu.Unlock()
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func candle(open, close float64) models.Candle {
	hi, lo := open, close
	if close > open {
		hi, lo = close, open
	}
	return models.Candle{Open: dec(open), High: dec(hi), Low: dec(lo), Close: dec(close)}
}

func obs(symbol string, final bool, candles ...models.Candle) models.Observation {
	return models.Observation{Symbol: symbol, Candles: candles, IsFinal: final}
}
