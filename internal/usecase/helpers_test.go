package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
)

type fakeMarket struct {
	mu       sync.Mutex
	infos    []models.SymbolInfo
	infoErr  error
	infoHits int
	candles  map[string][]models.Candle
	failing  map[string]bool
	inflight int
	peak     int
	delay    time.Duration
}

func (m *fakeMarket) ExchangeSymbols(context.Context) ([]models.SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoHits++
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return m.infos, nil
}

func (m *fakeMarket) Klines(_ context.Context, symbol string, _ domrepo.Interval, limit int) ([]models.Candle, error) {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.peak {
		m.peak = m.inflight
	}
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.failing[symbol] {
		return nil, fmt.Errorf("klines %s: upstream 500", symbol)
	}
	cs := m.candles[symbol]
	if len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	return append([]models.Candle(nil), cs...), nil
}

type fakeStream struct {
	mu      sync.Mutex
	symbols []string
	onTick  func(models.Tick)
	closed  bool
}

func (s *fakeStream) Subscribe(_ context.Context, symbols []string, _ domrepo.Interval, onTick func(models.Tick)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = symbols
	s.onTick = onTick
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) IsConnected() bool { return true }

func (s *fakeStream) push(t models.Tick) {
	s.mu.Lock()
	fn := s.onTick
	s.mu.Unlock()
	fn(t)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, n)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeNotifier) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeNotifier) messages() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.sent...)
}

var errTransport = errors.New("transport down")

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

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func candleAt(i int, price float64) models.Candle {
	p := dec(price)
	open := t0.Add(time.Duration(i) * 5 * time.Minute)
	return models.Candle{Open: p, High: p, Low: p, Close: p, OpenTime: open, CloseTime: open.Add(5*time.Minute - time.Millisecond)}
}

func series(n int, price float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = candleAt(i, price+float64(i))
	}
	return out
}

func priceObs(symbol string, price float64) models.Observation {
	return models.Observation{Symbol: symbol, Candles: []models.Candle{candleAt(0, price)}}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
