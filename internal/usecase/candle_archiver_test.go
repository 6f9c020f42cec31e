package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinWatch/internal/domain/models"
)

type fakeArchive struct {
	mu      sync.Mutex
	batches [][]models.CandleRecord
	fails   int
}

func (a *fakeArchive) StoreBatch(_ context.Context, recs []models.CandleRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fails > 0 {
		a.fails--
		return errors.New("clickhouse unavailable")
	}
	a.batches = append(a.batches, append([]models.CandleRecord(nil), recs...))
	return nil
}

func (a *fakeArchive) Health(context.Context) error { return nil }
func (a *fakeArchive) Close() error                 { return nil }

func (a *fakeArchive) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, b := range a.batches {
		n += len(b)
	}
	return n
}

func rec(i int) models.CandleRecord {
	return models.CandleRecord{Symbol: "BTCUSDT", Interval: "5m", Candle: candleAt(i, 1)}
}

func TestArchiverBatchesBySize(t *testing.T) {
	arch := &fakeArchive{}
	a := NewCandleArchiver(ArchiverConfig{BatchSize: 3, BatchTimeout: time.Hour, BufferSize: 10}, arch, nil, nil)
	a.Start(context.Background())
	for i := 0; i < 6; i++ {
		a.Enqueue(rec(i))
	}
	if !waitFor(func() bool { return arch.total() == 6 }) {
		t.Fatalf("expected 6 archived, got %d", arch.total())
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestArchiverFlushesOnStopAndRetries(t *testing.T) {
	arch := &fakeArchive{fails: 1}
	a := NewCandleArchiver(ArchiverConfig{BatchSize: 100, BatchTimeout: time.Hour, BufferSize: 10}, arch, nil, nil)
	a.Start(context.Background())
	a.Enqueue(rec(1))
	a.Enqueue(rec(2))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if arch.total() != 2 {
		t.Fatalf("expected buffered candles flushed on stop, got %d", arch.total())
	}
}

func TestArchiverDropsWhenBufferFull(t *testing.T) {
	arch := &fakeArchive{}
	a := NewCandleArchiver(ArchiverConfig{BatchSize: 100, BatchTimeout: time.Hour, BufferSize: 2}, arch, nil, nil)
	for i := 0; i < 5; i++ {
		a.Enqueue(rec(i))
	}
	a.Start(context.Background())
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if arch.total() != 2 {
		t.Fatalf("expected only buffered candles archived, got %d", arch.total())
	}
}
