package repository

import (
	"context"

	"FinWatch/internal/domain/models"
)

// MarketData is the REST side of the exchange.
type MarketData interface {
	ExchangeSymbols(ctx context.Context) ([]models.SymbolInfo, error)
	Klines(ctx context.Context, symbol string, interval Interval, limit int) ([]models.Candle, error)
}

// KlineStream pushes kline ticks for a set of symbols.
type KlineStream interface {
	Subscribe(ctx context.Context, symbols []string, interval Interval, onTick func(models.Tick)) error
	Close() error
	IsConnected() bool
}

// Notifier delivers a message and returns an opaque reference to it.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) (string, error)
}

// DocumentStore persists one JSON document per key.
type DocumentStore interface {
	Load(ctx context.Context, key string, dest any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// CandleArchive stores finalized candles for later analysis.
type CandleArchive interface {
	StoreBatch(ctx context.Context, records []models.CandleRecord) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordTick(symbol string, final bool)
	RecordDetectorFire(detector, direction string)
	RecordNotification(detector, result string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordWindowSize(symbol string, n int)
	RecordLatency(op string, seconds float64)
}
