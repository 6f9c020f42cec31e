package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLC record for one interval. Finalized candles are never mutated.
type Candle struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
}

// IsBullish reports whether the candle closed at or above its open.
func (c Candle) IsBullish() bool { return c.Close.GreaterThanOrEqual(c.Open) }

// SymbolCandles pairs a symbol with its candle history, oldest first.
type SymbolCandles struct {
	Symbol  string
	Candles []Candle
}

// Tick is a single upstream kline event.
type Tick struct {
	Symbol  string
	Candle  Candle
	IsFinal bool
}

// Observation is what detectors receive per tick: a read-only snapshot of the
// symbol window. For provisional ticks the last element is the in-progress candle.
type Observation struct {
	Symbol  string
	Candles []Candle
	IsFinal bool
}

// Last returns the newest candle in the observation.
func (o Observation) Last() (Candle, bool) {
	if len(o.Candles) == 0 {
		return Candle{}, false
	}
	return o.Candles[len(o.Candles)-1], true
}

// Price returns the close of the newest candle.
func (o Observation) Price() (decimal.Decimal, bool) {
	c, ok := o.Last()
	return c.Close, ok
}

// Tail returns up to n newest candles, oldest first.
func (o Observation) Tail(n int) []Candle {
	if n >= len(o.Candles) {
		return o.Candles
	}
	return o.Candles[len(o.Candles)-n:]
}

// Closes returns closing prices as floats for indicator math.
func (o Observation) Closes() []float64 {
	out := make([]float64, len(o.Candles))
	for i, c := range o.Candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

// SymbolInfo is exchange metadata for one tradable contract.
type SymbolInfo struct {
	Symbol     string
	QuoteAsset string
	Status     string
}

// CandleRecord is a finalized candle tagged for archival.
type CandleRecord struct {
	Symbol   string
	Interval string
	Candle   Candle
}
