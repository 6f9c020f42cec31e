package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
)

// MaxCandleLimit is the largest history the exchange serves per request.
const MaxCandleLimit = 500

// FetchFailure records a symbol whose history could not be fetched.
type FetchFailure struct {
	Symbol string
	Err    error
}

// FetchResult splits a bulk fetch into per-symbol successes and failures.
type FetchResult struct {
	Successes []models.SymbolCandles
	Failures  []FetchFailure
}

// FailedSymbols lists the symbols that failed.
func (r *FetchResult) FailedSymbols() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Symbol
	}
	return out
}

// CandleFetcher pulls recent history for many symbols with bounded concurrency.
type CandleFetcher struct {
	market      domrepo.MarketData
	concurrency int
	metrics     domrepo.Metrics
	l           *logger.Logger
}

func NewCandleFetcher(market domrepo.MarketData, concurrency int, m domrepo.Metrics, l *logger.Logger) *CandleFetcher {
	if concurrency <= 0 {
		concurrency = 2
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &CandleFetcher{market: market, concurrency: concurrency, metrics: m, l: l.With("candle_fetcher")}
}

// Fetch requests limit candles per symbol. A limit above MaxCandleLimit fails
// before any request is made. When includeOpen is false the last, still-open
// candle of each series is dropped.
func (f *CandleFetcher) Fetch(ctx context.Context, symbols []string, interval domrepo.Interval, limit int, includeOpen bool) (*FetchResult, error) {
	if limit > MaxCandleLimit {
		return nil, fmt.Errorf("fetch %d candles (max %d): %w", limit, MaxCandleLimit, models.ErrLimitExceeded)
	}
	f.l.Info("fetching candles",
		logger.Int("symbols", len(symbols)),
		logger.String("interval", string(interval)),
		logger.Int("limit", limit),
	)

	start := time.Now()
	candles := make([][]models.Candle, len(symbols))
	errs := make([]error, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			cs, err := f.market.Klines(gctx, sym, interval, limit)
			if err != nil {
				errs[i] = err
				return nil
			}
			if !includeOpen && len(cs) > 0 {
				cs = cs[:len(cs)-1]
			}
			candles[i] = cs
			return nil
		})
	}
	_ = g.Wait()

	res := &FetchResult{}
	for i, sym := range symbols {
		if errs[i] != nil {
			f.metrics.RecordError("fetch_candles")
			res.Failures = append(res.Failures, FetchFailure{Symbol: sym, Err: errs[i]})
			continue
		}
		res.Successes = append(res.Successes, models.SymbolCandles{Symbol: sym, Candles: candles[i]})
	}

	elapsed := time.Since(start)
	f.metrics.RecordLatency("fetch_candles", elapsed.Seconds())
	f.l.Info("fetched candles",
		logger.Duration("duration", elapsed),
		logger.Strings("failed", res.FailedSymbols()),
		logger.Int("total", len(res.Successes)),
	)
	return res, nil
}
