package detectors

import (
	"context"
	"fmt"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/services/features"
	"FinWatch/pkg/logger"
)

// TrendConfig tunes the EMA crossover detector.
type TrendConfig struct {
	FastPeriod  int
	SlowPeriod  int
	Lookback    int
	Cooldown    int
	Destination string
}

// DefaultTrendConfig returns EMA(25)/EMA(99) over the last 10 candles with a 10 tick cooldown.
func DefaultTrendConfig(destination string) TrendConfig {
	return TrendConfig{FastPeriod: 25, SlowPeriod: 99, Lookback: 10, Cooldown: 10, Destination: destination}
}

// TrendDetector fires when every recent close sits above EMA fast above EMA slow.
type TrendDetector struct {
	base
	cfg   TrendConfig
	state *stateTable[models.TrendState]
}

func NewTrendDetector(cfg TrendConfig, n domrepo.Notifier, store domrepo.DocumentStore, opts ...Option) *TrendDetector {
	b := newBase("trend", n, opts)
	return &TrendDetector{
		base:  b,
		cfg:   cfg,
		state: newStateTable[models.TrendState](store, domrepo.DocTrend, b.l),
	}
}

// Load restores persisted state.
func (d *TrendDetector) Load(ctx context.Context) { d.state.load(ctx) }

// State returns a copy of the state for symbol.
func (d *TrendDetector) State(symbol string) (models.TrendState, bool) { return d.state.get(symbol) }

// Observe evaluates one finalized observation.
func (d *TrendDetector) Observe(ctx context.Context, obs models.Observation) {
	if !obs.IsFinal || len(obs.Candles) == 0 {
		return
	}

	bullish := d.bullish(obs)
	var fire bool
	var quote string
	d.state.with(obs.Symbol, func(s *models.TrendState, _ bool) {
		if s.Cooldown > 0 {
			s.Cooldown--
		}
		if bullish && s.Cooldown == 0 {
			s.Cooldown = d.cfg.Cooldown
			fire = true
			quote = s.LastRef
		}
	})

	if fire {
		d.metrics.RecordDetectorFire(d.name, "long")
		slice := obs.Tail(d.cfg.Lookback)
		first, last := slice[0], slice[len(slice)-1]
		pct := features.PercentChange(first.Close, last.Close)
		d.l.Info("trend crossover", logger.String("symbol", obs.Symbol), logger.String("change_pct", features.FormatPercent(pct)))

		ref, ok := d.send(ctx, models.Notification{
			Destination: d.cfg.Destination,
			Text:        fmt.Sprintf("%s LONG | %s%%\nCurrent Price : $%s", obs.Symbol, features.FormatPercent(pct), last.Close),
			QuoteRef:    quote,
		})
		if ok {
			d.state.with(obs.Symbol, func(s *models.TrendState, _ bool) { s.LastRef = ref })
		}
	}

	_ = d.state.persist(ctx)
}

// bullish reports whether each of the last Lookback candles closes above the
// fast EMA, which is above the slow EMA at the same index.
func (d *TrendDetector) bullish(obs models.Observation) bool {
	closes := obs.Closes()
	fast, fastOK := features.AlignedEMA(closes, d.cfg.FastPeriod)
	slow, slowOK := features.AlignedEMA(closes, d.cfg.SlowPeriod)

	from := len(closes) - d.cfg.Lookback
	if from < 0 {
		from = 0
	}
	for i := from; i < len(closes); i++ {
		if !fastOK[i] || !slowOK[i] {
			return false
		}
		if !(closes[i] > fast[i] && fast[i] > slow[i]) {
			return false
		}
	}
	return true
}
