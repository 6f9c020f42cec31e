package detectors

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/services/features"
	"FinWatch/pkg/logger"
)

// VolatilityConfig tunes the average-deviation detector.
type VolatilityConfig struct {
	Lookback      int
	Multiplier    decimal.Decimal
	Rearm         time.Duration
	PrimarySymbol string
	Destination   string
}

// DefaultVolatilityConfig compares the current candle against the previous 7 with a 10 minute re-arm.
func DefaultVolatilityConfig(destination string) VolatilityConfig {
	return VolatilityConfig{
		Lookback:      8,
		Multiplier:    decimal.NewFromInt(7),
		Rearm:         10 * time.Minute,
		PrimarySymbol: "BTCUSDT",
		Destination:   destination,
	}
}

// VolatilityDetector fires when the current candle moves far more than the recent average.
type VolatilityDetector struct {
	base
	cfg   VolatilityConfig
	state *stateTable[models.VolatilityState]
}

func NewVolatilityDetector(cfg VolatilityConfig, n domrepo.Notifier, store domrepo.DocumentStore, opts ...Option) *VolatilityDetector {
	b := newBase("volatility", n, opts)
	return &VolatilityDetector{
		base:  b,
		cfg:   cfg,
		state: newStateTable[models.VolatilityState](store, domrepo.DocVolatility, b.l),
	}
}

// Load restores persisted state.
func (d *VolatilityDetector) Load(ctx context.Context) { d.state.load(ctx) }

// State returns a copy of the state for symbol.
func (d *VolatilityDetector) State(symbol string) (models.VolatilityState, bool) {
	return d.state.get(symbol)
}

// Observe evaluates one finalized observation.
func (d *VolatilityDetector) Observe(ctx context.Context, obs models.Observation) {
	if !obs.IsFinal {
		return
	}
	now := d.now()

	// The re-arm clock starts at the first finalized observation, baseline or not.
	created := false
	d.state.with(obs.Symbol, func(s *models.VolatilityState, existed bool) {
		if !existed {
			s.LastFire = now
			created = true
		}
	})
	if created {
		_ = d.state.persist(ctx)
	}

	candles := obs.Tail(d.cfg.Lookback)
	if len(candles) < 2 {
		return
	}
	current := candles[len(candles)-1]
	baseline := candles[:len(candles)-1]

	sum := decimal.Zero
	for _, c := range baseline {
		sum = sum.Add(features.CandleMove(c))
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(baseline))))
	move := features.CandleMove(current)

	var fire bool
	var quote string
	d.state.with(obs.Symbol, func(s *models.VolatilityState, _ bool) {
		if move.GreaterThan(avg.Mul(d.cfg.Multiplier)) && now.Sub(s.LastFire) >= d.cfg.Rearm {
			s.LastFire = now
			fire = true
			quote = s.LastRef
		}
	})

	if !fire {
		return
	}

	pump := current.Close.GreaterThan(current.Open)
	direction := "dump"
	if pump {
		direction = "pump"
	}
	d.metrics.RecordDetectorFire(d.name, direction)
	d.l.Info("volatility spike",
		logger.String("symbol", obs.Symbol),
		logger.String("direction", direction),
		logger.String("avg_pct", features.FormatPercent(avg)),
		logger.String("current_pct", features.FormatPercent(move)),
	)

	if pump || obs.Symbol == d.cfg.PrimarySymbol {
		text := fmt.Sprintf("Average Pump! *%s* => %s%%\nCurrent Price : $%s", obs.Symbol, features.FormatPercent(move), current.Close)
		if !pump {
			text = fmt.Sprintf("Average Dump! *%s* => -%s%%\nCurrent Price : $%s", obs.Symbol, features.FormatPercent(move), current.Close)
		}
		ref, ok := d.send(ctx, models.Notification{Destination: d.cfg.Destination, Text: text, QuoteRef: quote})
		if ok {
			d.state.with(obs.Symbol, func(s *models.VolatilityState, _ bool) { s.LastRef = ref })
		}
	}
	_ = d.state.persist(ctx)
}
