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

// PumpDumpConfig tunes the short-horizon pump/dump detector.
type PumpDumpConfig struct {
	ThresholdPct decimal.Decimal
	Expiry       time.Duration
	Destination  string
}

// DefaultPumpDumpConfig fires on moves above 5% within a 10 minute reference window.
func DefaultPumpDumpConfig(destination string) PumpDumpConfig {
	return PumpDumpConfig{ThresholdPct: decimal.NewFromInt(5), Expiry: 10 * time.Minute, Destination: destination}
}

// PumpDumpDetector compares every price against a short-lived reference price.
type PumpDumpDetector struct {
	base
	cfg   PumpDumpConfig
	state *stateTable[models.PumpDumpState]
}

func NewPumpDumpDetector(cfg PumpDumpConfig, n domrepo.Notifier, store domrepo.DocumentStore, opts ...Option) *PumpDumpDetector {
	b := newBase("pumpdump", n, opts)
	return &PumpDumpDetector{
		base:  b,
		cfg:   cfg,
		state: newStateTable[models.PumpDumpState](store, domrepo.DocPumpDump, b.l),
	}
}

// Load restores persisted state.
func (d *PumpDumpDetector) Load(ctx context.Context) { d.state.load(ctx) }

// State returns a copy of the reference for symbol.
func (d *PumpDumpDetector) State(symbol string) (models.PumpDumpState, bool) {
	return d.state.get(symbol)
}

// Observe evaluates provisional and finalized observations alike.
func (d *PumpDumpDetector) Observe(ctx context.Context, obs models.Observation) {
	price, ok := obs.Price()
	if !ok {
		return
	}
	now := d.now()

	var reset, fire bool
	var ref models.PumpDumpState
	var change decimal.Decimal
	d.state.with(obs.Symbol, func(s *models.PumpDumpState, existed bool) {
		if !existed || now.Sub(s.ReferenceTime) > d.cfg.Expiry {
			s.ReferencePrice = price
			s.ReferenceTime = now
			reset = true
			return
		}
		change = features.PercentChange(s.ReferencePrice, price)
		if change.Abs().GreaterThan(d.cfg.ThresholdPct) {
			fire = true
			ref = *s
		}
	})

	if reset {
		_ = d.state.persist(ctx)
		return
	}
	if !fire {
		return
	}

	// The reference is gone before the next tick for this symbol can run.
	d.state.remove(obs.Symbol)
	_ = d.state.persist(ctx)

	pump := change.IsPositive()
	direction, title := "dump", "📉📉📉 Dump"
	if pump {
		direction, title = "pump", "📈📈📈 Pump"
	}
	d.metrics.RecordDetectorFire(d.name, direction)
	d.l.Info("pump/dump",
		logger.String("symbol", obs.Symbol),
		logger.String("direction", direction),
		logger.String("change_pct", features.FormatPercent(change)),
	)

	d.send(ctx, models.Notification{
		Destination: d.cfg.Destination,
		Text: fmt.Sprintf("%s alert for *%s*\n%s%%\nLast Price (%s): $%s\nCurrent Price : $%s",
			title, obs.Symbol, features.FormatPercent(change), Ago(now.Sub(ref.ReferenceTime)), ref.ReferencePrice, price),
	})
}

// Ago renders an elapsed duration in whole minutes, or whole seconds under a minute.
func Ago(elapsed time.Duration) string {
	if m := int(elapsed / time.Minute); m > 0 {
		return fmt.Sprintf("%d minutes ago", m)
	}
	return fmt.Sprintf("%d seconds ago", int(elapsed/time.Second))
}
