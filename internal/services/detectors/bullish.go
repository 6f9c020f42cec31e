package detectors

import (
	"context"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/services/features"
)

// BullishRunConfig tunes the bullish-run detector.
type BullishRunConfig struct {
	Lookback int
	Rearm    int
}

// DefaultBullishRunConfig looks for 7 non-bearish candles and re-arms after 5 ticks.
func DefaultBullishRunConfig() BullishRunConfig {
	return BullishRunConfig{Lookback: 7, Rearm: 5}
}

// BullishRunDetector feeds symbols with an unbroken run of bullish candles into a digest.
type BullishRunDetector struct {
	base
	cfg    BullishRunConfig
	digest *DigestDebouncer
	state  *stateTable[models.BullishRunState]
}

// NewBullishRunDetector wires itself as the digest's flush callback to set the re-arm marker.
func NewBullishRunDetector(cfg BullishRunConfig, digest *DigestDebouncer, store domrepo.DocumentStore, opts ...Option) *BullishRunDetector {
	b := newBase("bullish_run", nil, opts)
	d := &BullishRunDetector{
		base:   b,
		cfg:    cfg,
		digest: digest,
		state:  newStateTable[models.BullishRunState](store, domrepo.DocBullish, b.l),
	}
	digest.OnFlushed(d.arm)
	return d
}

// Load restores persisted state.
func (d *BullishRunDetector) Load(ctx context.Context) { d.state.load(ctx) }

// State returns a copy of the state for symbol.
func (d *BullishRunDetector) State(symbol string) (models.BullishRunState, bool) {
	return d.state.get(symbol)
}

// Observe evaluates one finalized observation.
func (d *BullishRunDetector) Observe(ctx context.Context, obs models.Observation) {
	if !obs.IsFinal || len(obs.Candles) < d.cfg.Lookback {
		return
	}
	run := obs.Tail(d.cfg.Lookback)
	bullish := features.AllBullish(run)

	var add bool
	d.state.with(obs.Symbol, func(s *models.BullishRunState, _ bool) {
		if s.Rearm > 0 {
			s.Rearm--
		}
		add = bullish && s.Rearm == 0
	})
	_ = d.state.persist(ctx)

	if add {
		d.metrics.RecordDetectorFire(d.name, "bullish")
		d.digest.Add(DigestEvent{Symbol: obs.Symbol, From: run[0].Close, To: run[len(run)-1].Close})
	}
}

func (d *BullishRunDetector) arm(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		d.state.with(sym, func(s *models.BullishRunState, _ bool) { s.Rearm = d.cfg.Rearm })
	}
	_ = d.state.persist(ctx)
}
