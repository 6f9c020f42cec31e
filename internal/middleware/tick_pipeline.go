package middleware

import (
	"fmt"
	"sync"
	"time"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/metrics"
)

// TickHandler consumes one upstream tick.
type TickHandler func(models.Tick)

// TickPipeline sits between the exchange stream and the engine.
// It validates ticks and throttles provisional ones per symbol; finalized
// ticks are never dropped.
type TickPipeline struct {
	metrics  domrepo.Metrics
	maxRPS   int
	now      func() time.Time
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS caps provisional ticks per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithPipelineClock overrides time.Now.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = now }
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(m domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	if m == nil {
		m = metrics.Nop{}
	}
	p := &TickPipeline{
		metrics:  m,
		maxRPS:   4,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wrap returns a handler that filters ticks before calling next.
func (p *TickPipeline) Wrap(next TickHandler) TickHandler {
	return func(t models.Tick) {
		if p.Accept(t) {
			next(t)
		}
	}
}

// Accept reports whether t should reach the engine.
func (p *TickPipeline) Accept(t models.Tick) bool {
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return false
	}
	if t.IsFinal {
		p.mu.Lock()
		delete(p.lastSeen, t.Symbol)
		p.mu.Unlock()
		return true
	}
	if !p.allow(t.Symbol, p.now()) {
		p.metrics.RecordError("pipeline_throttle")
		return false
	}
	return true
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	c := t.Candle
	if c.OpenTime.IsZero() {
		return fmt.Errorf("open time missing")
	}
	if c.Close.IsNegative() || c.Open.IsNegative() || c.High.IsNegative() || c.Low.IsNegative() {
		return fmt.Errorf("negative price")
	}
	if c.Close.IsZero() {
		return fmt.Errorf("zero close")
	}
	return nil
}

func (p *TickPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
