package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
)

// PriceResolver answers "what is the next price of symbol" from the live stream.
type PriceResolver struct {
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]map[uuid.UUID]chan decimal.Decimal
}

func NewPriceResolver(timeout time.Duration) *PriceResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PriceResolver{timeout: timeout, waiters: make(map[string]map[uuid.UUID]chan decimal.Decimal)}
}

func (r *PriceResolver) Name() string { return "price_resolver" }

// Observe completes every pending request for the observed symbol.
func (r *PriceResolver) Observe(_ context.Context, obs models.Observation) {
	price, ok := obs.Price()
	if !ok {
		return
	}
	r.mu.Lock()
	pending := r.waiters[obs.Symbol]
	delete(r.waiters, obs.Symbol)
	r.mu.Unlock()

	for _, ch := range pending {
		ch <- price
	}
}

// Await blocks until the next observation of symbol or the timeout elapses.
func (r *PriceResolver) Await(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id := uuid.New()
	ch := make(chan decimal.Decimal, 1)

	r.mu.Lock()
	if r.waiters[symbol] == nil {
		r.waiters[symbol] = make(map[uuid.UUID]chan decimal.Decimal)
	}
	r.waiters[symbol][id] = ch
	r.mu.Unlock()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var err error
	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		err = fmt.Errorf("%s: %w", symbol, models.ErrResolutionTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.mu.Lock()
	if m := r.waiters[symbol]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(r.waiters, symbol)
		}
	}
	r.mu.Unlock()

	// A price may have landed between the timeout and the cleanup.
	select {
	case p := <-ch:
		return p, nil
	default:
		return decimal.Zero, err
	}
}

// Pending returns the number of outstanding requests.
func (r *PriceResolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.waiters {
		n += len(m)
	}
	return n
}
