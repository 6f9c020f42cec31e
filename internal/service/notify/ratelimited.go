package notify

import (
	"context"
	"fmt"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/service/ratelimit"
)

// RateLimited throttles an inner notifier per destination.
type RateLimited struct {
	next    drepo.Notifier
	limiter *ratelimit.Limiter
}

func NewRateLimited(next drepo.Notifier, limiter *ratelimit.Limiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

func (r *RateLimited) Send(ctx context.Context, n models.Notification) (string, error) {
	if err := r.limiter.Wait(ctx, n.Destination); err != nil {
		return "", fmt.Errorf("rate limit %s: %w", n.Destination, err)
	}
	return r.next.Send(ctx, n)
}

var _ drepo.Notifier = (*RateLimited)(nil)
