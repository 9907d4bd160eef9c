package fetcher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/hansard-crawler/internal/metrics"
)

// Limiter spaces every outbound request by at least the configured delay.
// One limiter is shared by page fetches and document downloads.
type Limiter struct {
	limiter *rate.Limiter
	metrics *metrics.Registry
}

// NewLimiter builds a limiter; a non-positive delay disables limiting.
func NewLimiter(delay time.Duration, m *metrics.Registry) *Limiter {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1), metrics: m}
}

// Wait blocks until the next request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.metrics.ObserveRateLimitWait(waited)
	}
	return nil
}
