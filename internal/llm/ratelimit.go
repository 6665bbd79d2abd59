package llm

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool manages per-model token-bucket limiters. One pool is shared
// by every caller of a Client so conversational and write-up requests count
// against the same budget.
type RateLimiterPool struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// NewRateLimiterPool creates an empty pool.
func NewRateLimiterPool() *RateLimiterPool {
	return &RateLimiterPool{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until the limiter for modelID allows the next request. The
// limiter is created on first use; later rate changes for the same model ID
// are ignored.
func (p *RateLimiterPool) Wait(ctx context.Context, modelID string, requestsPerMinute int) error {
	p.mu.Lock()
	limiter, ok := p.limiters[modelID]
	if !ok {
		rps := float64(requestsPerMinute) / 60.0
		burst := requestsPerMinute / 5
		if burst < 2 {
			burst = 2
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
		p.limiters[modelID] = limiter
	}
	p.mu.Unlock()

	return limiter.Wait(ctx)
}
