package ai

import (
	"context"

	"golang.org/x/time/rate"

	"rulegen-backend/internal/engine"
)

// RateLimited throttles calls to the wrapped Completer. It waits for a token
// and never retries; a cancelled wait is reported as a transport error.
type RateLimited struct {
	next    engine.Completer
	limiter *rate.Limiter
}

// NewRateLimited returns next unchanged when requestsPerMinute is not positive.
func NewRateLimited(next engine.Completer, requestsPerMinute int) engine.Completer {
	if requestsPerMinute <= 0 {
		return next
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

func (r *RateLimited) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", engine.TransportError("LLM rate limit wait aborted: %v", err)
	}
	return r.next.Complete(ctx, prompt, maxTokens, temperature)
}
