package ratelimit

import "context"

// RateLimiter throttles outbound callback deliveries per service so a single
// noisy service cannot saturate the dispatcher.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
