package ratelimit

import "context"

// RateLimiter controls request throughput per named resource, e.g. the shared
// Solana RPC endpoint all workers submit through.
type RateLimiter interface {
	Allow(ctx context.Context, resource string) (bool, error)
	Wait(ctx context.Context, resource string) error
}
