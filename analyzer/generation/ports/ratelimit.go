package genports

import "context"

// RateLimiter coordinates throughput to the LLM backend.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
