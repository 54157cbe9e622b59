package cacheports

import "context"

// Tracer emits spans and diagnostic events (cache hit/miss, swallowed failures).
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
	Event(ctx context.Context, name string, attrs map[string]any)
}
