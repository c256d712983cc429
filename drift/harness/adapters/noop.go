package adapters

import (
	"context"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

// NoopCache disables memoization.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool)                 { return nil, false }
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl int) error   { return nil }
func (NoopCache) Delete(ctx context.Context, key string) error                       { return nil }

// NoopRateLimiter admits every caller immediately.
type NoopRateLimiter struct{}

func (NoopRateLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// NoopTracer discards all spans and events.
type NoopTracer struct{}

func (NoopTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}
func (NoopTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

var (
	_ ports.Cache       = NoopCache{}
	_ ports.RateLimiter = NoopRateLimiter{}
	_ ports.Tracer      = NoopTracer{}
)
