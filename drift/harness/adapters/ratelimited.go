package adapters

import (
	"context"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

// RateLimitedCompleter gates completion calls through a shared RateLimiter.
// Exhausted buckets surface as RATE_LIMITED service errors, which the retry
// decorator treats as transient.
type RateLimitedCompleter struct {
	inner   ports.Completer
	limiter ports.RateLimiter
	key     string
}

func NewRateLimitedCompleter(inner ports.Completer, limiter ports.RateLimiter, key string) *RateLimitedCompleter {
	return &RateLimitedCompleter{inner: inner, limiter: limiter, key: key}
}

func (r *RateLimitedCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	release, err := r.limiter.Acquire(ctx, r.key)
	if err != nil {
		return ports.Completion{}, ports.NewServiceError(ports.ErrRateLimited, "completion budget exhausted", err)
	}
	defer release()
	return r.inner.Complete(ctx, req)
}

// RateLimitedEmbedder gates embedding calls the same way.
type RateLimitedEmbedder struct {
	inner   ports.Embedder
	limiter ports.RateLimiter
	key     string
}

func NewRateLimitedEmbedder(inner ports.Embedder, limiter ports.RateLimiter, key string) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{inner: inner, limiter: limiter, key: key}
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([]ports.Vector, error) {
	release, err := r.limiter.Acquire(ctx, r.key)
	if err != nil {
		return nil, ports.NewServiceError(ports.ErrRateLimited, "embedding budget exhausted", err)
	}
	defer release()
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitedEmbedder) Dimension() int { return r.inner.Dimension() }

var (
	_ ports.Completer = (*RateLimitedCompleter)(nil)
	_ ports.Embedder  = (*RateLimitedEmbedder)(nil)
)
