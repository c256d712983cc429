package adapters

import (
	"context"
	"errors"
	"time"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

// RetryPolicy bounds retries of transient service failures.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseBackoff time.Duration // doubled after each failed attempt
	Timeout     time.Duration // per-attempt deadline
}

// DefaultCompletionRetryPolicy matches the recommended completion budget.
func DefaultCompletionRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond, Timeout: 30 * time.Second}
}

// DefaultEmbeddingRetryPolicy matches the recommended embedding budget.
func DefaultEmbeddingRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 200 * time.Millisecond, Timeout: 5 * time.Second}
}

// RetryingCompleter decorates a Completer with bounded exponential backoff on
// transient failures. Non-transient failures surface immediately.
type RetryingCompleter struct {
	inner  ports.Completer
	policy RetryPolicy
}

func NewRetryingCompleter(inner ports.Completer, policy RetryPolicy) *RetryingCompleter {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingCompleter{inner: inner, policy: policy}
}

func (r *RetryingCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	var lastErr error
	backoff := r.policy.BaseBackoff
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ports.Completion{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		out, err := r.inner.Complete(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransient(err) {
			return ports.Completion{}, err
		}
	}
	return ports.Completion{}, lastErr
}

// RetryingEmbedder decorates an Embedder with the same backoff behavior.
type RetryingEmbedder struct {
	inner  ports.Embedder
	policy RetryPolicy
}

func NewRetryingEmbedder(inner ports.Embedder, policy RetryPolicy) *RetryingEmbedder {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingEmbedder{inner: inner, policy: policy}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([]ports.Vector, error) {
	var lastErr error
	backoff := r.policy.BaseBackoff
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		out, err := r.inner.Embed(attemptCtx, texts)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *RetryingEmbedder) Dimension() int { return r.inner.Dimension() }

func isTransient(err error) bool {
	var svcErr *ports.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Transient()
	}
	return false
}

var (
	_ ports.Completer = (*RetryingCompleter)(nil)
	_ ports.Embedder  = (*RetryingEmbedder)(nil)
)
