package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

func TestLRUCacheEvictsOldest(t *testing.T) {
	cache := NewLRUCache(2)
	ctx := context.Background()

	cache.Set(ctx, "a", []byte("1"), 0)
	cache.Set(ctx, "b", []byte("2"), 0)
	// Touch "a" so "b" is the eviction candidate.
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)

	cache.Set(ctx, "c", []byte("3"), 0)
	assert.Equal(t, 2, cache.Len())

	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "a")
	assert.True(t, ok)
}

func TestLRUCacheNoExpiryWithZeroTTL(t *testing.T) {
	cache := NewLRUCache(4)
	ctx := context.Background()
	cache.Set(ctx, "k", []byte("v"), 0)

	v, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestLRUCacheDelete(t *testing.T) {
	cache := NewLRUCache(4)
	ctx := context.Background()
	cache.Set(ctx, "k", []byte("v"), 0)
	require.NoError(t, cache.Delete(ctx, "k"))
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
	// Deleting a missing key is not an error.
	require.NoError(t, cache.Delete(ctx, "k"))
}

func TestTokenBucketExhaustionAndRelease(t *testing.T) {
	tb := NewTokenBucket(2, time.Hour)
	ctx := context.Background()

	r1, err := tb.Acquire(ctx, "model")
	require.NoError(t, err)
	_, err = tb.Acquire(ctx, "model")
	require.NoError(t, err)

	_, err = tb.Acquire(ctx, "model")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// Separate keys have separate budgets.
	_, err = tb.Acquire(ctx, "other")
	assert.NoError(t, err)

	r1()
	_, err = tb.Acquire(ctx, "model")
	assert.NoError(t, err)
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"Must be PostgreSQL", "Must be PostgreSQL"})
	require.NoError(t, err)
	assert.Equal(t, a[0], a[1])
	assert.InDelta(t, 1.0, ports.CosineSimilarity(a[0], a[1]), 1e-9)
	assert.Equal(t, 64, e.Dimension())
	assert.Len(t, a[0], 64)
}

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(32)
	vecs, err := e.Embed(context.Background(), []string{"some text to embed"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vecs[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestLocalEmbedderSharedVocabularySimilar(t *testing.T) {
	e := NewLocalEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"the database must be postgresql",
		"database must be postgresql please",
		"unrelated sentence about weather patterns",
	})
	require.NoError(t, err)

	shared := ports.CosineSimilarity(vecs[0], vecs[1])
	unrelated := ports.CosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, shared, 0.5)
	assert.Less(t, unrelated, shared)
}

// stubCompleter lets tests script failures per attempt.
type stubCompleter struct {
	responses []error
	calls     int
}

func (s *stubCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	err := s.responses[s.calls%len(s.responses)]
	s.calls++
	if err != nil {
		return ports.Completion{}, err
	}
	return ports.Completion{Text: "ok"}, nil
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	stub := &stubCompleter{responses: []error{
		ports.NewServiceError(ports.ErrRateLimited, "slow down", nil),
		nil,
	}}
	r := NewRetryingCompleter(stub, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	out, err := r.Complete(context.Background(), ports.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, 2, stub.calls)
}

func TestRetryDoesNotRetryPermanentFailure(t *testing.T) {
	stub := &stubCompleter{responses: []error{
		ports.NewServiceError(ports.ErrMalformedResponse, "bad json", nil),
		nil,
	}}
	r := NewRetryingCompleter(stub, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	_, err := r.Complete(context.Background(), ports.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	stub := &stubCompleter{responses: []error{
		ports.NewServiceError(ports.ErrUnavailable, "down", nil),
	}}
	r := NewRetryingCompleter(stub, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	_, err := r.Complete(context.Background(), ports.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 3, stub.calls)

	var svcErr *ports.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ports.ErrUnavailable, svcErr.Kind)
}

func TestRateLimitedCompleterMapsExhaustion(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	inner := &stubCompleter{responses: []error{nil}}
	limited := NewRateLimitedCompleter(inner, tb, "completion")
	ctx := context.Background()

	// Hold the only token so the wrapped call finds an empty bucket.
	_, err := tb.Acquire(ctx, "completion")
	require.NoError(t, err)

	_, err = limited.Complete(ctx, ports.CompletionRequest{Prompt: "p"})
	var svcErr *ports.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ports.ErrRateLimited, svcErr.Kind)
	assert.True(t, svcErr.Transient())
}

func completionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestHTTPCompleterSuccess(t *testing.T) {
	srv := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL, "key", "model", time.Second)
	out, err := c.Complete(context.Background(), ports.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 5, out.Usage.TotalTokens)
}

func TestHTTPCompleterErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   ports.ErrorKind
	}{
		{http.StatusTooManyRequests, ports.ErrRateLimited},
		{http.StatusInternalServerError, ports.ErrUnavailable},
		{http.StatusBadRequest, ports.ErrMalformedResponse},
	}
	for _, tc := range cases {
		srv := completionServer(t, tc.status, `{}`)
		c := NewHTTPCompleter(srv.URL, "key", "model", time.Second)
		_, err := c.Complete(context.Background(), ports.CompletionRequest{Prompt: "hi"})
		srv.Close()

		var svcErr *ports.ServiceError
		require.True(t, errors.As(err, &svcErr), "status %d", tc.status)
		assert.Equal(t, tc.kind, svcErr.Kind, "status %d", tc.status)
	}
}

func TestHTTPCompleterStructuredOutputValidated(t *testing.T) {
	srv := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"not json at all"}}]}`)
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL, "key", "model", time.Second)
	_, err := c.Complete(context.Background(), ports.CompletionRequest{Prompt: "hi", Structured: true})

	var svcErr *ports.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ports.ErrMalformedResponse, svcErr.Kind)
}

func TestHTTPCompleterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL, "key", "model", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, ports.CompletionRequest{Prompt: "hi"})
	var svcErr *ports.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ports.ErrTimeout, svcErr.Kind)
}
