package harnessports

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	a := Vector{1, 0, 0}
	b := Vector{1, 0, 0}
	c := Vector{0, 1, 0}

	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, c), 1e-9)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Zero(t, CosineSimilarity(Vector{1, 2}, Vector{1, 2, 3}))
	assert.Zero(t, CosineSimilarity(Vector{0, 0}, Vector{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestServiceErrorTransient(t *testing.T) {
	assert.True(t, NewServiceError(ErrRateLimited, "", nil).Transient())
	assert.True(t, NewServiceError(ErrTimeout, "", nil).Transient())
	assert.True(t, NewServiceError(ErrUnavailable, "", nil).Transient())
	assert.False(t, NewServiceError(ErrMalformedResponse, "", nil).Transient())
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewServiceError(ErrUnavailable, "dial", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")

	var svcErr *ServiceError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &svcErr))
	assert.Equal(t, ErrUnavailable, svcErr.Kind)
}
