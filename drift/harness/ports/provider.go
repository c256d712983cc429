package harnessports

import (
	"context"
	"encoding/json"
	"fmt"
)

// CompletionRequest aggregates everything a completion backend needs.
type CompletionRequest struct {
	Prompt          string            // fully assembled prompt text
	System          string            // optional system/developer instructions
	ModelID         string            // backend model identifier
	MaxOutputTokens int
	Structured      bool              // request JSON object output mode
	Meta            map[string]string // lightweight metadata for tracing/caching keys
}

// Completion is the backend's response.
type Completion struct {
	Text string
	// RawJSON is populated when Structured was requested and the response body
	// parsed as a JSON object.
	RawJSON json.RawMessage
	Usage   *Usage
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer is the abstraction for all prompt-completion backends.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ErrorKind classifies service failures for retry decisions.
type ErrorKind string

const (
	ErrRateLimited       ErrorKind = "RATE_LIMITED"
	ErrTimeout           ErrorKind = "TIMEOUT"
	ErrMalformedResponse ErrorKind = "MALFORMED_RESPONSE"
	ErrUnavailable       ErrorKind = "UNAVAILABLE"
)

// ServiceError is the error type surfaced by completion and embedding adapters.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Transient reports whether the failure is worth retrying.
func (e *ServiceError) Transient() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrTimeout || e.Kind == ErrUnavailable
}

// NewServiceError wraps a cause with a classified kind.
func NewServiceError(kind ErrorKind, message string, cause error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Cause: cause}
}
