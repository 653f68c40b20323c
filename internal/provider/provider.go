package provider

import (
	"context"
	"errors"
	"fmt"

	"ollama-gateway/internal/models"
)

// ErrUpstreamUnavailable indicates the inference server could not be reached.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrUpstreamStatus indicates the inference server answered with a non-success status.
var ErrUpstreamStatus = errors.New("upstream error status")

// ErrMalformedReply indicates the inference server reply was missing expected fields.
var ErrMalformedReply = errors.New("malformed upstream reply")

// Client defines the operations the gateway needs from an inference server.
type Client interface {
	Name() string
	Generate(ctx context.Context, model string, messages []models.Message, temperature float64) (string, error)
	// Stream opens an incremental generation. The returned channel is closed
	// when the upstream signals completion, when a failure is delivered as a
	// final chunk with Err set, or when ctx is cancelled.
	Stream(ctx context.Context, model string, messages []models.Message, temperature float64) (<-chan models.Chunk, error)
	ListModels(ctx context.Context) ([]models.ModelDescriptor, error)
}

// StatusError carries the status and message of a non-success upstream reply.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstreamStatus
}
