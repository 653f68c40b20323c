// Package providertest provides a scriptable provider.Client for tests.
package providertest

import (
	"context"
	"sync"

	"ollama-gateway/internal/models"
	"ollama-gateway/internal/provider"
)

// Call records the arguments of one Generate or Stream invocation.
type Call struct {
	Model       string
	Messages    []models.Message
	Temperature float64
}

// Client is an in-memory provider.Client. Zero values answer every
// generation with an empty string and list no models.
type Client struct {
	// GenerateFunc answers the i-th Generate call (zero based).
	GenerateFunc func(ctx context.Context, i int, model string) (string, error)

	// Fragments are streamed in order; StreamErr, when set, follows them as
	// the final chunk. OpenErr fails Stream before any fragment.
	Fragments []string
	StreamErr error
	OpenErr   error
	// Release, when set, holds back the first fragment until it is closed.
	Release <-chan struct{}

	Models  []models.ModelDescriptor
	ListErr error

	mu      sync.Mutex
	calls   []Call
	streams []Call
}

var _ provider.Client = (*Client)(nil)

func (c *Client) Name() string {
	return "fake"
}

func (c *Client) Generate(ctx context.Context, model string, messages []models.Message, temperature float64) (string, error) {
	c.mu.Lock()
	i := len(c.calls)
	c.calls = append(c.calls, Call{Model: model, Messages: messages, Temperature: temperature})
	c.mu.Unlock()

	if c.GenerateFunc == nil {
		return "", nil
	}
	return c.GenerateFunc(ctx, i, model)
}

func (c *Client) Stream(ctx context.Context, model string, messages []models.Message, temperature float64) (<-chan models.Chunk, error) {
	c.mu.Lock()
	c.streams = append(c.streams, Call{Model: model, Messages: messages, Temperature: temperature})
	c.mu.Unlock()

	if c.OpenErr != nil {
		return nil, c.OpenErr
	}

	ch := make(chan models.Chunk)
	go func() {
		defer close(ch)
		if c.Release != nil {
			select {
			case <-c.Release:
			case <-ctx.Done():
				return
			}
		}
		for _, fragment := range c.Fragments {
			select {
			case ch <- models.Chunk{Content: fragment}:
			case <-ctx.Done():
				return
			}
		}
		if c.StreamErr != nil {
			select {
			case ch <- models.Chunk{Err: c.StreamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func (c *Client) ListModels(context.Context) ([]models.ModelDescriptor, error) {
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	return c.Models, nil
}

// Calls returns the Generate invocations observed so far.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Streams returns the Stream invocations observed so far.
func (c *Client) Streams() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.streams...)
}
