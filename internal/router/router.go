package router

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ollama-gateway/internal/config"
	"ollama-gateway/internal/models"
	"ollama-gateway/internal/provider"
)

// Router resolves the model for a request and dispatches it to the
// inference client, fanning out buffered requests into independent calls.
type Router struct {
	client      provider.Client
	models      config.ModelsConfig
	maxParallel int
}

// New constructs a router backed by the provided client.
func New(client provider.Client, modelsCfg config.ModelsConfig, maxParallel int) (*Router, error) {
	if client == nil {
		return nil, errors.New("inference client must not be nil")
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Router{
		client:      client,
		models:      modelsCfg,
		maxParallel: maxParallel,
	}, nil
}

// ResolveModel returns the upstream model name for a requested one.
func (r *Router) ResolveModel(requested string) string {
	return r.models.ResolveModel(requested)
}

// Complete issues req.N independent buffered generations. results[i] is the
// reply to the i-th issued call. The first failure cancels the calls still in
// flight and is returned as is.
func (r *Router) Complete(ctx context.Context, req models.CompletionRequest) ([]models.CompletionResult, error) {
	model := r.ResolveModel(req.Model)
	n := req.N
	if n < 1 {
		n = 1
	}

	results := make([]models.CompletionResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)

	for i := 0; i < n; i++ {
		i := i
		messages := models.CloneMessages(req.Messages)
		g.Go(func() error {
			content, err := r.client.Generate(gctx, model, messages, req.Temperature)
			if err != nil {
				return fmt.Errorf("provider %s generate (choice %d): %w", r.client.Name(), i, err)
			}
			results[i] = models.CompletionResult{Model: model, Content: content}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stream opens a single incremental generation; req.N is ignored. The
// resolved model is returned together with the fragment channel as soon as
// the upstream accepted the request.
func (r *Router) Stream(ctx context.Context, req models.CompletionRequest) (string, <-chan models.Chunk, error) {
	model := r.ResolveModel(req.Model)

	chunks, err := r.client.Stream(ctx, model, models.CloneMessages(req.Messages), req.Temperature)
	if err != nil {
		return model, nil, fmt.Errorf("provider %s stream: %w", r.client.Name(), err)
	}
	return model, chunks, nil
}
