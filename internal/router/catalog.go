package router

import (
	"context"
	"fmt"

	"ollama-gateway/internal/models"
)

// ListModels returns the models currently installed upstream. Nothing is cached.
func (r *Router) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	descriptors, err := r.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider %s list models: %w", r.client.Name(), err)
	}
	if descriptors == nil {
		descriptors = []models.ModelDescriptor{}
	}
	return descriptors, nil
}
