package app

import (
	"context"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/handler"
)

// HybridProvider sends demo users to in-memory storage and everyone else to
// the configured backend.
type HybridProvider struct {
	primary adapter.StorageProvider
	demo    adapter.StorageProvider
}

func NewHybridProvider(primary, demo adapter.StorageProvider) *HybridProvider {
	return &HybridProvider{primary: primary, demo: demo}
}

func (h *HybridProvider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	if handler.IsDemoUser(userID) {
		return h.demo.GetAdapter(ctx, userID)
	}
	return h.primary.GetAdapter(ctx, userID)
}
