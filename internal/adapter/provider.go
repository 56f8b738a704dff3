package adapter

import (
	"context"
)

// StorageProvider hands out the StorageAdapter holding one user's folders
// and notes.
type StorageProvider interface {
	// GetAdapter returns a StorageAdapter for the given user ID.
	GetAdapter(ctx context.Context, userID string) (StorageAdapter, error)
}
