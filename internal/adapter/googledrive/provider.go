package googledrive

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/model"
)

// Tokens is the part of auth.AuthService the provider needs.
type Tokens interface {
	GetUserToken(ctx context.Context, userID string) (*model.UserToken, error)
	GetClient(ctx context.Context, userID string) (*http.Client, error)
	UpdateBaseFolderID(ctx context.Context, userID, folderID string) error
}

// Provider implements adapter.StorageProvider for Google Drive.
type Provider struct {
	tokens Tokens
}

// NewProvider creates a new Google Drive provider.
func NewProvider(tokens Tokens) *Provider {
	return &Provider{tokens: tokens}
}

// GetAdapter returns a DriveAdapter for the given user ID. The user's
// Notely folder is created on first use and remembered in their token
// record.
func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	var baseFolderID string
	if token, err := p.tokens.GetUserToken(ctx, userID); err == nil {
		baseFolderID = token.BaseFolderID
	}

	client, err := p.tokens.GetClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	storage, err := NewDriveAdapter(ctx, client, baseFolderID)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}

	if baseFolderID == "" {
		id, err := storage.EnsureRootFolder(ctx, RootFolderName)
		if err != nil {
			return nil, err
		}
		storage.BaseFolderID = id
		if err := p.tokens.UpdateBaseFolderID(ctx, userID, id); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("could not remember base folder")
		}
	}
	return storage, nil
}
