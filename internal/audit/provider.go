package audit

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/model"
)

// Emitter publishes audit events.
type Emitter interface {
	Emit(ctx context.Context, userID string, typ model.EventType, aggregateID string, payload map[string]any) error
}

// Provider wraps a StorageProvider so every successful mutation emits an
// event. A failed emit is logged; the mutation has already happened.
type Provider struct {
	inner   adapter.StorageProvider
	emitter Emitter
}

func NewProvider(inner adapter.StorageProvider, emitter Emitter) *Provider {
	return &Provider{inner: inner, emitter: emitter}
}

func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	s, err := p.inner.GetAdapter(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &audited{StorageAdapter: s, userID: userID, emitter: p.emitter}, nil
}

type audited struct {
	adapter.StorageAdapter
	userID  string
	emitter Emitter
}

func (a *audited) emit(ctx context.Context, typ model.EventType, id string, payload map[string]any) {
	if err := a.emitter.Emit(ctx, a.userID, typ, id, payload); err != nil {
		log.Warn().Err(err).Str("user_id", a.userID).Str("type", string(typ)).Str("aggregate_id", id).Msg("audit emit failed")
	}
}

func (a *audited) CreateFolder(ctx context.Context, name string) (*model.Folder, error) {
	f, err := a.StorageAdapter.CreateFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	a.emit(ctx, model.FolderCreated, f.ID, map[string]any{"name": name})
	return f, nil
}

func (a *audited) RenameFolder(ctx context.Context, id, name string) (*model.Folder, error) {
	f, err := a.StorageAdapter.RenameFolder(ctx, id, name)
	if err != nil {
		return nil, err
	}
	a.emit(ctx, model.FolderUpdated, id, map[string]any{"name": name})
	return f, nil
}

func (a *audited) DeleteFolder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := a.StorageAdapter.DeleteFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	a.emit(ctx, model.FolderDeleted, id, nil)
	return f, nil
}

func (a *audited) CreateNote(ctx context.Context, folderID, title, content string) (*model.Note, error) {
	n, err := a.StorageAdapter.CreateNote(ctx, folderID, title, content)
	if err != nil {
		return nil, err
	}
	a.emit(ctx, model.NoteCreated, n.ID, map[string]any{
		"folder_id": folderID,
		"title":     title,
		"content":   content,
	})
	return n, nil
}

func (a *audited) UpdateNote(ctx context.Context, folderID, noteID string, patch adapter.NotePatch) (*model.Note, error) {
	n, err := a.StorageAdapter.UpdateNote(ctx, folderID, noteID, patch)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if patch.Title != nil {
		payload["title"] = *patch.Title
	}
	if patch.Content != nil {
		payload["content"] = *patch.Content
	}
	a.emit(ctx, model.NoteUpdated, noteID, payload)
	return n, nil
}

func (a *audited) DeleteNote(ctx context.Context, folderID, noteID string) (*model.Note, error) {
	n, err := a.StorageAdapter.DeleteNote(ctx, folderID, noteID)
	if err != nil {
		return nil, err
	}
	a.emit(ctx, model.NoteDeleted, noteID, nil)
	return n, nil
}
