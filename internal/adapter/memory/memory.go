package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/model"
)

// Demo accounts are capped so a public instance cannot be used as storage.
const (
	maxDemoContentSize = 256 * 1024 // 256KB
	maxDemoTitleLength = 255
	maxDemoItemCount   = 50
)

// MemoryAdapter implements adapter.StorageAdapter for one user.
// It keeps records in a process map, or in DynamoDB when the provider was
// given a client.
type MemoryAdapter struct {
	store   itemStore
	userID  string
	now     func() time.Time
	limited bool

	// mu serializes this user's compound operations (count then insert,
	// cascade delete).
	mu sync.Mutex
}

func (m *MemoryAdapter) stamp() time.Time {
	return m.now().UTC()
}

// own loads id and hides records of other users or of the wrong kind.
func (m *MemoryAdapter) own(ctx context.Context, id, kind string) (*Item, error) {
	item, err := m.store.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.UserID != m.userID || item.Kind != kind {
		return nil, adapter.ErrNotFound
	}
	return item, nil
}

func (m *MemoryAdapter) checkCount(ctx context.Context) error {
	if !m.limited {
		return nil
	}
	items, err := m.store.list(ctx, m.userID)
	if err != nil {
		return err
	}
	if len(items) >= maxDemoItemCount {
		return fmt.Errorf("%w: at most %d items per account", adapter.ErrLimitExceeded, maxDemoItemCount)
	}
	return nil
}

// checkTitle counts characters, matching the handlers' max=255 validation.
func (m *MemoryAdapter) checkTitle(s string) error {
	if m.limited && utf8.RuneCountInString(s) > maxDemoTitleLength {
		return fmt.Errorf("%w: name too long (max %d characters)", adapter.ErrLimitExceeded, maxDemoTitleLength)
	}
	return nil
}

func (m *MemoryAdapter) checkContent(s string) error {
	if m.limited && len(s) > maxDemoContentSize {
		return fmt.Errorf("%w: content too large (max %d bytes)", adapter.ErrLimitExceeded, maxDemoContentSize)
	}
	return nil
}

func toFolder(item Item) model.Folder {
	return model.Folder{ID: item.ID, Name: item.Name, CreatedAt: item.CreatedAt}
}

func toNote(item Item) model.Note {
	return model.Note{
		ID:            item.ID,
		Title:         item.Name,
		Content:       item.Content,
		FolderID:      item.FolderID,
		CreatedAt:     item.CreatedAt,
		LastUpdatedAt: item.LastUpdatedAt,
	}
}

func (m *MemoryAdapter) ListFolders(ctx context.Context, page adapter.Page) ([]model.Folder, error) {
	items, err := m.store.list(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	folders := []model.Folder{}
	for _, item := range items {
		if item.Kind == kindFolder {
			folders = append(folders, toFolder(item))
		}
	}
	adapter.SortFolders(folders)
	lo, hi := page.Bounds(len(folders))
	return folders[lo:hi], nil
}

func (m *MemoryAdapter) GetFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	item, err := m.own(ctx, folderID, kindFolder)
	if err != nil {
		return nil, err
	}
	f := toFolder(*item)
	return &f, nil
}

func (m *MemoryAdapter) CreateFolder(ctx context.Context, name string) (*model.Folder, error) {
	if err := m.checkTitle(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkCount(ctx); err != nil {
		return nil, err
	}

	now := m.stamp()
	id := uuid.New().String()
	item := Item{
		PK:            id,
		UserID:        m.userID,
		Kind:          kindFolder,
		ID:            id,
		Name:          name,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := m.store.put(ctx, item); err != nil {
		return nil, err
	}
	f := toFolder(item)
	return &f, nil
}

func (m *MemoryAdapter) RenameFolder(ctx context.Context, folderID, name string) (*model.Folder, error) {
	if err := m.checkTitle(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.own(ctx, folderID, kindFolder)
	if err != nil {
		return nil, err
	}
	item.Name = name
	item.LastUpdatedAt = m.stamp()
	if err := m.store.put(ctx, *item); err != nil {
		return nil, err
	}
	f := toFolder(*item)
	return &f, nil
}

func (m *MemoryAdapter) DeleteFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.own(ctx, folderID, kindFolder)
	if err != nil {
		return nil, err
	}
	items, err := m.store.list(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	for _, child := range items {
		if child.Kind == kindNote && child.FolderID == folderID {
			if err := m.store.delete(ctx, child.PK); err != nil {
				return nil, err
			}
		}
	}
	if err := m.store.delete(ctx, item.PK); err != nil {
		return nil, err
	}
	f := toFolder(*item)
	return &f, nil
}

func (m *MemoryAdapter) ListNotes(ctx context.Context, folderID string, page adapter.Page) ([]model.Note, error) {
	if _, err := m.own(ctx, folderID, kindFolder); err != nil {
		return nil, err
	}
	items, err := m.store.list(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	notes := []model.Note{}
	for _, item := range items {
		if item.Kind == kindNote && item.FolderID == folderID {
			notes = append(notes, toNote(item))
		}
	}
	adapter.SortNotes(notes)
	lo, hi := page.Bounds(len(notes))
	return notes[lo:hi], nil
}

func (m *MemoryAdapter) CreateNote(ctx context.Context, folderID, title, content string) (*model.Note, error) {
	if err := m.checkTitle(title); err != nil {
		return nil, err
	}
	if err := m.checkContent(content); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.own(ctx, folderID, kindFolder); err != nil {
		return nil, err
	}
	if err := m.checkCount(ctx); err != nil {
		return nil, err
	}

	now := m.stamp()
	id := uuid.New().String()
	item := Item{
		PK:            id,
		UserID:        m.userID,
		Kind:          kindNote,
		ID:            id,
		FolderID:      folderID,
		Name:          title,
		Content:       content,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := m.store.put(ctx, item); err != nil {
		return nil, err
	}
	n := toNote(item)
	return &n, nil
}

func (m *MemoryAdapter) note(ctx context.Context, folderID, noteID string) (*Item, error) {
	item, err := m.own(ctx, noteID, kindNote)
	if err != nil {
		return nil, err
	}
	if item.FolderID != folderID {
		return nil, adapter.ErrNotFound
	}
	return item, nil
}

func (m *MemoryAdapter) UpdateNote(ctx context.Context, folderID, noteID string, patch adapter.NotePatch) (*model.Note, error) {
	if patch.Title != nil {
		if err := m.checkTitle(*patch.Title); err != nil {
			return nil, err
		}
	}
	if patch.Content != nil {
		if err := m.checkContent(*patch.Content); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.note(ctx, folderID, noteID)
	if err != nil {
		return nil, err
	}
	if patch.IfMatch != "" && patch.IfMatch != toNote(*item).Version() {
		return nil, adapter.ErrPreconditionFailed
	}
	if patch.Title != nil {
		item.Name = *patch.Title
	}
	if patch.Content != nil {
		item.Content = *patch.Content
	}
	now := m.stamp()
	if !now.After(item.LastUpdatedAt) {
		// keep versions distinct on coarse clocks
		now = item.LastUpdatedAt.Add(time.Microsecond)
	}
	item.LastUpdatedAt = now
	if err := m.store.put(ctx, *item); err != nil {
		return nil, err
	}
	n := toNote(*item)
	return &n, nil
}

func (m *MemoryAdapter) DeleteNote(ctx context.Context, folderID, noteID string) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.note(ctx, folderID, noteID)
	if err != nil {
		return nil, err
	}
	if err := m.store.delete(ctx, item.PK); err != nil {
		return nil, err
	}
	n := toNote(*item)
	return &n, nil
}

// Provider implements adapter.StorageProvider backed by DynamoDB (or memory
// if no client is given).
type Provider struct {
	store     itemStore
	now       func() time.Time
	unlimited bool
	stores    map[string]*MemoryAdapter
	mu        sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithoutLimits lifts the demo caps on item count, title length and content
// size. It is for accounts that are not demo sessions.
func WithoutLimits() Option {
	return func(p *Provider) { p.unlimited = true }
}

// WithDynamo persists records in table through client.
func WithDynamo(client DynamoAPI, table string) Option {
	return func(p *Provider) {
		if client != nil {
			p.store = &dynamoStore{client: client, table: table}
		}
	}
}

// NewProvider returns a provider whose users share one in-process map unless
// WithDynamo is given.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		store:  newMapStore(),
		now:    time.Now,
		stores: make(map[string]*MemoryAdapter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) GetAdapter(_ context.Context, userID string) (adapter.StorageAdapter, error) {
	if userID == "" {
		return nil, errors.New("memory: empty user id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.stores[userID]
	if !ok {
		m = &MemoryAdapter{store: p.store, userID: userID, now: p.now, limited: !p.unlimited}
		p.stores[userID] = m
	}
	return m, nil
}
