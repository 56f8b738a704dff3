package adapter

import (
	"context"
	"sort"

	"github.com/notely/notely/internal/model"
)

// Default paging, matching the REST API.
const (
	DefaultLimit = 20
)

// Page is a limit/offset window over a sorted listing.
type Page struct {
	Limit  int `validate:"gte=1"`
	Offset int `validate:"gte=0"`
}

// Bounds returns the slice bounds of p over n items.
func (p Page) Bounds(n int) (lo, hi int) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	lo = p.Offset
	if lo < 0 {
		lo = 0
	}
	if lo > n {
		lo = n
	}
	hi = lo + limit
	if hi > n {
		hi = n
	}
	return lo, hi
}

// NotePatch is a partial note update. Nil fields are left unchanged.
// A non-empty IfMatch must equal the stored note's Version.
type NotePatch struct {
	Title   *string
	Content *string
	IfMatch string
}

// StorageAdapter is one user's folders and notes. Implementations return
// ErrNotFound for unknown ids, including ids of another user's records.
type StorageAdapter interface {
	// ListFolders returns folders oldest first.
	ListFolders(ctx context.Context, page Page) ([]model.Folder, error)

	// GetFolder returns a single folder.
	GetFolder(ctx context.Context, folderID string) (*model.Folder, error)

	CreateFolder(ctx context.Context, name string) (*model.Folder, error)

	RenameFolder(ctx context.Context, folderID, name string) (*model.Folder, error)

	// DeleteFolder removes the folder and every note in it, returning the
	// folder as it was.
	DeleteFolder(ctx context.Context, folderID string) (*model.Folder, error)

	// ListNotes returns the folder's notes ordered by last update, oldest
	// first.
	ListNotes(ctx context.Context, folderID string, page Page) ([]model.Note, error)

	// CreateNote fails with ErrNotFound when the folder does not exist.
	CreateNote(ctx context.Context, folderID, title, content string) (*model.Note, error)

	// UpdateNote applies patch and refreshes LastUpdatedAt.
	UpdateNote(ctx context.Context, folderID, noteID string, patch NotePatch) (*model.Note, error)

	DeleteNote(ctx context.Context, folderID, noteID string) (*model.Note, error)
}

// SortFolders orders folders by creation time, then id.
func SortFolders(folders []model.Folder) {
	sort.SliceStable(folders, func(i, j int) bool {
		if folders[i].CreatedAt.Equal(folders[j].CreatedAt) {
			return folders[i].ID < folders[j].ID
		}
		return folders[i].CreatedAt.Before(folders[j].CreatedAt)
	})
}

// SortNotes orders notes by last update, then id.
func SortNotes(notes []model.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].LastUpdatedAt.Equal(notes[j].LastUpdatedAt) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].LastUpdatedAt.Before(notes[j].LastUpdatedAt)
	})
}
