// Package api is the client's REST facade. HTTPClient talks to the Notely
// backend; Fake is the in-memory double selected in testing mode.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/notely/notely/core/config"
	"github.com/notely/notely/core/model"
)

// Client wraps one REST call per method. Errors are returned unchanged and
// nothing is retried.
type Client interface {
	FetchFolders(ctx context.Context, limit, offset int) ([]model.Folder, error)
	CreateFolder(ctx context.Context, folder model.Folder) (model.Folder, error)
	UpdateFolder(ctx context.Context, folderID string, patch model.FolderPatch) (model.Folder, error)
	DeleteFolder(ctx context.Context, folderID string) (model.Folder, error)

	FetchFolderNotes(ctx context.Context, folderID string) ([]model.Note, error)
	CreateNote(ctx context.Context, folderID string, patch model.NotePatch) (model.Note, error)
	UpdateNote(ctx context.Context, folderID, noteID string, patch model.NotePatch) (model.Note, error)
	DeleteNote(ctx context.Context, folderID, noteID string) (model.Note, error)
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// DefaultFolderPage is the window the app loads on start.
var DefaultFolderPage = Page{Limit: 50, Offset: 0}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// TokenGetter yields the bearer token; "" means send no Authorization header.
// auth.Authenticator satisfies it.
type TokenGetter interface {
	GetToken(ctx context.Context) (string, error)
}

// New returns a Fake in testing mode, otherwise an HTTPClient for cfg.APIURL.
func New(cfg config.Config, tokens TokenGetter) Client {
	if cfg.IsTesting() {
		return NewFake()
	}
	return NewHTTPClient(cfg.APIURL, tokens, WithTimeout(cfg.APITimeout))
}
