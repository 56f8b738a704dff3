package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/notely/notely/internal/adapter"
)

// storageBase resolves the caller's StorageAdapter.
type storageBase struct {
	provider  adapter.StorageProvider
	jwtSecret string
}

func (b storageBase) storage(ctx context.Context, req events.APIGatewayProxyRequest) (adapter.StorageAdapter, error) {
	userID, err := GetUserID(req, b.jwtSecret)
	if err != nil {
		return nil, err
	}
	return b.provider.GetAdapter(ctx, userID)
}

// FolderHandler serves /folders.
type FolderHandler struct {
	storageBase
}

func NewFolderHandler(provider adapter.StorageProvider, jwtSecret string) *FolderHandler {
	return &FolderHandler{storageBase{provider: provider, jwtSecret: jwtSecret}}
}

type folderRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func decodeFolder(body string) (folderRequest, error) {
	var in folderRequest
	if err := decode(body, &in); err != nil {
		return in, err
	}
	in.Name = strings.TrimSpace(in.Name)
	return in, validate.Struct(in)
}

// ListFolders handles GET /folders?limit=&offset=.
func (h *FolderHandler) ListFolders(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	page, err := parsePage(req.QueryStringParameters)
	if err != nil {
		return failure(err, "list folders"), nil
	}
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	folders, err := storage.ListFolders(ctx, page)
	if err != nil {
		return failure(err, "list folders"), nil
	}
	return jsonResponse(http.StatusOK, folders), nil
}

// CreateFolder handles POST /folders.
func (h *FolderHandler) CreateFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	in, err := decodeFolder(req.Body)
	if err != nil {
		return failure(err, "create folder"), nil
	}
	folder, err := storage.CreateFolder(ctx, in.Name)
	if err != nil {
		return failure(err, "create folder"), nil
	}
	return jsonResponse(http.StatusCreated, folder), nil
}

// RenameFolder handles PUT /folders/{folderId}.
func (h *FolderHandler) RenameFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	in, err := decodeFolder(req.Body)
	if err != nil {
		return failure(err, "rename folder"), nil
	}
	folder, err := storage.RenameFolder(ctx, req.PathParameters["folderId"], in.Name)
	if err != nil {
		return failure(err, "rename folder"), nil
	}
	return jsonResponse(http.StatusOK, folder), nil
}

// DeleteFolder handles DELETE /folders/{folderId}. The folder's notes go
// with it.
func (h *FolderHandler) DeleteFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	folder, err := storage.DeleteFolder(ctx, req.PathParameters["folderId"])
	if err != nil {
		return failure(err, "delete folder"), nil
	}
	return jsonResponse(http.StatusOK, folder), nil
}
