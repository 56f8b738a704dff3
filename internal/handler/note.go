package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/microcosm-cc/bluemonday"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/model"
)

// sanitizer strips scripts and event handlers from note HTML while keeping
// the formatting an editor produces.
var sanitizer = bluemonday.UGCPolicy()

// NoteHandler serves /folders/{folderId}/notes.
type NoteHandler struct {
	storageBase
}

func NewNoteHandler(provider adapter.StorageProvider, jwtSecret string) *NoteHandler {
	return &NoteHandler{storageBase{provider: provider, jwtSecret: jwtSecret}}
}

type createNoteRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content"`
}

type updateNoteRequest struct {
	Title   *string `json:"title" validate:"omitempty,min=1,max=255"`
	Content *string `json:"content"`
}

func noteResponse(status int, n *model.Note) events.APIGatewayProxyResponse {
	resp := jsonResponse(status, n)
	resp.Headers["ETag"] = `"` + n.Version() + `"`
	return resp
}

// ListNotes handles GET /folders/{folderId}/notes?limit=&offset=.
func (h *NoteHandler) ListNotes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	page, err := parsePage(req.QueryStringParameters)
	if err != nil {
		return failure(err, "list notes"), nil
	}
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	notes, err := storage.ListNotes(ctx, req.PathParameters["folderId"], page)
	if err != nil {
		return failure(err, "list notes"), nil
	}
	return jsonResponse(http.StatusOK, notes), nil
}

// CreateNote handles POST /folders/{folderId}/notes.
func (h *NoteHandler) CreateNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	var in createNoteRequest
	if err := decode(req.Body, &in); err != nil {
		return failure(err, "create note"), nil
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return failure(err, "create note"), nil
	}

	note, err := storage.CreateNote(ctx, req.PathParameters["folderId"], in.Title, sanitizer.Sanitize(in.Content))
	if err != nil {
		return failure(err, "create note"), nil
	}
	return noteResponse(http.StatusCreated, note), nil
}

// UpdateNote handles PUT /folders/{folderId}/notes/{noteId}. Absent fields
// are left as they are. An If-Match header must carry the note's current
// ETag.
func (h *NoteHandler) UpdateNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	var in updateNoteRequest
	if err := decode(req.Body, &in); err != nil {
		return failure(err, "update note"), nil
	}

	patch := adapter.NotePatch{
		IfMatch: strings.Trim(header(req, "If-Match"), `"`),
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return errorResponse(http.StatusBadRequest, "title must not be empty"), nil
		}
		patch.Title = &title
	}
	if in.Content != nil {
		clean := sanitizer.Sanitize(*in.Content)
		patch.Content = &clean
	}

	note, err := storage.UpdateNote(ctx, req.PathParameters["folderId"], req.PathParameters["noteId"], patch)
	if err != nil {
		return failure(err, "update note"), nil
	}
	return noteResponse(http.StatusOK, note), nil
}

// DeleteNote handles DELETE /folders/{folderId}/notes/{noteId}.
func (h *NoteHandler) DeleteNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	storage, err := h.storage(ctx, req)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	note, err := storage.DeleteNote(ctx, req.PathParameters["folderId"], req.PathParameters["noteId"])
	if err != nil {
		return failure(err, "delete note"), nil
	}
	return jsonResponse(http.StatusOK, note), nil
}
