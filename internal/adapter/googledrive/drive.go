package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/model"
)

const (
	folderMIME = "application/vnd.google-apps.folder"
	noteMIME   = "text/html"
	noteExt    = ".html"
	fileFields = "id, name, mimeType, createdTime, modifiedTime, parents"
)

// RootFolderName is the Drive folder created to hold a user's notes.
const RootFolderName = "Notely"

// toDriveName appends .html extension for storage on Google Drive.
func toDriveName(name string) string {
	if strings.HasSuffix(name, noteExt) {
		return name
	}
	return name + noteExt
}

// fromDriveName strips .html extension when returning titles to the API.
func fromDriveName(name string) string {
	return strings.TrimSuffix(name, noteExt)
}

// quote escapes s for a Drive query string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, `'`, `\'`) + "'"
}

func driveTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t.UTC()
}

// DriveAdapter implements adapter.StorageAdapter for Google Drive. Folders
// are Drive folders directly under BaseFolderID and notes are .html files
// inside them.
type DriveAdapter struct {
	service      *drive.Service
	BaseFolderID string
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client with specific user credentials.
func NewDriveAdapter(ctx context.Context, client *http.Client, baseFolderID string, opts ...option.ClientOption) (*DriveAdapter, error) {
	srv, err := drive.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv, BaseFolderID: baseFolderID}, nil
}

func (d *DriveAdapter) base() string {
	if d.BaseFolderID != "" {
		return d.BaseFolderID
	}
	return "root"
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}

func wrap(op string, err error) error {
	if isNotFound(err) {
		return adapter.ErrNotFound
	}
	return fmt.Errorf("unable to %s: %w", op, err)
}

func hasParent(f *drive.File, parent string) bool {
	for _, p := range f.Parents {
		if p == parent {
			return true
		}
	}
	return false
}

func toFolder(f *drive.File) model.Folder {
	return model.Folder{ID: f.Id, Name: f.Name, CreatedAt: driveTime(f.CreatedTime)}
}

func toNote(f *drive.File, folderID, content string) model.Note {
	return model.Note{
		ID:            f.Id,
		Title:         fromDriveName(f.Name),
		Content:       content,
		FolderID:      folderID,
		CreatedAt:     driveTime(f.CreatedTime),
		LastUpdatedAt: driveTime(f.ModifiedTime),
	}
}

// list returns every file matching q, following page tokens.
func (d *DriveAdapter) list(ctx context.Context, q, orderBy string) ([]*drive.File, error) {
	var files []*drive.File
	err := d.service.Files.List().
		Q(q).
		OrderBy(orderBy).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
		Pages(ctx, func(r *drive.FileList) error {
			files = append(files, r.Files...)
			return nil
		})
	if err != nil {
		return nil, wrap("list files", err)
	}
	return files, nil
}

func (d *DriveAdapter) download(ctx context.Context, fileID string) (string, error) {
	resp, err := d.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return "", wrap("download file", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("unable to read file content: %w", err)
	}
	return string(b), nil
}

func (d *DriveAdapter) ListFolders(ctx context.Context, page adapter.Page) ([]model.Folder, error) {
	q := fmt.Sprintf("%s in parents and trashed = false and mimeType = '%s'", quote(d.base()), folderMIME)
	files, err := d.list(ctx, q, "createdTime")
	if err != nil {
		return nil, err
	}
	folders := make([]model.Folder, 0, len(files))
	for _, f := range files {
		folders = append(folders, toFolder(f))
	}
	adapter.SortFolders(folders)
	lo, hi := page.Bounds(len(folders))
	return folders[lo:hi], nil
}

// folder fetches folderID and checks it is one of the user's folders.
func (d *DriveAdapter) folder(ctx context.Context, folderID string) (*drive.File, error) {
	f, err := d.service.Files.Get(folderID).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return nil, wrap("get folder", err)
	}
	if f.MimeType != folderMIME || !hasParent(f, d.base()) {
		return nil, adapter.ErrNotFound
	}
	return f, nil
}

func (d *DriveAdapter) GetFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	f, err := d.folder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	out := toFolder(f)
	return &out, nil
}

func (d *DriveAdapter) CreateFolder(ctx context.Context, name string) (*model.Folder, error) {
	res, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMIME,
		Parents:  []string{d.base()},
	}).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return nil, wrap("create folder", err)
	}
	out := toFolder(res)
	return &out, nil
}

func (d *DriveAdapter) RenameFolder(ctx context.Context, folderID, name string) (*model.Folder, error) {
	if _, err := d.folder(ctx, folderID); err != nil {
		return nil, err
	}
	res, err := d.service.Files.Update(folderID, &drive.File{Name: name}).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return nil, wrap("rename folder", err)
	}
	out := toFolder(res)
	return &out, nil
}

// DeleteFolder deletes the Drive folder; Drive removes its files with it.
func (d *DriveAdapter) DeleteFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	f, err := d.folder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := d.service.Files.Delete(folderID).Context(ctx).Do(); err != nil {
		return nil, wrap("delete folder", err)
	}
	out := toFolder(f)
	return &out, nil
}

func (d *DriveAdapter) ListNotes(ctx context.Context, folderID string, page adapter.Page) ([]model.Note, error) {
	if _, err := d.folder(ctx, folderID); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("%s in parents and trashed = false and mimeType != '%s' and name contains '%s'", quote(folderID), folderMIME, noteExt)
	files, err := d.list(ctx, q, "modifiedTime")
	if err != nil {
		return nil, err
	}
	notes := make([]model.Note, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Name, noteExt) {
			notes = append(notes, toNote(f, folderID, ""))
		}
	}
	adapter.SortNotes(notes)
	lo, hi := page.Bounds(len(notes))
	notes = notes[lo:hi]
	for i := range notes {
		content, err := d.download(ctx, notes[i].ID)
		if err != nil {
			return nil, err
		}
		notes[i].Content = content
	}
	return notes, nil
}

func (d *DriveAdapter) CreateNote(ctx context.Context, folderID, title, content string) (*model.Note, error) {
	if _, err := d.folder(ctx, folderID); err != nil {
		return nil, err
	}
	res, err := d.service.Files.Create(&drive.File{
		Name:     toDriveName(title),
		MimeType: noteMIME,
		Parents:  []string{folderID},
	}).Context(ctx).Media(strings.NewReader(content)).Fields(fileFields).Do()
	if err != nil {
		return nil, wrap("create note", err)
	}
	out := toNote(res, folderID, content)
	return &out, nil
}

// note fetches noteID and checks it lives in folderID.
func (d *DriveAdapter) note(ctx context.Context, folderID, noteID string) (*drive.File, error) {
	f, err := d.service.Files.Get(noteID).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return nil, wrap("get note", err)
	}
	if f.MimeType == folderMIME || !hasParent(f, folderID) {
		return nil, adapter.ErrNotFound
	}
	return f, nil
}

func (d *DriveAdapter) UpdateNote(ctx context.Context, folderID, noteID string, patch adapter.NotePatch) (*model.Note, error) {
	current, err := d.note(ctx, folderID, noteID)
	if err != nil {
		return nil, err
	}
	if patch.IfMatch != "" && patch.IfMatch != toNote(current, folderID, "").Version() {
		return nil, adapter.ErrPreconditionFailed
	}

	meta := &drive.File{}
	if patch.Title != nil {
		meta.Name = toDriveName(*patch.Title)
	}
	call := d.service.Files.Update(noteID, meta).Context(ctx).Fields(fileFields)
	if patch.Content != nil {
		call = call.Media(strings.NewReader(*patch.Content))
	}
	res, err := call.Do()
	if err != nil {
		return nil, wrap("update note", err)
	}

	var content string
	if patch.Content != nil {
		content = *patch.Content
	} else if content, err = d.download(ctx, noteID); err != nil {
		return nil, err
	}
	out := toNote(res, folderID, content)
	return &out, nil
}

func (d *DriveAdapter) DeleteNote(ctx context.Context, folderID, noteID string) (*model.Note, error) {
	f, err := d.note(ctx, folderID, noteID)
	if err != nil {
		return nil, err
	}
	content, err := d.download(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := d.service.Files.Delete(noteID).Context(ctx).Do(); err != nil {
		return nil, wrap("delete note", err)
	}
	out := toNote(f, folderID, content)
	return &out, nil
}

// EnsureRootFolder returns the id of the named folder at the Drive root,
// creating it if needed.
func (d *DriveAdapter) EnsureRootFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = %s and mimeType = '%s' and 'root' in parents and trashed = false", quote(name), folderMIME)
	r, err := d.service.Files.List().Context(ctx).Q(q).Fields("files(id)").Do()
	if err != nil {
		return "", wrap("search for root folder", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}
	res, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMIME,
		Parents:  []string{"root"},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", wrap("create root folder", err)
	}
	return res.Id, nil
}
