// Package model holds the records exchanged between the Notely client and
// the REST backend.
package model

// Folder is a named container of notes.
// Expanded is view state only and never leaves the client.
type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Expanded bool   `json:"-"`
}

// Note is a single note. Content is an HTML fragment produced by the editor.
// LastUpdatedAt is an RFC3339 timestamp used for display only.
type Note struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	FolderID      string `json:"folder_id"`
	LastUpdatedAt string `json:"last_updated_at"`
}

// FolderPatch is the partial body sent to update a folder.
type FolderPatch struct {
	Name *string `json:"name,omitempty"`
}

// NotePatch is the partial body sent to create or update a note.
// Nil fields are left untouched by the backend.
type NotePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}
