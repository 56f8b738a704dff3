package model

import "time"

// UserToken is the stored identity of a signed-in user together with the
// encrypted Google refresh token.
type UserToken struct {
	UserID                string    `json:"user_id" dynamodbav:"user_id"`
	Email                 string    `json:"email" dynamodbav:"email"`
	Name                  string    `json:"name" dynamodbav:"name"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token" dynamodbav:"encrypted_refresh_token"`
	BaseFolderID          string    `json:"base_folder_id" dynamodbav:"base_folder_id"` // Drive folder holding the user's notes
	UpdatedAt             time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Folder is a named container of notes owned by one user.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a titled HTML document inside a folder.
type Note struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	FolderID      string    `json:"folder_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Version identifies the stored revision of n. Clients echo it in If-Match.
func (n Note) Version() string {
	return n.LastUpdatedAt.UTC().Format(time.RFC3339Nano)
}

// EventType names an audited mutation.
type EventType string

const (
	FolderCreated EventType = "FOLDER_CREATED"
	FolderUpdated EventType = "FOLDER_UPDATED"
	FolderDeleted EventType = "FOLDER_DELETED"
	NoteCreated   EventType = "NOTE_CREATED"
	NoteUpdated   EventType = "NOTE_UPDATED"
	NoteDeleted   EventType = "NOTE_DELETED"
)

// Event is one audit record. Payload holds the fields the mutation set.
type Event struct {
	ID          string         `json:"id" dynamodbav:"id"`
	UserID      string         `json:"-" dynamodbav:"user_id"`
	AggregateID string         `json:"aggregate_id" dynamodbav:"aggregate_id"`
	Type        EventType      `json:"type" dynamodbav:"type"`
	Payload     map[string]any `json:"payload" dynamodbav:"payload"`
	CreatedAt   time.Time      `json:"created_at" dynamodbav:"created_at"`
}
