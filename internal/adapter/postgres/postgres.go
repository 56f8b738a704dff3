// Package postgres stores folders and notes in PostgreSQL. Every query is
// scoped by user id; notes reference their folder with ON DELETE CASCADE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/model"
)

// DB is the part of *pgxpool.Pool the adapters use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// mapError turns driver errors into adapter errors. Malformed ids and
// missing foreign keys are reported as ErrNotFound.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return adapter.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.InvalidTextRepresentation, pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%w: %s", adapter.ErrNotFound, pgErr.Message)
		}
	}
	return err
}

// Adapter implements adapter.StorageAdapter for one user.
type Adapter struct {
	db     DB
	userID string
}

const noteColumns = `id::text, title, content, folder_id::text, created_at, last_updated_at`

func scanNote(row pgx.Row) (*model.Note, error) {
	var n model.Note
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.FolderID, &n.CreatedAt, &n.LastUpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &n, nil
}

func scanFolder(row pgx.Row) (*model.Folder, error) {
	var f model.Folder
	if err := row.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (a *Adapter) ListFolders(ctx context.Context, page adapter.Page) ([]model.Folder, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = adapter.DefaultLimit
	}
	rows, err := a.db.Query(ctx,
		`SELECT id::text, name, created_at FROM folders
		 WHERE user_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		a.userID, limit, max(page.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := []model.Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

func (a *Adapter) GetFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	return scanFolder(a.db.QueryRow(ctx,
		`SELECT id::text, name, created_at FROM folders WHERE id = $1 AND user_id = $2`,
		folderID, a.userID))
}

func (a *Adapter) CreateFolder(ctx context.Context, name string) (*model.Folder, error) {
	return scanFolder(a.db.QueryRow(ctx,
		`INSERT INTO folders (id, user_id, name) VALUES ($1, $2, $3)
		 RETURNING id::text, name, created_at`,
		uuid.New(), a.userID, name))
}

func (a *Adapter) RenameFolder(ctx context.Context, folderID, name string) (*model.Folder, error) {
	return scanFolder(a.db.QueryRow(ctx,
		`UPDATE folders SET name = $3 WHERE id = $1 AND user_id = $2
		 RETURNING id::text, name, created_at`,
		folderID, a.userID, name))
}

func (a *Adapter) DeleteFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	return scanFolder(a.db.QueryRow(ctx,
		`DELETE FROM folders WHERE id = $1 AND user_id = $2
		 RETURNING id::text, name, created_at`,
		folderID, a.userID))
}

func (a *Adapter) ListNotes(ctx context.Context, folderID string, page adapter.Page) ([]model.Note, error) {
	if _, err := a.GetFolder(ctx, folderID); err != nil {
		return nil, err
	}
	limit := page.Limit
	if limit <= 0 {
		limit = adapter.DefaultLimit
	}
	rows, err := a.db.Query(ctx,
		`SELECT `+noteColumns+` FROM notes
		 WHERE folder_id = $1 AND user_id = $2
		 ORDER BY last_updated_at, id
		 LIMIT $3 OFFSET $4`,
		folderID, a.userID, limit, max(page.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", mapError(err))
	}
	defer rows.Close()

	notes := []model.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (a *Adapter) CreateNote(ctx context.Context, folderID, title, content string) (*model.Note, error) {
	// The SELECT yields no row when the folder is missing or not the user's.
	return scanNote(a.db.QueryRow(ctx,
		`INSERT INTO notes (id, user_id, folder_id, title, content)
		 SELECT $1, $2, f.id, $4, $5 FROM folders f WHERE f.id = $3 AND f.user_id = $2
		 RETURNING `+noteColumns,
		uuid.New(), a.userID, folderID, title, content))
}

func (a *Adapter) UpdateNote(ctx context.Context, folderID, noteID string, patch adapter.NotePatch) (*model.Note, error) {
	var ifMatch *time.Time
	if patch.IfMatch != "" {
		t, err := time.Parse(time.RFC3339Nano, patch.IfMatch)
		if err != nil {
			return nil, adapter.ErrPreconditionFailed
		}
		ifMatch = &t
	}
	n, err := scanNote(a.db.QueryRow(ctx,
		`UPDATE notes SET
		   title = COALESCE($4, title),
		   content = COALESCE($5, content),
		   last_updated_at = GREATEST(now(), last_updated_at + interval '1 microsecond')
		 WHERE id = $1 AND folder_id = $2 AND user_id = $3
		   AND ($6::timestamptz IS NULL OR last_updated_at = $6)
		 RETURNING `+noteColumns,
		noteID, folderID, a.userID, patch.Title, patch.Content, ifMatch))
	if errors.Is(err, adapter.ErrNotFound) && ifMatch != nil {
		// Distinguish a stale version from a missing note.
		var exists bool
		if qerr := a.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notes WHERE id = $1 AND folder_id = $2 AND user_id = $3)`,
			noteID, folderID, a.userID).Scan(&exists); qerr == nil && exists {
			return nil, adapter.ErrPreconditionFailed
		}
	}
	return n, err
}

func (a *Adapter) DeleteNote(ctx context.Context, folderID, noteID string) (*model.Note, error) {
	return scanNote(a.db.QueryRow(ctx,
		`DELETE FROM notes WHERE id = $1 AND folder_id = $2 AND user_id = $3
		 RETURNING `+noteColumns,
		noteID, folderID, a.userID))
}

// Provider implements adapter.StorageProvider over a shared pool.
type Provider struct {
	db DB
}

// NewProvider returns a provider using db, usually a *pgxpool.Pool from Open.
func NewProvider(db DB) *Provider {
	return &Provider{db: db}
}

func (p *Provider) GetAdapter(_ context.Context, userID string) (adapter.StorageAdapter, error) {
	if userID == "" {
		return nil, errors.New("postgres: empty user id")
	}
	return &Adapter{db: p.db, userID: userID}, nil
}
