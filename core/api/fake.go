package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/notely/notely/core/model"
)

// Op names a Client method.
type Op string

const (
	OpFetchFolders     Op = "FetchFolders"
	OpCreateFolder     Op = "CreateFolder"
	OpUpdateFolder     Op = "UpdateFolder"
	OpDeleteFolder     Op = "DeleteFolder"
	OpFetchFolderNotes Op = "FetchFolderNotes"
	OpCreateNote       Op = "CreateNote"
	OpUpdateNote       Op = "UpdateNote"
	OpDeleteNote       Op = "DeleteNote"
)

// Call records one Fake invocation.
type Call struct {
	Op       Op
	FolderID string
	NoteID   string
	Body     any
}

// Fake is a deterministic in-memory Client. IDs are "1", "2", ... shared
// between folders and notes, and timestamps advance one minute per write.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	clock   time.Time
	folders []model.Folder
	notes   map[string][]model.Note
	fail    map[Op]error
	calls   []Call
	before  func(Call)
}

// FakeEpoch is the timestamp of the first write.
var FakeEpoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		clock: FakeEpoch,
		notes: make(map[string][]model.Note),
		fail:  make(map[Op]error),
	}
}

// Seed adds folders and notes as if the backend already held them. Later IDs
// continue after the highest numeric seeded ID.
func (f *Fake) Seed(folders []model.Folder, notes ...model.Note) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, folder := range folders {
		folder.Expanded = false
		f.folders = append(f.folders, folder)
		f.bump(folder.ID)
	}
	for _, n := range notes {
		f.notes[n.FolderID] = append(f.notes[n.FolderID], n)
		f.bump(n.ID)
	}
	return f
}

func (f *Fake) bump(id string) {
	if n, err := strconv.Atoi(id); err == nil && n > f.nextID {
		f.nextID = n
	}
}

// FailWith makes every later call of op return err. A nil err clears it.
func (f *Fake) FailWith(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// BeforeCall registers a hook run at the start of every call, before the
// result exists. Tests use it to observe optimistic state.
func (f *Fake) BeforeCall(fn func(Call)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = fn
}

// Calls returns the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts recorded calls of op.
func (f *Fake) CallCount(op Op) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Folders returns the stored folders.
func (f *Fake) Folders() []model.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Folder(nil), f.folders...)
}

// Notes returns the stored notes of a folder.
func (f *Fake) Notes(folderID string) []model.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Note(nil), f.notes[folderID]...)
}

// record logs c, runs the hook and returns the injected failure for c.Op.
func (f *Fake) record(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.before
	f.mu.Unlock()

	if hook != nil {
		hook(c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[c.Op]
}

func (f *Fake) newID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *Fake) tick() string {
	f.clock = f.clock.Add(time.Minute)
	return f.clock.Format(time.RFC3339)
}

func notFound() error {
	return &StatusError{StatusCode: http.StatusNotFound, Body: `{"error":"not found"}`}
}

func (f *Fake) findFolder(id string) int {
	for i, folder := range f.folders {
		if folder.ID == id {
			return i
		}
	}
	return -1
}

func (f *Fake) FetchFolders(ctx context.Context, limit, offset int) ([]model.Folder, error) {
	if err := f.record(Call{Op: OpFetchFolders, Body: Page{Limit: limit, Offset: offset}}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset >= len(f.folders) {
		return []model.Folder{}, nil
	}
	end := len(f.folders)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]model.Folder(nil), f.folders[offset:end]...), nil
}

func (f *Fake) CreateFolder(ctx context.Context, folder model.Folder) (model.Folder, error) {
	if err := f.record(Call{Op: OpCreateFolder, Body: folder}); err != nil {
		return model.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	created := model.Folder{ID: f.newID(), Name: folder.Name}
	f.folders = append(f.folders, created)
	return created, nil
}

func (f *Fake) UpdateFolder(ctx context.Context, folderID string, patch model.FolderPatch) (model.Folder, error) {
	if err := f.record(Call{Op: OpUpdateFolder, FolderID: folderID, Body: patch}); err != nil {
		return model.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.findFolder(folderID)
	if i < 0 {
		return model.Folder{}, notFound()
	}
	if patch.Name != nil {
		f.folders[i].Name = *patch.Name
	}
	return f.folders[i], nil
}

func (f *Fake) DeleteFolder(ctx context.Context, folderID string) (model.Folder, error) {
	if err := f.record(Call{Op: OpDeleteFolder, FolderID: folderID}); err != nil {
		return model.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.findFolder(folderID)
	if i < 0 {
		return model.Folder{}, notFound()
	}
	deleted := f.folders[i]
	f.folders = append(f.folders[:i], f.folders[i+1:]...)
	delete(f.notes, folderID)
	return deleted, nil
}

func (f *Fake) FetchFolderNotes(ctx context.Context, folderID string) ([]model.Note, error) {
	if err := f.record(Call{Op: OpFetchFolderNotes, FolderID: folderID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findFolder(folderID) < 0 {
		return nil, notFound()
	}
	return append([]model.Note{}, f.notes[folderID]...), nil
}

func (f *Fake) CreateNote(ctx context.Context, folderID string, patch model.NotePatch) (model.Note, error) {
	if err := f.record(Call{Op: OpCreateNote, FolderID: folderID, Body: patch}); err != nil {
		return model.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findFolder(folderID) < 0 {
		return model.Note{}, notFound()
	}
	n := model.Note{ID: f.newID(), FolderID: folderID, LastUpdatedAt: f.tick()}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	f.notes[folderID] = append(f.notes[folderID], n)
	return n, nil
}

func (f *Fake) UpdateNote(ctx context.Context, folderID, noteID string, patch model.NotePatch) (model.Note, error) {
	if err := f.record(Call{Op: OpUpdateNote, FolderID: folderID, NoteID: noteID, Body: patch}); err != nil {
		return model.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	notes := f.notes[folderID]
	for i := range notes {
		if notes[i].ID != noteID {
			continue
		}
		if patch.Title != nil {
			notes[i].Title = *patch.Title
		}
		if patch.Content != nil {
			notes[i].Content = *patch.Content
		}
		notes[i].LastUpdatedAt = f.tick()
		return notes[i], nil
	}
	return model.Note{}, notFound()
}

func (f *Fake) DeleteNote(ctx context.Context, folderID, noteID string) (model.Note, error) {
	if err := f.record(Call{Op: OpDeleteNote, FolderID: folderID, NoteID: noteID}); err != nil {
		return model.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	notes := f.notes[folderID]
	for i, n := range notes {
		if n.ID == noteID {
			f.notes[folderID] = append(notes[:i], notes[i+1:]...)
			return n, nil
		}
	}
	return model.Note{}, notFound()
}
