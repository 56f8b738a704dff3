// Package sidebar renders the folder tree and performs folder and note CRUD
// through the API facade.
//
// Renames are optimistic: the new value is shown at once and restored if the
// backend rejects it. Creates and deletes touch the view only after the
// backend answers.
package sidebar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/notely/notely/core/api"
	"github.com/notely/notely/core/dom"
	"github.com/notely/notely/core/events"
	"github.com/notely/notely/core/format"
	"github.com/notely/notely/core/model"
	"github.com/notely/notely/core/notice"
)

// Defaults for records created from the sidebar.
const (
	NewFolderName = "New Folder"
	NewNoteTitle  = "New Note"
)

// CSS classes.
const (
	classSidebar        = "sidebar"
	classAddFolder      = "sidebar__add_folder"
	classFolderList     = "sidebar__folder_list"
	classFolderItem     = "sidebar__folder_item"
	classFolderHeader   = "sidebar__folder_header"
	classFolderName     = "sidebar__folder_name"
	classFolderInput    = "sidebar__folder_name_input"
	classOptionsButton  = "sidebar__folder_options_button"
	classDropdownMenu   = "sidebar__folder_dropdown_menu"
	classDropdownOption = "sidebar__folder_dropdown_option"
	classCollapse       = "sidebar__folder_collapse"
	classNoteList       = "sidebar__note_list"
	classNoteItem       = "sidebar__note_item"
	classNoteSelected   = "sidebar__note_item--selected"
	classNoteDetails    = "sidebar__note_details"
	classNoteTitle      = "sidebar__note_title"
	classNoteInput      = "sidebar__note_title_input"
	classNoteUpdatedAt  = "sidebar__note_last_updated_at"
	classDeleteNote     = "sidebar__delete_note"
)

var (
	// ErrUnknownFolder is returned for a folder ID the sidebar does not show.
	ErrUnknownFolder = errors.New("sidebar: unknown folder")
	// ErrUnknownNote is returned for a note ID the sidebar does not show.
	ErrUnknownNote = errors.New("sidebar: unknown note")
)

// Confirmer asks the user to confirm a destructive action.
type Confirmer func(message string) bool

// Runner runs a DOM-triggered action. Actions block on the network, so in
// the browser they must leave the JS callback goroutine.
type Runner func(fn func())

// Inline runs actions on the calling goroutine. Tests use it.
func Inline(fn func()) { fn() }

// Background runs each action on its own goroutine.
func Background(fn func()) { go fn() }

// Options are the Sidebar's collaborators. Zero values get defaults.
type Options struct {
	Context context.Context
	Bus     *events.Bus
	// Confirm defaults to refusing every deletion.
	Confirm  Confirmer
	Notifier notice.Notifier
	// Async defaults to Background.
	Async Runner
}

// Sidebar is the folder tree view.
type Sidebar struct {
	doc     dom.Document
	client  api.Client
	ctx     context.Context
	bus     *events.Bus
	confirm Confirmer
	notify  notice.Notifier
	async   Runner

	el   dom.Element
	list dom.Element

	mu          sync.Mutex
	folders     []*folderView
	selected    string
	closed      bool
	unsubscribe []func()
}

type folderView struct {
	folder model.Folder

	item     dom.Element
	name     dom.Element
	options  dom.Element
	menu     dom.Element
	collapse dom.Element
	noteList dom.Element

	notes []*noteView
}

type noteView struct {
	note model.Note

	item    dom.Element
	title   dom.Element
	updated dom.Element
}

// New builds a sidebar showing folders in the given order. The element is
// detached; see Element and Mount.
func New(doc dom.Document, client api.Client, folders []model.Folder, opts Options) *Sidebar {
	s := &Sidebar{
		doc:     doc,
		client:  client,
		ctx:     opts.Context,
		bus:     opts.Bus,
		confirm: opts.Confirm,
		notify:  opts.Notifier,
		async:   opts.Async,
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.bus == nil {
		s.bus = events.Default
	}
	if s.confirm == nil {
		s.confirm = func(string) bool { return false }
	}
	if s.notify == nil {
		s.notify = notice.Log{}
	}
	if s.async == nil {
		s.async = Background
	}

	s.el = dom.Div(doc, classSidebar)
	add := dom.Button(doc, classAddFolder, NewFolderName)
	add.On("click", func(*dom.Event) {
		s.async(func() { _, _ = s.AddFolder(s.ctx) })
	})
	s.list = dom.Div(doc, classFolderList)
	s.el.Append(add, s.list)

	for _, f := range folders {
		fv := s.newFolderView(f)
		s.folders = append(s.folders, fv)
		s.list.Append(fv.item)
	}

	s.unsubscribe = append(s.unsubscribe,
		doc.On("click", s.closeMenus),
		s.bus.Subscribe(events.UpdatedNote, s.onUpdatedNote),
	)

	return s
}

// Element returns the sidebar's root element.
func (s *Sidebar) Element() dom.Element { return s.el }

// Mount appends the sidebar to parent.
func (s *Sidebar) Mount(parent dom.Element) { parent.Append(s.el) }

// Close removes the element and its document and bus listeners.
func (s *Sidebar) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	s.el.Remove()
}

// Folders returns the current folder records in view order.
func (s *Sidebar) Folders() []model.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Folder, 0, len(s.folders))
	for _, fv := range s.folders {
		out = append(out, fv.folder)
	}
	return out
}

// Notes returns the rendered notes of an expanded folder.
func (s *Sidebar) Notes(folderID string) []model.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	fv := s.findFolder(folderID)
	if fv == nil {
		return nil
	}
	out := make([]model.Note, 0, len(fv.notes))
	for _, nv := range fv.notes {
		out = append(out, nv.note)
	}
	return out
}

// Selected returns the ID of the selected note, or "".
func (s *Sidebar) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Sidebar) newFolderView(f model.Folder) *folderView {
	f.Expanded = false
	fv := &folderView{folder: f}
	id := f.ID

	fv.item = dom.Div(s.doc, classFolderItem)
	header := dom.Div(s.doc, classFolderHeader)

	fv.name = dom.Div(s.doc, classFolderName, f.Name)
	fv.name.On("click", func(*dom.Event) { s.beginFolderRename(fv) })

	fv.options = dom.Button(s.doc, classOptionsButton, "...")
	fv.menu = dom.Div(s.doc, classDropdownMenu)
	fv.menu.SetStyle("display", "none")
	addNote := dom.Div(s.doc, classDropdownOption, "Add Note")
	addNote.On("click", func(*dom.Event) {
		s.async(func() { _, _ = s.AddNote(s.ctx, id) })
	})
	deleteFolder := dom.Div(s.doc, classDropdownOption, "Delete Folder")
	deleteFolder.On("click", func(*dom.Event) {
		s.async(func() { _, _ = s.DeleteFolder(s.ctx, id) })
	})
	fv.menu.Append(addNote, deleteFolder)
	fv.options.Append(fv.menu)
	fv.options.On("click", func(e *dom.Event) {
		e.StopPropagation()
		if fv.menu.Style("display") == "block" {
			fv.menu.SetStyle("display", "none")
		} else {
			fv.menu.SetStyle("display", "block")
		}
	})

	fv.collapse = dom.Button(s.doc, classCollapse, "+")
	fv.collapse.On("click", func(*dom.Event) {
		s.async(func() { _ = s.ToggleFolder(s.ctx, id) })
	})

	header.Append(fv.name, fv.options, fv.collapse)
	fv.item.Append(header)
	return fv
}

func (s *Sidebar) newNoteView(n model.Note) *noteView {
	nv := &noteView{note: n}
	id := n.ID

	nv.item = dom.Div(s.doc, classNoteItem)
	nv.item.SetID("note-item-" + n.ID)

	details := dom.Div(s.doc, classNoteDetails)
	nv.title = dom.Div(s.doc, classNoteTitle, n.Title)
	nv.title.On("click", func(*dom.Event) { s.beginNoteRename(nv) })
	nv.updated = dom.Div(s.doc, classNoteUpdatedAt, format.Date(n.LastUpdatedAt))
	details.Append(nv.title, nv.updated)

	del := dom.Button(s.doc, classDeleteNote, "x")
	del.On("click", func(e *dom.Event) {
		e.StopPropagation()
		s.async(func() { _, _ = s.DeleteNote(s.ctx, id) })
	})

	nv.item.Append(details, del)
	// Selecting flushes the editor's pending save, which calls the backend.
	nv.item.On("click", func(*dom.Event) {
		s.async(func() { s.SelectNote(id) })
	})
	return nv
}

// closeMenus hides every dropdown whose options button was not clicked.
func (s *Sidebar) closeMenus(e *dom.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, fv := range s.folders {
		if e.Target == nil || !fv.options.Contains(e.Target) {
			fv.menu.SetStyle("display", "none")
		}
	}
}

// findFolder and findNote expect s.mu to be held.
func (s *Sidebar) findFolder(id string) *folderView {
	for _, fv := range s.folders {
		if fv.folder.ID == id {
			return fv
		}
	}
	return nil
}

func (s *Sidebar) findNote(id string) (*folderView, *noteView) {
	for _, fv := range s.folders {
		for _, nv := range fv.notes {
			if nv.note.ID == id {
				return fv, nv
			}
		}
	}
	return nil, nil
}

// beginFolderRename swaps the folder name for an input. Enter commits, blur
// cancels.
func (s *Sidebar) beginFolderRename(fv *folderView) {
	s.mu.Lock()
	current := fv.folder.Name
	id := fv.folder.ID
	s.mu.Unlock()

	input := dom.Input(s.doc, classFolderInput, "text", current)
	input.On("blur", func(*dom.Event) { input.ReplaceWith(fv.name) })
	input.On("keydown", func(e *dom.Event) {
		if e.Key != "Enter" {
			return
		}
		e.PreventDefault()
		old, changed := s.applyFolderName(id, input.Value())
		input.ReplaceWith(fv.name)
		if changed {
			s.async(func() { _ = s.commitFolderName(s.ctx, id, old) })
		}
	})
	fv.name.ReplaceWith(input)
	input.Focus()
}

// RenameFolder renames a folder optimistically. An empty or unchanged
// trimmed value is ignored without a call.
func (s *Sidebar) RenameFolder(ctx context.Context, folderID, value string) error {
	s.mu.Lock()
	known := s.findFolder(folderID) != nil
	s.mu.Unlock()
	if !known {
		return ErrUnknownFolder
	}

	old, changed := s.applyFolderName(folderID, value)
	if !changed {
		return nil
	}
	return s.commitFolderName(ctx, folderID, old)
}

// applyFolderName shows the trimmed value at once and returns the name it
// replaced.
func (s *Sidebar) applyFolderName(folderID, value string) (string, bool) {
	value = strings.TrimSpace(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	fv := s.findFolder(folderID)
	if fv == nil || value == "" || value == fv.folder.Name {
		return "", false
	}
	old := fv.folder.Name
	fv.folder.Name = value
	fv.name.SetText(value)
	return old, true
}

func (s *Sidebar) commitFolderName(ctx context.Context, folderID, old string) error {
	s.mu.Lock()
	fv := s.findFolder(folderID)
	if fv == nil {
		s.mu.Unlock()
		return ErrUnknownFolder
	}
	name := fv.folder.Name
	s.mu.Unlock()

	updated, err := s.client.UpdateFolder(ctx, folderID, model.FolderPatch{Name: model.String(name)})
	if err != nil {
		s.mu.Lock()
		if fv.folder.Name == name {
			fv.folder.Name = old
			fv.name.SetText(old)
		}
		s.mu.Unlock()
		log.Warn().Err(err).Str("folder_id", folderID).Msg("rename folder rolled back")
		s.notify.Error("Could not rename folder", err)
		return fmt.Errorf("rename folder %s: %w", folderID, err)
	}

	s.mu.Lock()
	if updated.Name != "" && fv.folder.Name == name {
		fv.folder.Name = updated.Name
		fv.name.SetText(updated.Name)
	}
	folder := fv.folder
	s.mu.Unlock()

	s.bus.Publish(events.UpdatedFolder, folder)
	return nil
}

func (s *Sidebar) beginNoteRename(nv *noteView) {
	s.mu.Lock()
	current := nv.note.Title
	id := nv.note.ID
	s.mu.Unlock()

	input := dom.Input(s.doc, classNoteInput, "text", current)
	input.On("blur", func(*dom.Event) { input.ReplaceWith(nv.title) })
	input.On("keydown", func(e *dom.Event) {
		if e.Key != "Enter" {
			return
		}
		e.PreventDefault()
		old, changed := s.applyNoteTitle(id, input.Value())
		input.ReplaceWith(nv.title)
		if changed {
			s.async(func() { _ = s.commitNoteTitle(s.ctx, id, old) })
		}
	})
	nv.title.ReplaceWith(input)
	input.Focus()
}

// RenameNote renames a note optimistically and then takes the title and
// last-updated time from the server's record.
func (s *Sidebar) RenameNote(ctx context.Context, noteID, value string) error {
	s.mu.Lock()
	_, nv := s.findNote(noteID)
	s.mu.Unlock()
	if nv == nil {
		return ErrUnknownNote
	}

	old, changed := s.applyNoteTitle(noteID, value)
	if !changed {
		return nil
	}
	return s.commitNoteTitle(ctx, noteID, old)
}

func (s *Sidebar) applyNoteTitle(noteID, value string) (string, bool) {
	value = strings.TrimSpace(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, nv := s.findNote(noteID)
	if nv == nil || value == "" || value == nv.note.Title {
		return "", false
	}
	old := nv.note.Title
	nv.note.Title = value
	nv.title.SetText(value)
	return old, true
}

func (s *Sidebar) commitNoteTitle(ctx context.Context, noteID, old string) error {
	s.mu.Lock()
	_, nv := s.findNote(noteID)
	if nv == nil {
		s.mu.Unlock()
		return ErrUnknownNote
	}
	title := nv.note.Title
	folderID := nv.note.FolderID
	s.mu.Unlock()

	updated, err := s.client.UpdateNote(ctx, folderID, noteID, model.NotePatch{Title: model.String(title)})
	if err != nil {
		s.mu.Lock()
		if nv.note.Title == title {
			nv.note.Title = old
			nv.title.SetText(old)
		}
		s.mu.Unlock()
		log.Warn().Err(err).Str("note_id", noteID).Msg("rename note rolled back")
		s.notify.Error("Could not rename note", err)
		return fmt.Errorf("rename note %s: %w", noteID, err)
	}

	s.mu.Lock()
	if nv.note.Title == title {
		if updated.Title != "" {
			nv.note.Title = updated.Title
			nv.title.SetText(updated.Title)
		}
		if updated.LastUpdatedAt != "" {
			nv.note.LastUpdatedAt = updated.LastUpdatedAt
			nv.updated.SetText(format.Date(updated.LastUpdatedAt))
		}
	}
	s.mu.Unlock()
	return nil
}

// AddFolder creates a folder named NewFolderName, appends it and puts its
// name into edit mode.
func (s *Sidebar) AddFolder(ctx context.Context) (model.Folder, error) {
	created, err := s.client.CreateFolder(ctx, model.Folder{Name: NewFolderName})
	if err != nil {
		s.notify.Error("Could not create folder", err)
		return model.Folder{}, fmt.Errorf("create folder: %w", err)
	}

	fv := s.newFolderView(created)
	s.mu.Lock()
	s.folders = append(s.folders, fv)
	s.list.Append(fv.item)
	s.mu.Unlock()

	s.beginFolderRename(fv)
	s.bus.Publish(events.CreatedFolder, fv.folder)
	return fv.folder, nil
}

// AddNote expands the folder when needed, creates a note titled
// NewNoteTitle, appends it and puts its title into edit mode.
func (s *Sidebar) AddNote(ctx context.Context, folderID string) (model.Note, error) {
	s.mu.Lock()
	fv := s.findFolder(folderID)
	var expanded bool
	if fv != nil {
		expanded = fv.folder.Expanded
	}
	s.mu.Unlock()
	if fv == nil {
		return model.Note{}, ErrUnknownFolder
	}

	if !expanded {
		if err := s.Expand(ctx, folderID); err != nil {
			return model.Note{}, err
		}
	}

	created, err := s.client.CreateNote(ctx, folderID, model.NotePatch{Title: model.String(NewNoteTitle)})
	if err != nil {
		s.notify.Error("Could not create note", err)
		return model.Note{}, fmt.Errorf("create note in %s: %w", folderID, err)
	}
	if created.FolderID == "" {
		created.FolderID = folderID
	}

	nv := s.newNoteView(created)
	s.mu.Lock()
	if fv.noteList == nil {
		s.mu.Unlock()
		// Collapsed while the create was in flight; the note shows on the
		// next expand.
		return created, nil
	}
	fv.notes = append(fv.notes, nv)
	fv.noteList.Append(nv.item)
	s.mu.Unlock()

	s.beginNoteRename(nv)
	return created, nil
}

// DeleteFolder asks for confirmation, deletes the folder and removes it from
// the view once the backend agrees. It reports whether the folder was
// deleted.
func (s *Sidebar) DeleteFolder(ctx context.Context, folderID string) (bool, error) {
	s.mu.Lock()
	fv := s.findFolder(folderID)
	var name string
	if fv != nil {
		name = fv.folder.Name
	}
	s.mu.Unlock()
	if fv == nil {
		return false, ErrUnknownFolder
	}

	if !s.confirm(fmt.Sprintf("Are you sure you want to delete the folder %q?", name)) {
		return false, nil
	}

	if _, err := s.client.DeleteFolder(ctx, folderID); err != nil {
		s.notify.Error("Could not delete folder", err)
		return false, fmt.Errorf("delete folder %s: %w", folderID, err)
	}

	s.mu.Lock()
	for i, f := range s.folders {
		if f == fv {
			s.folders = append(s.folders[:i:i], s.folders[i+1:]...)
			break
		}
	}
	for _, nv := range fv.notes {
		if nv.note.ID == s.selected {
			s.selected = ""
		}
	}
	fv.item.Remove()
	folder := fv.folder
	s.mu.Unlock()

	s.bus.Publish(events.DeletedFolder, folder)
	return true, nil
}

// DeleteNote asks for confirmation, deletes the note and removes it from the
// view once the backend agrees.
func (s *Sidebar) DeleteNote(ctx context.Context, noteID string) (bool, error) {
	s.mu.Lock()
	fv, nv := s.findNote(noteID)
	var note model.Note
	if nv != nil {
		note = nv.note
	}
	s.mu.Unlock()
	if nv == nil {
		return false, ErrUnknownNote
	}

	if !s.confirm(fmt.Sprintf("Are you sure you want to delete the note %s?", note.Title)) {
		return false, nil
	}

	if _, err := s.client.DeleteNote(ctx, note.FolderID, noteID); err != nil {
		s.notify.Error("Could not delete note", err)
		return false, fmt.Errorf("delete note %s: %w", noteID, err)
	}

	s.mu.Lock()
	for i, n := range fv.notes {
		if n == nv {
			fv.notes = append(fv.notes[:i:i], fv.notes[i+1:]...)
			break
		}
	}
	if s.selected == noteID {
		s.selected = ""
	}
	nv.item.Remove()
	s.mu.Unlock()

	s.bus.Publish(events.DeletedNote, note)
	return true, nil
}

// ToggleFolder collapses an expanded folder and expands a collapsed one.
func (s *Sidebar) ToggleFolder(ctx context.Context, folderID string) error {
	s.mu.Lock()
	fv := s.findFolder(folderID)
	var expanded bool
	if fv != nil {
		expanded = fv.folder.Expanded
	}
	s.mu.Unlock()
	if fv == nil {
		return ErrUnknownFolder
	}

	if expanded {
		return s.Collapse(folderID)
	}
	return s.Expand(ctx, folderID)
}

// Expand fetches the folder's notes, renders them and selects the first one.
// Notes are fetched on every expand.
func (s *Sidebar) Expand(ctx context.Context, folderID string) error {
	s.mu.Lock()
	known := s.findFolder(folderID) != nil
	s.mu.Unlock()
	if !known {
		return ErrUnknownFolder
	}

	notes, err := s.client.FetchFolderNotes(ctx, folderID)
	if err != nil {
		s.notify.Error("Could not load notes", err)
		return fmt.Errorf("fetch notes of %s: %w", folderID, err)
	}

	views := make([]*noteView, 0, len(notes))
	for _, n := range notes {
		views = append(views, s.newNoteView(n))
	}
	list := dom.Div(s.doc, classNoteList)
	for _, nv := range views {
		list.Append(nv.item)
	}

	s.mu.Lock()
	fv := s.findFolder(folderID)
	if fv == nil {
		s.mu.Unlock()
		return ErrUnknownFolder
	}
	if fv.noteList != nil {
		fv.noteList.Remove()
	}
	fv.noteList = list
	fv.notes = views
	fv.folder.Expanded = true
	fv.item.Append(list)
	fv.collapse.SetText("-")
	s.mu.Unlock()

	if len(notes) > 0 {
		s.SelectNote(notes[0].ID)
	}
	return nil
}

// Collapse removes the folder's note list.
func (s *Sidebar) Collapse(folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fv := s.findFolder(folderID)
	if fv == nil {
		return ErrUnknownFolder
	}
	if fv.noteList != nil {
		fv.noteList.Remove()
	}
	for _, nv := range fv.notes {
		if nv.note.ID == s.selected {
			s.selected = ""
		}
	}
	fv.noteList = nil
	fv.notes = nil
	fv.folder.Expanded = false
	fv.collapse.SetText("+")
	return nil
}

// SelectNote highlights a note and publishes SelectedNote with a copy of it.
func (s *Sidebar) SelectNote(noteID string) {
	s.mu.Lock()
	_, nv := s.findNote(noteID)
	if nv == nil {
		s.mu.Unlock()
		return
	}
	if _, prev := s.findNote(s.selected); prev != nil {
		prev.item.RemoveClass(classNoteSelected)
	}
	nv.item.AddClass(classNoteSelected)
	s.selected = noteID
	note := nv.note
	s.mu.Unlock()

	s.bus.Publish(events.SelectedNote, note)
}

// onUpdatedNote takes content and timestamps saved by the editor.
func (s *Sidebar) onUpdatedNote(e events.Event) {
	updated, ok := e.Detail.(model.Note)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, nv := s.findNote(updated.ID)
	if nv == nil {
		return
	}
	nv.note.Content = updated.Content
	if updated.Title != "" && updated.Title != nv.note.Title {
		nv.note.Title = updated.Title
		nv.title.SetText(updated.Title)
	}
	if updated.LastUpdatedAt != "" {
		nv.note.LastUpdatedAt = updated.LastUpdatedAt
		nv.updated.SetText(format.Date(updated.LastUpdatedAt))
	}
}
