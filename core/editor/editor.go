// Package editor binds a contenteditable surface to the selected note and
// saves content changes after a quiet period.
//
// A rejected save restores the last saved content in both the record and
// the surface, unless the user kept typing while the call was in flight.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/notely/notely/core/api"
	"github.com/notely/notely/core/config"
	"github.com/notely/notely/core/debounce"
	"github.com/notely/notely/core/dom"
	"github.com/notely/notely/core/events"
	"github.com/notely/notely/core/markdown"
	"github.com/notely/notely/core/model"
	"github.com/notely/notely/core/notice"
)

// ContentID is the id of the editable surface.
const ContentID = "note-editor"

// ErrNoNote is returned by operations that need a bound note.
var ErrNoNote = errors.New("editor: no note selected")

// Options are the Editor's collaborators. Zero values get defaults.
type Options struct {
	Context  context.Context
	Bus      *events.Bus
	Notifier notice.Notifier
	// SaveDelay defaults to config.DefaultSaveDelay.
	SaveDelay time.Duration
	// AfterFunc replaces the save timer, for tests.
	AfterFunc debounce.AfterFunc
	Renderer  *markdown.Renderer
}

// Editor is the note content view.
type Editor struct {
	client   api.Client
	ctx      context.Context
	bus      *events.Bus
	notify   notice.Notifier
	renderer *markdown.Renderer
	save     *debounce.Debouncer

	el      dom.Element
	content dom.Element

	mu          sync.Mutex
	note        *model.Note
	lastGood    string
	unsubscribe []func()
}

// New builds a detached editor; see Mount.
func New(doc dom.Document, client api.Client, opts Options) *Editor {
	e := &Editor{
		client:   client,
		ctx:      opts.Context,
		bus:      opts.Bus,
		notify:   opts.Notifier,
		renderer: opts.Renderer,
	}
	if e.ctx == nil {
		e.ctx = context.Background()
	}
	if e.bus == nil {
		e.bus = events.Default
	}
	if e.notify == nil {
		e.notify = notice.Log{}
	}
	if e.renderer == nil {
		e.renderer = markdown.NewRenderer()
	}
	delay := opts.SaveDelay
	if delay <= 0 {
		delay = config.DefaultSaveDelay
	}
	var debounceOpts []debounce.Option
	if opts.AfterFunc != nil {
		debounceOpts = append(debounceOpts, debounce.WithAfterFunc(opts.AfterFunc))
	}
	e.save = debounce.New(delay, func() { _ = e.saveNow(e.ctx) }, debounceOpts...)

	e.el = dom.Div(doc, "editor")
	e.content = dom.Div(doc, "editor__content")
	e.content.SetID(ContentID)
	e.content.SetAttr("contenteditable", "true")
	e.content.On("input", func(*dom.Event) { e.Changed() })
	e.el.Append(e.content)

	e.unsubscribe = []func(){
		e.bus.Subscribe(events.SelectedNote, e.onSelected),
		e.bus.Subscribe(events.DeletedNote, e.onDeletedNote),
		e.bus.Subscribe(events.DeletedFolder, e.onDeletedFolder),
	}
	return e
}

// Element returns the editor's root element.
func (e *Editor) Element() dom.Element { return e.el }

// Mount appends the editor to parent.
func (e *Editor) Mount(parent dom.Element) { parent.Append(e.el) }

// Close saves pending content, unsubscribes and removes the element.
func (e *Editor) Close() {
	e.save.Flush()

	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	e.el.Remove()
}

// Note returns the bound note.
func (e *Editor) Note() (model.Note, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.note == nil {
		return model.Note{}, false
	}
	return *e.note, true
}

// Bind shows note in the surface. A pending save of the previous note runs
// first.
func (e *Editor) Bind(note model.Note) {
	e.save.Flush()

	e.mu.Lock()
	defer e.mu.Unlock()
	n := note
	e.note = &n
	e.lastGood = note.Content
	if err := e.content.SetInnerHTML(note.Content); err != nil {
		log.Warn().Err(err).Str("note_id", note.ID).Msg("note content is not valid HTML")
		e.content.SetText(note.Content)
	}
}

// Unbind clears the surface and drops any pending save.
func (e *Editor) Unbind() {
	e.save.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.note = nil
	e.lastGood = ""
	e.content.SetText("")
}

// Changed schedules a save. The surface calls it on every input event.
func (e *Editor) Changed() {
	e.mu.Lock()
	bound := e.note != nil
	e.mu.Unlock()
	if bound {
		e.save.Trigger()
	}
}

// SetContent replaces the surface content and schedules a save.
func (e *Editor) SetContent(html string) error {
	e.mu.Lock()
	if e.note == nil {
		e.mu.Unlock()
		return ErrNoNote
	}
	err := e.content.SetInnerHTML(html)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.save.Trigger()
	return nil
}

// Flush saves pending content now.
func (e *Editor) Flush() { e.save.Flush() }

// ImportMarkdown renders source and saves the result as the bound note's
// content without waiting for the debounce.
func (e *Editor) ImportMarkdown(ctx context.Context, source string) error {
	html, err := e.renderer.RenderString(source)
	if err != nil {
		return err
	}
	if err := e.SetContent(html); err != nil {
		return err
	}
	e.save.Stop()
	return e.saveNow(ctx)
}

// saveNow pushes the surface content of the bound note.
func (e *Editor) saveNow(ctx context.Context) error {
	e.mu.Lock()
	if e.note == nil {
		e.mu.Unlock()
		return nil
	}
	html := e.content.InnerHTML()
	if html == e.note.Content && html == e.lastGood {
		e.mu.Unlock()
		return nil
	}
	e.note.Content = html
	noteID, folderID := e.note.ID, e.note.FolderID
	previous := e.lastGood
	e.mu.Unlock()

	updated, err := e.client.UpdateNote(ctx, folderID, noteID, model.NotePatch{Content: model.String(html)})
	if err != nil {
		e.mu.Lock()
		if e.note != nil && e.note.ID == noteID && e.note.Content == html {
			e.note.Content = previous
			if e.content.InnerHTML() == html {
				if err := e.content.SetInnerHTML(previous); err != nil {
					e.content.SetText(previous)
				}
			}
		}
		e.mu.Unlock()
		log.Warn().Err(err).Str("note_id", noteID).Msg("note content rolled back")
		e.notify.Error("Could not save note", err)
		return fmt.Errorf("save note %s: %w", noteID, err)
	}

	e.mu.Lock()
	if e.note != nil && e.note.ID == noteID {
		e.lastGood = updated.Content
		if e.note.Content == html {
			e.note.Content = updated.Content
		}
		e.note.LastUpdatedAt = updated.LastUpdatedAt
	}
	e.mu.Unlock()

	e.bus.Publish(events.UpdatedNote, updated)
	return nil
}

func (e *Editor) onSelected(ev events.Event) {
	if note, ok := ev.Detail.(model.Note); ok {
		e.Bind(note)
	}
}

func (e *Editor) onDeletedNote(ev events.Event) {
	note, ok := ev.Detail.(model.Note)
	if !ok {
		return
	}
	if bound, ok := e.Note(); ok && bound.ID == note.ID {
		e.Unbind()
	}
}

func (e *Editor) onDeletedFolder(ev events.Event) {
	folder, ok := ev.Detail.(model.Folder)
	if !ok {
		return
	}
	if bound, ok := e.Note(); ok && bound.FolderID == folder.ID {
		e.Unbind()
	}
}
