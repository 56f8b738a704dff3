// Package notice surfaces failures that have no inline place in the view,
// such as a folder that could not be created.
package notice

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/notely/notely/core/dom"
)

// Notifier reports a failed interaction to the user.
type Notifier interface {
	Error(msg string, err error)
}

// Log only writes to the logger. Components use it when no banner is mounted.
type Log struct{}

func (Log) Error(msg string, err error) {
	log.Error().Err(err).Msg(msg)
}

// Banner renders dismissable error notices into a container.
type Banner struct {
	doc  dom.Document
	root dom.Element

	mu    sync.Mutex
	shown []dom.Element
}

// NewBanner appends a `.notices` container to parent.
func NewBanner(doc dom.Document, parent dom.Element) *Banner {
	root := dom.Div(doc, "notices")
	parent.Append(root)
	return &Banner{doc: doc, root: root}
}

// Error logs the failure and shows msg until dismissed.
func (b *Banner) Error(msg string, err error) {
	log.Error().Err(err).Msg(msg)

	el := dom.Div(b.doc, "notice")
	el.AddClass("notice--error")
	el.Append(dom.Div(b.doc, "notice__message", msg))

	dismiss := dom.Button(b.doc, "notice__dismiss", "×")
	dismiss.On("click", func(e *dom.Event) {
		e.StopPropagation()
		b.remove(el)
	})
	el.Append(dismiss)

	b.mu.Lock()
	b.shown = append(b.shown, el)
	b.mu.Unlock()
	b.root.Append(el)
}

// Count returns the number of visible notices.
func (b *Banner) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shown)
}

// Clear dismisses every notice.
func (b *Banner) Clear() {
	b.mu.Lock()
	shown := b.shown
	b.shown = nil
	b.mu.Unlock()
	for _, el := range shown {
		el.Remove()
	}
}

func (b *Banner) remove(el dom.Element) {
	b.mu.Lock()
	for i, s := range b.shown {
		if s == el {
			b.shown = append(b.shown[:i], b.shown[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	el.Remove()
}
