// Package events is the client's publish/subscribe register. It decouples
// the sidebar (which selects notes) from the editor (which binds to them).
package events

import "sync"

// Event names published by the client components.
const (
	FetchedFolders = "fetchedFolders"
	CreatedFolder  = "createdFolder"
	UpdatedFolder  = "updatedFolder"
	DeletedFolder  = "deletedFolder"
	SelectedNote   = "selectedNote"
	UpdatedNote    = "updatedNote"
	DeletedNote    = "deletedNote"
)

// Event is what listeners receive. Detail carries the payload, usually a
// model record or a slice of them.
type Event struct {
	Name   string
	Detail any
}

// Listener handles one event.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// Bus is a synchronous publish/subscribe register keyed by event name.
// Listeners of one name run in registration order; nothing is guaranteed
// across names. A Bus is safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]subscription)}
}

// Default is the process-wide bus used when a component is not given one.
var Default = NewBus()

// Subscribe registers fn for name and returns a func that removes it.
// Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(name string, fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() { b.unsubscribe(name, id) }
}

func (b *Bus) unsubscribe(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[name]
	for i, s := range subs {
		if s.id == id {
			b.listeners[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.listeners[name]) == 0 {
		delete(b.listeners, name)
	}
}

// Publish delivers detail to every listener of name, in registration order,
// on the calling goroutine. Listeners added or removed during delivery take
// effect on the next Publish.
func (b *Bus) Publish(name string, detail any) {
	b.mu.RLock()
	subs := make([]subscription, len(b.listeners[name]))
	copy(subs, b.listeners[name])
	b.mu.RUnlock()

	ev := Event{Name: name, Detail: detail}
	for _, s := range subs {
		s.fn(ev)
	}
}

// Len reports how many listeners are registered for name.
func (b *Bus) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Subscribe registers fn on the Default bus.
func Subscribe(name string, fn Listener) func() {
	return Default.Subscribe(name, fn)
}

// Publish publishes on the Default bus.
func Publish(name string, detail any) {
	Default.Publish(name, detail)
}
