// Package dom is the small slice of the browser DOM the Notely client uses.
// Components are written against Element and Document so the same code runs
// in the browser (syscall/js) and headless in tests.
package dom

// Event is a DOM event as seen by handlers.
type Event struct {
	Type   string
	Key    string
	Target Element

	stopped   bool
	prevented bool
}

// StopPropagation keeps the event from reaching ancestors.
func (e *Event) StopPropagation() { e.stopped = true }

// Stopped reports whether StopPropagation was called.
func (e *Event) Stopped() bool { return e.stopped }

// PreventDefault cancels the browser's default action.
func (e *Event) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// Handler reacts to an event. Handlers run synchronously on the goroutine
// that dispatched the event and must not block.
type Handler func(*Event)

// Element is an HTML element.
type Element interface {
	Tag() string
	ID() string
	SetID(id string)

	// Text is the element's textContent.
	Text() string
	SetText(text string)

	// Value is the current value of an input element.
	Value() string
	SetValue(value string)

	Attr(name string) string
	SetAttr(name, value string)
	Style(property string) string
	SetStyle(property, value string)

	AddClass(name string)
	RemoveClass(name string)
	HasClass(name string) bool

	InnerHTML() string
	SetInnerHTML(fragment string) error

	Append(children ...Element)
	// Remove detaches the element; it is a no-op when already detached.
	Remove()
	// ReplaceWith puts other where the element is; a no-op when detached.
	ReplaceWith(other Element)
	Parent() Element
	Contains(other Element) bool

	// Query returns the first descendant matching selector, or nil.
	Query(selector string) Element
	QueryAll(selector string) []Element

	On(eventType string, h Handler)
	Dispatch(ev *Event)
	Click()
	Focus()
}

// Document creates elements and hosts document-level listeners.
type Document interface {
	CreateElement(tag string) Element
	Body() Element
	// On registers a document-level handler and returns a func that removes
	// it.
	On(eventType string, h Handler) (off func())
}

// Div creates a div with a class and optional text.
func Div(doc Document, class string, text ...string) Element {
	el := doc.CreateElement("div")
	el.AddClass(class)
	if len(text) > 0 {
		el.SetText(text[0])
	}
	return el
}

// Button creates a button with a class and label.
func Button(doc Document, class, label string) Element {
	el := doc.CreateElement("button")
	el.AddClass(class)
	el.SetText(label)
	return el
}

// Input creates an input of the given type holding value.
func Input(doc Document, class, inputType, value string) Element {
	el := doc.CreateElement("input")
	el.AddClass(class)
	el.SetAttr("type", inputType)
	el.SetValue(value)
	return el
}

// Link creates an anchor.
func Link(doc Document, class, href, label string) Element {
	el := doc.CreateElement("a")
	el.AddClass(class)
	el.SetAttr("href", href)
	el.SetText(label)
	return el
}
