//go:build js && wasm

package dom

import (
	"sync"
	"syscall/js"
)

const wrapperKey = "__notelyWrapper"

// Browser is the Document backed by the page's window.document.
type Browser struct {
	doc js.Value

	mu     sync.Mutex
	nextID int
	elems  map[int]*jsElement
	funcs  []js.Func
}

// NewBrowser wraps window.document.
func NewBrowser() *Browser {
	return &Browser{
		doc:   js.Global().Get("document"),
		elems: make(map[int]*jsElement),
	}
}

func (b *Browser) CreateElement(tag string) Element {
	return b.wrap(b.doc.Call("createElement", tag))
}

func (b *Browser) Body() Element {
	return b.wrap(b.doc.Get("body"))
}

// ByID returns the element with the given id, or nil.
func (b *Browser) ByID(id string) Element {
	v := b.doc.Call("getElementById", id)
	if v.IsNull() || v.IsUndefined() {
		return nil
	}
	return b.wrap(v)
}

func (b *Browser) On(eventType string, h Handler) func() {
	f := b.listen(b.doc, eventType, h)
	return func() {
		b.doc.Call("removeEventListener", eventType, f)
		b.mu.Lock()
		for i, g := range b.funcs {
			if g.Value.Equal(f.Value) {
				b.funcs = append(b.funcs[:i], b.funcs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		f.Release()
	}
}

// Release frees every registered callback. Call it on shutdown.
func (b *Browser) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.funcs {
		f.Release()
	}
	b.funcs = nil
}

// wrap returns one wrapper per JS node so wrappers compare equal.
func (b *Browser) wrap(v js.Value) *jsElement {
	if v.IsNull() || v.IsUndefined() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if id := v.Get(wrapperKey); id.Type() == js.TypeNumber {
		if el, ok := b.elems[id.Int()]; ok {
			return el
		}
	}
	b.nextID++
	el := &jsElement{b: b, v: v}
	b.elems[b.nextID] = el
	v.Set(wrapperKey, b.nextID)
	return el
}

func (b *Browser) listen(target js.Value, eventType string, h Handler) js.Func {
	f := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		native := args[0]
		ev := &Event{Type: eventType}
		if k := native.Get("key"); k.Type() == js.TypeString {
			ev.Key = k.String()
		}
		if t := native.Get("target"); !t.IsNull() && !t.IsUndefined() && t.Get("nodeType").Int() == 1 {
			ev.Target = b.wrap(t)
		}
		h(ev)
		if ev.stopped {
			native.Call("stopPropagation")
		}
		if ev.prevented {
			native.Call("preventDefault")
		}
		return nil
	})

	b.mu.Lock()
	b.funcs = append(b.funcs, f)
	b.mu.Unlock()

	target.Call("addEventListener", eventType, f)
	return f
}

type jsElement struct {
	b *Browser
	v js.Value
}

func (e *jsElement) Tag() string { return e.v.Get("tagName").String() }

func (e *jsElement) ID() string { return e.v.Get("id").String() }

func (e *jsElement) SetID(id string) { e.v.Set("id", id) }

func (e *jsElement) Text() string { return e.v.Get("textContent").String() }

func (e *jsElement) SetText(text string) { e.v.Set("textContent", text) }

func (e *jsElement) Value() string {
	v := e.v.Get("value")
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func (e *jsElement) SetValue(value string) { e.v.Set("value", value) }

func (e *jsElement) Attr(name string) string {
	v := e.v.Call("getAttribute", name)
	if v.IsNull() {
		return ""
	}
	return v.String()
}

func (e *jsElement) SetAttr(name, value string) { e.v.Call("setAttribute", name, value) }

func (e *jsElement) Style(property string) string {
	return e.v.Get("style").Call("getPropertyValue", property).String()
}

func (e *jsElement) SetStyle(property, value string) {
	if value == "" {
		e.v.Get("style").Call("removeProperty", property)
		return
	}
	e.v.Get("style").Call("setProperty", property, value)
}

func (e *jsElement) AddClass(name string) { e.v.Get("classList").Call("add", name) }

func (e *jsElement) RemoveClass(name string) { e.v.Get("classList").Call("remove", name) }

func (e *jsElement) HasClass(name string) bool {
	return e.v.Get("classList").Call("contains", name).Bool()
}

func (e *jsElement) InnerHTML() string { return e.v.Get("innerHTML").String() }

func (e *jsElement) SetInnerHTML(fragment string) error {
	e.v.Set("innerHTML", fragment)
	return nil
}

func (e *jsElement) Append(children ...Element) {
	for _, c := range children {
		e.v.Call("appendChild", c.(*jsElement).v)
	}
}

func (e *jsElement) Remove() { e.v.Call("remove") }

func (e *jsElement) ReplaceWith(other Element) {
	if e.v.Get("parentNode").IsNull() {
		return
	}
	e.v.Call("replaceWith", other.(*jsElement).v)
}

func (e *jsElement) Parent() Element {
	p := e.v.Get("parentElement")
	if p.IsNull() {
		return nil
	}
	return e.b.wrap(p)
}

func (e *jsElement) Contains(other Element) bool {
	o, ok := other.(*jsElement)
	if !ok || o == nil {
		return false
	}
	return e.v.Call("contains", o.v).Bool()
}

func (e *jsElement) Query(selector string) Element {
	v := e.v.Call("querySelector", selector)
	if v.IsNull() {
		return nil
	}
	return e.b.wrap(v)
}

func (e *jsElement) QueryAll(selector string) []Element {
	list := e.v.Call("querySelectorAll", selector)
	n := list.Get("length").Int()
	out := make([]Element, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, e.b.wrap(list.Index(i)))
	}
	return out
}

func (e *jsElement) On(eventType string, h Handler) { e.b.listen(e.v, eventType, h) }

func (e *jsElement) Dispatch(ev *Event) {
	opts := js.Global().Get("Object").New()
	opts.Set("bubbles", true)
	e.v.Call("dispatchEvent", js.Global().Get("CustomEvent").New(ev.Type, opts))
}

func (e *jsElement) Click() { e.v.Call("click") }

func (e *jsElement) Focus() { e.v.Call("focus") }
