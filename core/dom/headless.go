package dom

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Headless is an in-memory Document built on golang.org/x/net/html nodes.
// Selectors are matched with goquery. It backs the client's tests and can
// render a snapshot of the page with HTML.
type Headless struct {
	mu          sync.Mutex
	root        *html.Node
	body        *html.Node
	elems       map[*html.Node]*node
	docHandlers map[string][]docHandler
	nextHandler int
	active      *node
}

// NewHeadless returns an empty document with a body.
func NewHeadless() *Headless {
	root := &html.Node{Type: html.DocumentNode}
	htmlEl := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	head := &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	root.AppendChild(htmlEl)
	htmlEl.AppendChild(head)
	htmlEl.AppendChild(body)

	return &Headless{
		root:        root,
		body:        body,
		elems:       make(map[*html.Node]*node),
		docHandlers: make(map[string][]docHandler),
	}
}

// CreateElement returns a detached element.
func (d *Headless) CreateElement(tag string) Element {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     strings.ToLower(tag),
		DataAtom: atom.Lookup([]byte(strings.ToLower(tag))),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(n)
}

// Body returns the body element.
func (d *Headless) Body() Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(d.body)
}

type docHandler struct {
	id int
	h  Handler
}

// On registers a document-level handler. It runs after element handlers
// for every dispatched event that was not stopped.
func (d *Headless) On(eventType string, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandler++
	id := d.nextHandler
	d.docHandlers[eventType] = append(d.docHandlers[eventType], docHandler{id: id, h: h})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		hs := d.docHandlers[eventType]
		for i, dh := range hs {
			if dh.id == id {
				d.docHandlers[eventType] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Listeners returns how many document-level handlers are registered for
// eventType.
func (d *Headless) Listeners(eventType string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.docHandlers[eventType])
}

// HTML renders the whole document.
func (d *Headless) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

// Active returns the focused element, or nil.
func (d *Headless) Active() Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	return d.active
}

// wrap returns the single wrapper for n. Callers hold d.mu.
func (d *Headless) wrap(n *html.Node) *node {
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &node{doc: d, n: n, handlers: make(map[string][]Handler)}
	d.elems[n] = el
	return el
}

type node struct {
	doc      *Headless
	n        *html.Node
	handlers map[string][]Handler
}

func (e *node) lock()   { e.doc.mu.Lock() }
func (e *node) unlock() { e.doc.mu.Unlock() }

func (e *node) Tag() string { return e.n.Data }

func (e *node) ID() string { return e.Attr("id") }

func (e *node) SetID(id string) { e.SetAttr("id", id) }

func (e *node) Text() string {
	e.lock()
	defer e.unlock()
	var sb strings.Builder
	collectText(e.n, &sb)
	return sb.String()
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func (e *node) SetText(text string) {
	e.lock()
	defer e.unlock()
	removeChildren(e.n)
	if text != "" {
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func (e *node) Value() string { return e.Attr("value") }

func (e *node) SetValue(value string) { e.SetAttr("value", value) }

func (e *node) Attr(name string) string {
	e.lock()
	defer e.unlock()
	return getAttr(e.n, name)
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func (e *node) SetAttr(name, value string) {
	e.lock()
	defer e.unlock()
	setAttr(e.n, name, value)
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *node) Style(property string) string {
	return parseStyle(e.Attr("style"))[property]
}

func (e *node) SetStyle(property, value string) {
	e.lock()
	defer e.unlock()
	styles := parseStyle(getAttr(e.n, "style"))
	if value == "" {
		delete(styles, property)
	} else {
		styles[property] = value
	}
	keys := make([]string, 0, len(styles))
	for k := range styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, styles[k]))
	}
	setAttr(e.n, "style", strings.Join(parts, "; "))
}

func parseStyle(s string) map[string]string {
	styles := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		styles[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return styles
}

func (e *node) AddClass(name string) {
	e.lock()
	defer e.unlock()
	classes := strings.Fields(getAttr(e.n, "class"))
	for _, c := range classes {
		if c == name {
			return
		}
	}
	setAttr(e.n, "class", strings.Join(append(classes, name), " "))
}

func (e *node) RemoveClass(name string) {
	e.lock()
	defer e.unlock()
	classes := strings.Fields(getAttr(e.n, "class"))
	kept := classes[:0]
	for _, c := range classes {
		if c != name {
			kept = append(kept, c)
		}
	}
	setAttr(e.n, "class", strings.Join(kept, " "))
}

func (e *node) HasClass(name string) bool {
	for _, c := range strings.Fields(e.Attr("class")) {
		if c == name {
			return true
		}
	}
	return false
}

func (e *node) InnerHTML() string {
	e.lock()
	defer e.unlock()
	var buf bytes.Buffer
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func (e *node) SetInnerHTML(fragment string) error {
	e.lock()
	defer e.unlock()
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.n)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	removeChildren(e.n)
	for _, c := range nodes {
		e.n.AppendChild(c)
	}
	return nil
}

func (e *node) Append(children ...Element) {
	e.lock()
	defer e.unlock()
	for _, child := range children {
		c := child.(*node).n
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		e.n.AppendChild(c)
	}
}

func (e *node) Remove() {
	e.lock()
	defer e.unlock()
	if e.n.Parent != nil {
		e.n.Parent.RemoveChild(e.n)
	}
}

func (e *node) ReplaceWith(other Element) {
	e.lock()
	defer e.unlock()
	parent := e.n.Parent
	if parent == nil {
		return
	}
	o := other.(*node).n
	if o == e.n {
		return
	}
	if o.Parent != nil {
		o.Parent.RemoveChild(o)
	}
	parent.InsertBefore(o, e.n)
	parent.RemoveChild(e.n)
}

func (e *node) Parent() Element {
	e.lock()
	defer e.unlock()
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *node) Contains(other Element) bool {
	o, ok := other.(*node)
	if !ok || o == nil {
		return false
	}
	e.lock()
	defer e.unlock()
	for n := o.n; n != nil; n = n.Parent {
		if n == e.n {
			return true
		}
	}
	return false
}

func (e *node) Query(selector string) Element {
	e.lock()
	defer e.unlock()
	sel := goquery.NewDocumentFromNode(e.n).Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return e.doc.wrap(sel.Get(0))
}

func (e *node) QueryAll(selector string) []Element {
	e.lock()
	defer e.unlock()
	sel := goquery.NewDocumentFromNode(e.n).Find(selector)
	out := make([]Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, e.doc.wrap(n))
	}
	return out
}

func (e *node) On(eventType string, h Handler) {
	e.lock()
	defer e.unlock()
	e.handlers[eventType] = append(e.handlers[eventType], h)
}

// Dispatch runs handlers on the element, then on each ancestor, then on the
// document, stopping early when a handler calls StopPropagation.
func (e *node) Dispatch(ev *Event) {
	if ev.Target == nil {
		ev.Target = e
	}

	e.lock()
	var path []*node
	for n := e.n; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			path = append(path, e.doc.wrap(n))
		}
	}
	e.unlock()

	for _, el := range path {
		e.lock()
		hs := append([]Handler(nil), el.handlers[ev.Type]...)
		e.unlock()
		for _, h := range hs {
			h(ev)
		}
		if ev.stopped {
			return
		}
	}

	e.lock()
	hs := make([]Handler, 0, len(e.doc.docHandlers[ev.Type]))
	for _, dh := range e.doc.docHandlers[ev.Type] {
		hs = append(hs, dh.h)
	}
	e.unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (e *node) Click() {
	e.Dispatch(&Event{Type: "click"})
}

// Focus moves focus to the element, firing blur on the previously focused one.
func (e *node) Focus() {
	e.lock()
	prev := e.doc.active
	e.doc.active = e
	e.unlock()

	if prev != nil && prev != e {
		prev.Dispatch(&Event{Type: "blur"})
	}
}
