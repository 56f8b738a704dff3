// Package app composes the client: the login view when signed out, and the
// sidebar plus editor workspace when signed in.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/notely/notely/core/api"
	"github.com/notely/notely/core/auth"
	"github.com/notely/notely/core/debounce"
	"github.com/notely/notely/core/dom"
	"github.com/notely/notely/core/editor"
	"github.com/notely/notely/core/events"
	"github.com/notely/notely/core/model"
	"github.com/notely/notely/core/notice"
	"github.com/notely/notely/core/sidebar"
)

// Heading is shown on the login view.
const Heading = "Welcome to Notely. Your notes, organized."

// Options configure the App. Zero values get the same defaults as the
// components they are passed to.
type Options struct {
	Bus       *events.Bus
	Async     sidebar.Runner
	Confirm   sidebar.Confirmer
	SaveDelay time.Duration
	AfterFunc debounce.AfterFunc
}

// App owns the root element.
type App struct {
	doc    dom.Document
	root   dom.Element
	client api.Client
	authn  auth.Authenticator
	opts   Options

	mu       sync.Mutex
	user     *auth.User
	view     dom.Element
	sidebar  *sidebar.Sidebar
	editor   *editor.Editor
	teardown []func()
	stopAuth func()
}

// New returns an App rendering into root.
func New(doc dom.Document, root dom.Element, client api.Client, authn auth.Authenticator, opts Options) *App {
	if opts.Bus == nil {
		opts.Bus = events.Default
	}
	if opts.Async == nil {
		opts.Async = sidebar.Background
	}
	return &App{doc: doc, root: root, client: client, authn: authn, opts: opts}
}

// Start shows the view matching the auth state and follows its changes.
func (a *App) Start(ctx context.Context) {
	stop := a.authn.OnAuthStateChanged(func(u *auth.User) {
		a.opts.Async(func() { a.show(ctx, u) })
	})
	a.mu.Lock()
	a.stopAuth = stop
	a.mu.Unlock()
}

// Stop detaches from auth and clears the root.
func (a *App) Stop() {
	a.mu.Lock()
	stop := a.stopAuth
	a.stopAuth = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
	a.clear()
}

func (a *App) show(ctx context.Context, u *auth.User) {
	a.mu.Lock()
	if a.view != nil && sameUser(a.user, u) {
		a.mu.Unlock()
		return
	}
	a.user = u
	a.mu.Unlock()

	a.clear()

	view := dom.Div(a.doc, "app")
	a.mu.Lock()
	a.view = view
	a.mu.Unlock()
	a.root.Append(view)

	if u == nil {
		Login(a.doc, view, a.authn)
		return
	}
	Logout(a.doc, view, a.authn, a.opts.Async)
	if err := a.Render(ctx, view); err != nil {
		log.Warn().Err(err).Msg("initial folder load failed")
	}
}

func sameUser(a, b *auth.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// clear tears down the current view.
func (a *App) clear() {
	a.mu.Lock()
	teardown := a.teardown
	view := a.view
	sb := a.sidebar
	a.teardown = nil
	a.view = nil
	a.sidebar = nil
	a.editor = nil
	a.mu.Unlock()

	for i := len(teardown) - 1; i >= 0; i-- {
		teardown[i]()
	}
	if sb != nil {
		sb.Close()
	}
	if view != nil {
		view.Remove()
	}
}

// Render mounts an empty sidebar and the editor into parent, then loads the
// folders. A non-empty result is published as FetchedFolders, which swaps
// in a sidebar built from it. On failure the empty sidebar stays and a
// notice is shown.
func (a *App) Render(ctx context.Context, parent dom.Element) error {
	banner := notice.NewBanner(a.doc, parent)
	sbOpts := sidebar.Options{
		Context:  ctx,
		Bus:      a.opts.Bus,
		Confirm:  a.opts.Confirm,
		Notifier: banner,
		Async:    a.opts.Async,
	}

	sb := sidebar.New(a.doc, a.client, nil, sbOpts)
	sb.Mount(parent)
	ed := editor.New(a.doc, a.client, editor.Options{
		Context:   ctx,
		Bus:       a.opts.Bus,
		Notifier:  banner,
		SaveDelay: a.opts.SaveDelay,
		AfterFunc: a.opts.AfterFunc,
	})
	ed.Mount(parent)

	unsubscribe := a.opts.Bus.Subscribe(events.FetchedFolders, func(e events.Event) {
		folders, ok := e.Detail.([]model.Folder)
		if !ok {
			return
		}
		next := sidebar.New(a.doc, a.client, folders, sbOpts)

		a.mu.Lock()
		prev := a.sidebar
		a.sidebar = next
		a.mu.Unlock()

		if prev != nil {
			prev.Element().ReplaceWith(next.Element())
			prev.Close()
		} else {
			next.Mount(parent)
		}
	})

	a.mu.Lock()
	a.sidebar = sb
	a.editor = ed
	a.teardown = append(a.teardown, unsubscribe, ed.Close)
	a.mu.Unlock()

	page := api.DefaultFolderPage
	folders, err := a.client.FetchFolders(ctx, page.Limit, page.Offset)
	if err != nil {
		banner.Error("Could not load folders", err)
		return fmt.Errorf("fetch folders: %w", err)
	}
	if len(folders) > 0 {
		a.opts.Bus.Publish(events.FetchedFolders, folders)
	}
	return nil
}

// Sidebar returns the mounted sidebar, or nil when signed out.
func (a *App) Sidebar() *sidebar.Sidebar {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sidebar
}

// Editor returns the mounted editor, or nil when signed out.
func (a *App) Editor() *editor.Editor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editor
}

// Login renders the signed-out view into root.
func Login(doc dom.Document, root dom.Element, authn auth.Authenticator) {
	container := dom.Div(doc, "login-container")
	wrapper := dom.Div(doc, "content-wrapper")
	wrapper.Append(dom.Div(doc, "heading", Heading))
	container.Append(wrapper)
	root.Append(container)

	authn.AddAuthContainer(wrapper)
}

// Logout renders the sign-out button into root.
func Logout(doc dom.Document, root dom.Element, authn auth.Authenticator, async sidebar.Runner) {
	btn := dom.Button(doc, "logout-btn", "Logout")
	btn.On("click", func(*dom.Event) {
		async(func() {
			if err := authn.SignOut(context.Background()); err != nil {
				log.Error().Err(err).Msg("sign out failed")
			}
		})
	})
	root.Append(btn)
}
