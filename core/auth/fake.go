package auth

import (
	"context"
	"sync"

	"github.com/notely/notely/core/dom"
)

// Fake is a deterministic Authenticator. Clicking its container's button
// signs in the configured user.
type Fake struct {
	doc   dom.Document
	user  *User
	token string

	mu        sync.Mutex
	current   *User
	listeners listeners
	signOuts  int
}

// NewFake returns a Fake signed in as user (nil for signed out). SignIn
// restores user after a SignOut.
func NewFake(doc dom.Document, user *User, token string) *Fake {
	return &Fake{doc: doc, user: user, token: token, current: user}
}

func (f *Fake) AddAuthContainer(root dom.Element) {
	container := dom.Div(f.doc, "fake-auth-container")
	btn := dom.Button(f.doc, "fake-auth-signin", "Sign in")
	btn.On("click", func(*dom.Event) {
		u := f.user
		if u == nil {
			u = &User{ID: "test-user"}
		}
		f.SignIn(u)
	})
	container.Append(btn)
	root.Append(container)
}

// SignIn switches to user and notifies subscribers.
func (f *Fake) SignIn(user *User) { f.set(user) }

func (f *Fake) SignOut(context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	f.set(nil)
	return nil
}

// SignOuts counts SignOut calls.
func (f *Fake) SignOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}

func (f *Fake) OnAuthStateChanged(fn func(*User)) func() {
	f.mu.Lock()
	id := f.listeners.add(fn)
	current := f.current
	f.mu.Unlock()

	fn(current)

	return func() {
		f.mu.Lock()
		delete(f.listeners.fns, id)
		f.mu.Unlock()
	}
}

func (f *Fake) GetToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return "", nil
	}
	return f.token, nil
}

func (f *Fake) set(user *User) {
	f.mu.Lock()
	if sameUser(f.current, user) {
		f.mu.Unlock()
		return
	}
	f.current = user
	fns := f.listeners.snapshot()
	f.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}
