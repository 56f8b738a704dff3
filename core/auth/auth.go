// Package auth is the client's authentication facade. Session talks to the
// Notely backend, which signs users in with Google and hands back a JWT;
// Fake is the deterministic double used when the client runs in testing
// mode.
package auth

import (
	"context"
	"net/http"

	"github.com/notely/notely/core/config"
	"github.com/notely/notely/core/dom"
)

// User is the signed-in identity.
type User struct {
	ID    string
	Name  string
	Email string
}

// Authenticator is implemented by Session and Fake.
type Authenticator interface {
	// AddAuthContainer renders the sign-in widget into root.
	AddAuthContainer(root dom.Element)
	SignOut(ctx context.Context) error
	// OnAuthStateChanged calls fn once with the current user (nil when signed
	// out) and again on every change. The returned func unsubscribes.
	OnAuthStateChanged(fn func(*User)) func()
	// GetToken returns the bearer token, or "" when signed out.
	GetToken(ctx context.Context) (string, error)
}

// Options carries what the real implementation needs from its host.
type Options struct {
	Document   dom.Document
	Store      TokenStore
	HTTPClient *http.Client
}

// New returns a Fake in testing mode and a Session otherwise.
func New(cfg config.Config, opts Options) Authenticator {
	if cfg.IsTesting() {
		return NewFake(opts.Document, &User{ID: "test-user", Name: "Test User", Email: "test@notely.local"}, "test-token")
	}
	return NewSession(cfg.APIURL, opts.Document, opts.Store, WithHTTPClient(opts.HTTPClient))
}

// listeners is the subscriber list shared by both implementations.
type listeners struct {
	nextID int
	fns    map[int]func(*User)
}

func (l *listeners) add(fn func(*User)) int {
	if l.fns == nil {
		l.fns = make(map[int]func(*User))
	}
	l.nextID++
	l.fns[l.nextID] = fn
	return l.nextID
}

// snapshot returns subscribers in registration order.
func (l *listeners) snapshot() []func(*User) {
	out := make([]func(*User), 0, len(l.fns))
	for id := 1; id <= l.nextID; id++ {
		if fn, ok := l.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
