package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/notely/notely/core/dom"
)

// ErrNoToken is returned by Token when nobody is signed in.
var ErrNoToken = errors.New("auth: not signed in")

// DefaultRefreshWindow is how close to expiry a token gets refreshed.
const DefaultRefreshWindow = 5 * time.Minute

// TokenStore persists the session token between page loads.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// MemoryStore keeps the token in memory.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save("")
}

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is the Authenticator backed by the Notely backend.
//
// The backend verifies the JWT; the client only decodes it to learn the user
// and the expiry.
type Session struct {
	baseURL       string
	doc           dom.Document
	store         TokenStore
	httpClient    *http.Client
	now           func() time.Time
	refreshWindow time.Duration

	mu        sync.Mutex
	listeners listeners
	current   *User
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHTTPClient sets the client used for /auth calls. nil keeps the default.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithRefreshWindow overrides DefaultRefreshWindow.
func WithRefreshWindow(d time.Duration) SessionOption {
	return func(s *Session) { s.refreshWindow = d }
}

// NewSession returns a Session for the API at baseURL. A nil store keeps the
// token in memory.
func NewSession(baseURL string, doc dom.Document, store TokenStore, opts ...SessionOption) *Session {
	if store == nil {
		store = &MemoryStore{}
	}
	s := &Session{
		baseURL:       strings.TrimRight(baseURL, "/"),
		doc:           doc,
		store:         store,
		httpClient:    http.DefaultClient,
		now:           time.Now,
		refreshWindow: DefaultRefreshWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current = s.userFromStore()
	return s
}

// LoginURL is where the sign-in link points.
func (s *Session) LoginURL() string { return s.baseURL + "/auth/login" }

// DemoLoginURL signs in as a throwaway demo user.
func (s *Session) DemoLoginURL() string { return s.baseURL + "/auth/demo-login" }

func (s *Session) AddAuthContainer(root dom.Element) {
	container := dom.Div(s.doc, "auth-container")
	container.Append(
		dom.Link(s.doc, "auth-login-link", s.LoginURL(), "Sign in with Google"),
		dom.Link(s.doc, "auth-demo-link", s.DemoLoginURL(), "Try the demo"),
	)
	root.Append(container)
}

// SetToken stores a token received from the backend, typically from the URL
// fragment after the sign-in redirect, and notifies subscribers.
func (s *Session) SetToken(token string) error {
	if _, _, err := s.parse(token); err != nil {
		return err
	}
	if err := s.store.Save(token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.update(s.userFromStore())
	return nil
}

func (s *Session) SignOut(ctx context.Context) error {
	token, _ := s.store.Load()
	if token != "" {
		if err := s.post(ctx, "/auth/logout", token, nil); err != nil {
			log.Warn().Err(err).Msg("logout request failed")
		}
	}
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.update(nil)
	return nil
}

func (s *Session) OnAuthStateChanged(fn func(*User)) func() {
	s.mu.Lock()
	id := s.listeners.add(fn)
	current := s.current
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners.fns, id)
			s.mu.Unlock()
		})
	}
}

// GetToken returns the stored token, refreshing it when it is close to
// expiry. An expired token signs the user out.
func (s *Session) GetToken(ctx context.Context) (string, error) {
	token, err := s.store.Load()
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return "", nil
	}

	_, expiry, err := s.parse(token)
	now := s.now()
	if err != nil || (!expiry.IsZero() && !now.Before(expiry)) {
		if clearErr := s.store.Clear(); clearErr != nil {
			return "", fmt.Errorf("clear token: %w", clearErr)
		}
		s.update(nil)
		return "", nil
	}

	if !expiry.IsZero() && expiry.Sub(now) < s.refreshWindow {
		refreshed, err := s.refresh(ctx, token)
		if err != nil {
			log.Warn().Err(err).Msg("token refresh failed, keeping current token")
			return token, nil
		}
		return refreshed, nil
	}
	return token, nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	token, err := s.GetToken(context.Background())
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoToken
	}
	_, expiry, _ := s.parse(token)
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expiry}, nil
}

// CurrentUser returns the signed-in user or nil.
func (s *Session) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) refresh(ctx context.Context, token string) (string, error) {
	var body struct {
		Token string `json:"token"`
	}
	if err := s.post(ctx, "/auth/refresh", token, &body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", errors.New("refresh response has no token")
	}
	if err := s.SetToken(body.Token); err != nil {
		return "", err
	}
	return body.Token, nil
}

func (s *Session) post(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// parse decodes the claims without verifying the signature.
func (s *Session) parse(token string) (*User, time.Time, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if c.Subject == "" {
		return nil, time.Time{}, errors.New("parse token: missing sub claim")
	}
	var expiry time.Time
	if c.ExpiresAt != nil {
		expiry = c.ExpiresAt.Time
	}
	return &User{ID: c.Subject, Name: c.Name, Email: c.Email}, expiry, nil
}

func (s *Session) userFromStore() *User {
	token, err := s.store.Load()
	if err != nil || token == "" {
		return nil
	}
	user, expiry, err := s.parse(token)
	if err != nil || (!expiry.IsZero() && !s.now().Before(expiry)) {
		return nil
	}
	return user
}

func (s *Session) update(user *User) {
	s.mu.Lock()
	if sameUser(s.current, user) {
		s.mu.Unlock()
		return
	}
	s.current = user
	fns := s.listeners.snapshot()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}
