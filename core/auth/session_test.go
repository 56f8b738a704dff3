package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/notely/notely/core/auth"
	"github.com/notely/notely/core/dom"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func makeToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"name":  "Ada",
		"email": "ada@example.com",
		"exp":   exp.Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newSession(t *testing.T, baseURL string, store auth.TokenStore) *auth.Session {
	t.Helper()
	return auth.NewSession(baseURL, dom.NewHeadless(), store, auth.WithClock(func() time.Time { return now }))
}

func TestSession_SignedOutByDefault(t *testing.T) {
	s := newSession(t, "http://api", nil)

	var got []*auth.User
	s.OnAuthStateChanged(func(u *auth.User) { got = append(got, u) })

	if len(got) != 1 || got[0] != nil {
		t.Fatalf("initial callback = %v, want one nil user", got)
	}
	token, err := s.GetToken(context.Background())
	if err != nil || token != "" {
		t.Errorf("GetToken() = %q, %v; want empty", token, err)
	}
	if _, err := s.Token(); !errors.Is(err, auth.ErrNoToken) {
		t.Errorf("Token() error = %v, want ErrNoToken", err)
	}
}

func TestSession_SetTokenNotifies(t *testing.T) {
	s := newSession(t, "http://api", nil)
	var got []*auth.User
	unsubscribe := s.OnAuthStateChanged(func(u *auth.User) { got = append(got, u) })

	token := makeToken(t, "user-1", now.Add(time.Hour))
	if err := s.SetToken(token); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	// Same user again does not notify.
	if err := s.SetToken(token); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(got))
	}
	want := auth.User{ID: "user-1", Name: "Ada", Email: "ada@example.com"}
	if got[1] == nil || *got[1] != want {
		t.Errorf("user = %+v, want %+v", got[1], want)
	}

	unsubscribe()
	if err := s.SetToken(makeToken(t, "user-2", now.Add(time.Hour))); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("callback after unsubscribe")
	}
}

func TestSession_SetTokenRejectsGarbage(t *testing.T) {
	s := newSession(t, "http://api", nil)
	if err := s.SetToken("not-a-jwt"); err == nil {
		t.Error("SetToken accepted a malformed token")
	}
}

func TestSession_ExpiredTokenSignsOut(t *testing.T) {
	store := &auth.MemoryStore{}
	_ = store.Save(makeToken(t, "user-1", now.Add(-time.Minute)))
	s := newSession(t, "http://api", store)

	if s.CurrentUser() != nil {
		t.Error("expired token produced a user")
	}
	token, err := s.GetToken(context.Background())
	if err != nil || token != "" {
		t.Errorf("GetToken() = %q, %v; want empty", token, err)
	}
	if stored, _ := store.Load(); stored != "" {
		t.Error("expired token was not cleared")
	}
}

func TestSession_RefreshNearExpiry(t *testing.T) {
	old := makeToken(t, "user-1", now.Add(time.Minute))
	fresh := makeToken(t, "user-1", now.Add(24*time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/refresh" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+old {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + fresh + `"}`))
	}))
	defer srv.Close()

	store := &auth.MemoryStore{}
	_ = store.Save(old)
	s := newSession(t, srv.URL+"/api", store)

	token, err := s.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if token != fresh {
		t.Error("GetToken did not return the refreshed token")
	}
	if stored, _ := store.Load(); stored != fresh {
		t.Error("refreshed token was not stored")
	}
}

func TestSession_RefreshFailureKeepsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	old := makeToken(t, "user-1", now.Add(time.Minute))
	store := &auth.MemoryStore{}
	_ = store.Save(old)
	s := newSession(t, srv.URL, store)

	token, err := s.GetToken(context.Background())
	if err != nil || token != old {
		t.Errorf("GetToken() = %q, %v; want the current token", token, err)
	}
}

func TestSession_SignOut(t *testing.T) {
	var logoutCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/logout" {
			logoutCalls++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &auth.MemoryStore{}
	_ = store.Save(makeToken(t, "user-1", now.Add(time.Hour)))
	s := newSession(t, srv.URL, store)

	var last *auth.User
	s.OnAuthStateChanged(func(u *auth.User) { last = u })
	if last == nil {
		t.Fatal("stored token did not sign in")
	}

	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if last != nil {
		t.Error("listener not told about sign out")
	}
	if logoutCalls != 1 {
		t.Errorf("logout calls = %d, want 1", logoutCalls)
	}
}

func TestSession_TokenSource(t *testing.T) {
	exp := now.Add(time.Hour)
	store := &auth.MemoryStore{}
	_ = store.Save(makeToken(t, "user-1", exp))
	s := newSession(t, "http://api", store)

	tok, err := s.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.TokenType != "Bearer" || !tok.Expiry.Equal(exp.Truncate(time.Second)) {
		t.Errorf("Token() = %+v", tok)
	}
}

func TestSession_AddAuthContainer(t *testing.T) {
	doc := dom.NewHeadless()
	s := auth.NewSession("https://notely.example/api/", doc, nil)

	s.AddAuthContainer(doc.Body())

	link := doc.Body().Query(".auth-container .auth-login-link")
	if link == nil {
		t.Fatal("login link not rendered")
	}
	if got := link.Attr("href"); got != "https://notely.example/api/auth/login" {
		t.Errorf("href = %q", got)
	}
}
