package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/oauth2"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/adapter/memory"
	"github.com/notely/notely/internal/auth"
	"github.com/notely/notely/internal/crypto"
)

const secret = "test-secret"

func newAuthHandler(t *testing.T, tokenURL string) (*AuthHandler, *auth.AuthService, adapter.StorageProvider) {
	t.Helper()
	svc := auth.NewAuthService(&oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL},
	}, nil, "", crypto.NewSecretBoxCipher("k"))
	p := memory.NewProvider()
	h := NewAuthHandler(svc, p, secret, "http://localhost:3000/", true)
	h.userInfo = func(context.Context, *oauth2.Token) (auth.Profile, error) {
		return auth.Profile{ID: "google-1", Email: "ann@example.com", Name: "Ann"}, nil
	}
	return h, svc, p
}

func tokenFromLocation(t *testing.T, loc string) string {
	t.Helper()
	prefix := "http://localhost:3000/#token="
	if !strings.HasPrefix(loc, prefix) {
		t.Fatalf("Location = %q", loc)
	}
	tok, err := url.QueryUnescape(strings.TrimPrefix(loc, prefix))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func bearer(tok string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{Headers: map[string]string{"Authorization": "Bearer " + tok}}
}

func TestLogin_SetsStateCookie(t *testing.T) {
	h, _, _ := newAuthHandler(t, "")
	resp, _ := h.Login(context.Background(), events.APIGatewayProxyRequest{})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Headers["Location"])
	state := loc.Query().Get("state")
	if state == "" || loc.Query().Get("access_type") != "offline" {
		t.Fatalf("Location = %s", loc)
	}
	if c := resp.MultiValueHeaders["Set-Cookie"][0]; !strings.HasPrefix(c, stateCookie+"="+state+";") {
		t.Errorf("state cookie = %q", c)
	}
}

func TestCallback_IssuesSession(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()
	h, svc, _ := newAuthHandler(t, tokenSrv.URL)
	ctx := context.Background()

	req := events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"code": "c", "state": "s1"},
		Headers:               map[string]string{"Cookie": stateCookie + "=s1"},
	}
	resp, _ := h.Callback(ctx, req)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d: %s", resp.StatusCode, resp.Body)
	}
	tok := tokenFromLocation(t, resp.Headers["Location"])

	c, err := ParseSession(bearer(tok), secret)
	if err != nil {
		t.Fatalf("ParseSession: %v", err)
	}
	if c.Subject != "google-1" || c.Email != "ann@example.com" {
		t.Errorf("claims = %+v", c)
	}
	if got := c.ExpiresAt.Sub(c.IssuedAt.Time); got != sessionTTL {
		t.Errorf("ttl = %v", got)
	}
	if !strings.HasPrefix(resp.MultiValueHeaders["Set-Cookie"][0], "session_token="+tok) {
		t.Errorf("cookies = %v", resp.MultiValueHeaders["Set-Cookie"])
	}

	stored, err := svc.GetUserToken(ctx, "google-1")
	if err != nil || stored.Name != "Ann" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestCallback_Rejects(t *testing.T) {
	h, _, _ := newAuthHandler(t, "")
	tests := []struct {
		name   string
		query  map[string]string
		cookie string
	}{
		{"missing code", map[string]string{"state": "s"}, stateCookie + "=s"},
		{"state mismatch", map[string]string{"code": "c", "state": "evil"}, stateCookie + "=s"},
		{"no state cookie", map[string]string{"code": "c", "state": "s"}, ""},
		{"user cancelled", map[string]string{"error": "access_denied"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := h.Callback(context.Background(), events.APIGatewayProxyRequest{
				QueryStringParameters: tt.query,
				Headers:               map[string]string{"Cookie": tt.cookie},
			})
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestDemoLogin_SeedsWelcomeFolder(t *testing.T) {
	h, _, p := newAuthHandler(t, "")
	ctx := context.Background()

	resp, err := h.DemoLogin(ctx, events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("DemoLogin failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected status 302, got %d. Body: %s", resp.StatusCode, resp.Body)
	}
	c, err := ParseSession(bearer(tokenFromLocation(t, resp.Headers["Location"])), secret)
	if err != nil {
		t.Fatal(err)
	}
	if !IsDemoUser(c.Subject) {
		t.Fatalf("subject = %q", c.Subject)
	}

	storage, _ := p.GetAdapter(ctx, c.Subject)
	folders, _ := storage.ListFolders(ctx, adapter.Page{Limit: 10})
	if len(folders) != 1 || folders[0].Name != "Getting Started" {
		t.Fatalf("folders = %+v", folders)
	}
	notes, _ := storage.ListNotes(ctx, folders[0].ID, adapter.Page{Limit: 10})
	if len(notes) != len(demoNotes) {
		t.Fatalf("notes = %+v", notes)
	}
	rendered := false
	for _, n := range notes {
		if strings.Contains(n.Content, "<h1") {
			rendered = true
		}
	}
	if !rendered {
		t.Errorf("welcome note not rendered to HTML: %+v", notes)
	}
}

func TestGetUserAndRefresh(t *testing.T) {
	h, svc, _ := newAuthHandler(t, "")
	ctx := context.Background()
	svc.SaveToken(ctx, auth.Profile{ID: "u1", Email: "new@example.com", Name: "Stored"}, &oauth2.Token{RefreshToken: "r"})

	now := time.Now()
	tok, _ := SignSession(secret, Claims{Email: "old@example.com", RegisteredClaims: registered("u1")}, time.Hour, now.Add(-time.Minute))

	resp, _ := h.GetUser(ctx, bearer(tok))
	var user userResponse
	json.Unmarshal([]byte(resp.Body), &user)
	if resp.StatusCode != http.StatusOK || user.ID != "u1" || user.Email != "new@example.com" || user.Demo {
		t.Errorf("GetUser = %d %+v", resp.StatusCode, user)
	}

	h.now = func() time.Time { return now }
	resp, _ = h.Refresh(ctx, bearer(tok))
	var body struct {
		Token string `json:"token"`
	}
	json.Unmarshal([]byte(resp.Body), &body)
	if resp.StatusCode != http.StatusOK || body.Token == "" || body.Token == tok {
		t.Fatalf("Refresh = %d %s", resp.StatusCode, resp.Body)
	}
	c, err := ParseSession(bearer(body.Token), secret)
	if err != nil || c.Subject != "u1" || !c.ExpiresAt.Time.Equal(now.Add(sessionTTL).Truncate(time.Second)) {
		t.Errorf("refreshed claims = %+v, %v", c, err)
	}

	if resp, _ := h.Refresh(ctx, events.APIGatewayProxyRequest{}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh without session = %d", resp.StatusCode)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	h, _, _ := newAuthHandler(t, "")
	resp, _ := h.Logout(context.Background(), events.APIGatewayProxyRequest{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if c := resp.MultiValueHeaders["Set-Cookie"][0]; !strings.Contains(c, "session_token=;") || !strings.Contains(c, "Max-Age=0") {
		t.Errorf("cookie = %q", c)
	}
}

func TestFailureMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUnauthorized, http.StatusUnauthorized},
		{adapter.ErrNotFound, http.StatusNotFound},
		{adapter.ErrPreconditionFailed, http.StatusPreconditionFailed},
		{adapter.ErrLimitExceeded, http.StatusRequestEntityTooLarge},
		{errBadRequest, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := failure(tt.err, "test").StatusCode; got != tt.want {
			t.Errorf("failure(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if body := failure(errors.New("secret detail"), "save").Body; strings.Contains(body, "secret detail") {
		t.Errorf("internal error leaked: %s", body)
	}
}
