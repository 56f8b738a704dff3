package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/notely/notely/core/markdown"
	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/auth"
)

const (
	stateCookie = "oauth_state"
	demoPrefix  = "demo-user-"
)

// IsDemoUser reports whether userID belongs to a demo session.
func IsDemoUser(userID string) bool {
	return strings.HasPrefix(userID, demoPrefix)
}

// AuthHandler handles sign-in and session requests.
type AuthHandler struct {
	authService     *auth.AuthService
	storageProvider adapter.StorageProvider
	jwtSecret       string
	frontendURL     string
	devMode         bool

	now      func() time.Time
	userInfo func(ctx context.Context, token *xoauth2.Token) (auth.Profile, error)
}

// NewAuthHandler creates a new AuthHandler. Successful sign-ins redirect to
// frontendURL.
func NewAuthHandler(s *auth.AuthService, sp adapter.StorageProvider, jwtSecret, frontendURL string, devMode bool) *AuthHandler {
	h := &AuthHandler{
		authService:     s,
		storageProvider: sp,
		jwtSecret:       jwtSecret,
		frontendURL:     strings.TrimSuffix(frontendURL, "/"),
		devMode:         devMode,
		now:             time.Now,
	}
	h.userInfo = h.googleUserInfo
	return h
}

func (h *AuthHandler) googleUserInfo(ctx context.Context, token *xoauth2.Token) (auth.Profile, error) {
	svc, err := oauth2.NewService(ctx, option.WithTokenSource(h.authService.Config().TokenSource(ctx, token)))
	if err != nil {
		return auth.Profile{}, fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return auth.Profile{}, fmt.Errorf("get user info: %w", err)
	}
	return auth.Profile{ID: info.Id, Email: info.Email, Name: info.Name}, nil
}

// redirectWithSession sends the browser to the frontend with the token in
// the URL fragment and in the session cookie.
func (h *AuthHandler) redirectWithSession(token string, ttl time.Duration) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.frontendURL + "/#token=" + url.QueryEscape(token),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {
				sessionCookieHeader(token, ttl, h.devMode),
				h.stateCookieHeader("", 0),
			},
		},
	}
}

func (h *AuthHandler) stateCookieHeader(state string, maxAge time.Duration) string {
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=Lax; Secure", stateCookie, state, int(maxAge.Seconds()))
}

func cookieValue(req events.APIGatewayProxyRequest, name string) string {
	for _, part := range strings.Split(header(req, "Cookie"), ";") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), name+"="); ok {
			return v
		}
	}
	return ""
}

// Login starts the Google OAuth2 flow. The state nonce is kept in a short
// lived cookie and checked on the callback.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.New().String()
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.authService.GenerateAuthURL(state),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {h.stateCookieHeader(state, 10*time.Minute)},
		},
	}, nil
}

// Callback finishes the OAuth2 flow: it stores the user's refresh token and
// issues a session.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := req.QueryStringParameters
	if e := q["error"]; e != "" {
		return errorResponse(http.StatusBadRequest, "Sign-in was cancelled: "+e), nil
	}
	code := q["code"]
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing code"), nil
	}
	if want := cookieValue(req, stateCookie); want == "" || want != q["state"] {
		return errorResponse(http.StatusBadRequest, "Invalid state"), nil
	}

	token, err := h.authService.ExchangeCode(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("exchange code")
		return errorResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	profile, err := h.userInfo(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("fetch user info")
		return errorResponse(http.StatusInternalServerError, "Failed to get user info"), nil
	}

	// A returning user may get no refresh token; the stored one stays valid.
	if err := h.authService.SaveToken(ctx, profile, token); err != nil {
		log.Warn().Err(err).Str("user_id", profile.ID).Msg("save refresh token")
	}

	signed, err := SignSession(h.jwtSecret, Claims{
		Email:            profile.Email,
		Name:             profile.Name,
		RegisteredClaims: registered(profile.ID),
	}, sessionTTL, h.now())
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}
	log.Info().Str("user_id", profile.ID).Msg("signed in")
	return h.redirectWithSession(signed, sessionTTL), nil
}

// DemoLogin signs in a throwaway user whose notes live in memory, seeded
// with a welcome folder.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := demoPrefix + uuid.New().String()

	storage, err := h.storageProvider.GetAdapter(ctx, userID)
	if err != nil {
		return failure(err, "get storage"), nil
	}
	if err := seedDemo(ctx, storage); err != nil {
		return failure(err, "seed demo notes"), nil
	}

	signed, err := SignSession(h.jwtSecret, Claims{
		Email:            "demo@notely.local",
		Name:             "Demo User",
		RegisteredClaims: registered(userID),
	}, demoTTL, h.now())
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}
	return h.redirectWithSession(signed, demoTTL), nil
}

// Logout clears the session cookie. Tokens already issued stay valid until
// they expire.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {sessionCookieHeader("", 0, h.devMode)},
	}
	return resp, nil
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Demo  bool   `json:"demo"`
}

// GetUser returns the signed-in user's profile.
func (h *AuthHandler) GetUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, err := ParseSession(req, h.jwtSecret)
	if err != nil {
		return failure(err, "get user"), nil
	}
	out := userResponse{ID: c.Subject, Email: c.Email, Name: c.Name, Demo: IsDemoUser(c.Subject)}
	if !out.Demo {
		stored, err := h.authService.GetUserToken(ctx, c.Subject)
		switch {
		case err == nil:
			out.Email, out.Name = stored.Email, stored.Name
		case !errors.Is(err, auth.ErrUserNotFound):
			return failure(err, "get user"), nil
		}
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Refresh exchanges a valid session token for a fresh one.
func (h *AuthHandler) Refresh(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, err := ParseSession(req, h.jwtSecret)
	if err != nil {
		return failure(err, "refresh session"), nil
	}
	ttl := sessionTTL
	if IsDemoUser(c.Subject) {
		ttl = demoTTL
	}
	signed, err := SignSession(h.jwtSecret, Claims{
		Email:            c.Email,
		Name:             c.Name,
		RegisteredClaims: registered(c.Subject),
	}, ttl, h.now())
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}
	resp := jsonResponse(http.StatusOK, map[string]string{"token": signed})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {sessionCookieHeader(signed, ttl, h.devMode)},
	}
	return resp, nil
}

func registered(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: subject, ID: uuid.New().String()}
}

// demoNotes are written in Markdown and stored as rendered HTML.
var demoNotes = []struct {
	Title    string
	Markdown string
}{
	{
		Title: "Welcome to Notely",
		Markdown: `# Welcome to Notely!

This is a demo account. Everything you write here lives in memory and is
gone when the session ends.

## Getting around
- **Folders** are listed in the sidebar. Double-click a name to rename it.
- **Notes** open in the editor when you click them; changes save by themselves.
- Use the trash icons to delete, you will be asked to confirm.`,
	},
	{
		Title: "Formatting",
		Markdown: `## Formatting

You can use *italic*, **bold**, ~~strikethrough~~ and ` + "`code`" + `.

| Feature | Status |
| :--- | :--- |
| Folders | ready |
| Notes | ready |

` + "```go" + `
fmt.Println("Hello, Notely!")
` + "```",
	},
}

func seedDemo(ctx context.Context, storage adapter.StorageAdapter) error {
	folder, err := storage.CreateFolder(ctx, "Getting Started")
	if err != nil {
		return err
	}
	renderer := markdown.NewRenderer()
	for _, n := range demoNotes {
		html, err := renderer.RenderString(n.Markdown)
		if err != nil {
			return fmt.Errorf("render %q: %w", n.Title, err)
		}
		if _, err := storage.CreateNote(ctx, folder.ID, n.Title, html); err != nil {
			return err
		}
	}
	return nil
}
