package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
)

type handlerFunc func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

type route struct {
	method  string
	pattern []string
	handle  handlerFunc
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// match binds {name} segments of the route pattern into params.
func (r route) match(segments []string, params map[string]string) bool {
	if len(segments) != len(r.pattern) {
		return false
	}
	bound := map[string]string{}
	for i, p := range r.pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if segments[i] == "" {
				return false
			}
			bound[p[1:len(p)-1]] = segments[i]
			continue
		}
		if p != segments[i] {
			return false
		}
	}
	for k, v := range bound {
		params[k] = v
	}
	return true
}

func (app *App) routes() []route {
	r := func(method, pattern string, h handlerFunc) route {
		return route{method: method, pattern: split(pattern), handle: h}
	}
	return []route{
		r(http.MethodGet, "/auth/login", app.authHandler.Login),
		r(http.MethodGet, "/auth/callback", app.authHandler.Callback),
		r(http.MethodGet, "/auth/demo-login", app.authHandler.DemoLogin),
		r(http.MethodPost, "/auth/logout", app.authHandler.Logout),
		r(http.MethodGet, "/auth/user", app.authHandler.GetUser),
		r(http.MethodPost, "/auth/refresh", app.authHandler.Refresh),

		r(http.MethodGet, "/folders", app.folderHandler.ListFolders),
		r(http.MethodPost, "/folders", app.folderHandler.CreateFolder),
		r(http.MethodPut, "/folders/{folderId}", app.folderHandler.RenameFolder),
		r(http.MethodDelete, "/folders/{folderId}", app.folderHandler.DeleteFolder),

		r(http.MethodGet, "/folders/{folderId}/notes", app.noteHandler.ListNotes),
		r(http.MethodPost, "/folders/{folderId}/notes", app.noteHandler.CreateNote),
		r(http.MethodPut, "/folders/{folderId}/notes/{noteId}", app.noteHandler.UpdateNote),
		r(http.MethodDelete, "/folders/{folderId}/notes/{noteId}", app.noteHandler.DeleteNote),

		r(http.MethodGet, "/events", app.eventHandler.ListEvents),
	}
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	resp := app.dispatch(ctx, req)
	log.Info().
		Str("method", req.HTTPMethod).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request")
	return app.cors(resp), nil
}

func (app *App) dispatch(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if req.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
	}

	// Only CloudFront knows the origin secret; direct calls to the API
	// Gateway URL are refused.
	if !app.devMode && !app.originVerified(req) {
		log.Warn().Str("path", req.Path).Msg("missing or invalid X-Origin-Verify header")
		return plain(http.StatusForbidden, "Forbidden: Access denied")
	}

	// CloudFront forwards /api/*.
	path := req.Path
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		path = strings.TrimPrefix(path, "/api")
	}
	segments := split(path)

	if req.PathParameters == nil {
		req.PathParameters = map[string]string{}
	}
	if req.QueryStringParameters == nil {
		req.QueryStringParameters = map[string]string{}
	}

	allowed := false
	for _, rt := range app.routes() {
		if !rt.match(segments, req.PathParameters) {
			continue
		}
		if rt.method != req.HTTPMethod {
			allowed = true
			continue
		}
		resp, err := rt.handle(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("path", req.Path).Msg("handler error")
			return plain(http.StatusInternalServerError, "Internal Server Error")
		}
		return resp
	}
	if allowed {
		return plain(http.StatusMethodNotAllowed, "Method Not Allowed")
	}
	return plain(http.StatusNotFound, "Not Found: "+req.HTTPMethod+" "+path)
}

func (app *App) originVerified(req events.APIGatewayProxyRequest) bool {
	if app.apiGatewaySecret == "" {
		return false
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, "X-Origin-Verify") {
			return subtle.ConstantTimeCompare([]byte(v), []byte(app.apiGatewaySecret)) == 1
		}
	}
	return false
}

func plain(status int, body string) events.APIGatewayProxyResponse {
	b, _ := json.Marshal(map[string]string{"error": body})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(b),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// cors adds CORS headers to an API Gateway response.
func (app *App) cors(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,If-Match"
	resp.Headers["Access-Control-Expose-Headers"] = "ETag"
	return resp
}
