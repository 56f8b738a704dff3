package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/notely/notely/internal/adapter"
)

const (
	sessionCookie = "session_token"
	sessionTTL    = 24 * time.Hour
	demoTTL       = time.Hour
)

var validate = validator.New()

// ErrUnauthorized is returned when a request carries no valid session.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the session JWT payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SignSession issues an HS256 session token for userID.
func SignSession(secret string, c Claims, ttl time.Duration, now time.Time) (string, error) {
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func bearerOrCookie(req events.APIGatewayProxyRequest) string {
	if h := header(req, "Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	for _, part := range strings.Split(header(req, "Cookie"), ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, sessionCookie+"="); ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseSession verifies the request's session token (Bearer header first,
// then the session cookie) and returns its claims.
func ParseSession(req events.APIGatewayProxyRequest, jwtSecret string) (*Claims, error) {
	tokenString := bearerOrCookie(req)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: no authorization token found", ErrUnauthorized)
	}

	var c Claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token: %v", ErrUnauthorized, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	return &c, nil
}

// GetUserID extracts the user ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	c, err := ParseSession(req, jwtSecret)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// sessionCookieHeader builds the Set-Cookie value. Production needs
// SameSite=None because the frontend and API are served from different
// origins behind CloudFront.
func sessionCookieHeader(token string, maxAge time.Duration, devMode bool) string {
	sameSite := "None"
	if devMode {
		sameSite = "Lax"
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure",
		sessionCookie, token, int(maxAge.Seconds()), sameSite)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		return errorResponse(http.StatusInternalServerError, "Internal Server Error")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// failure maps an error from the session or storage layer to a response.
// Unexpected errors are logged and reported without detail.
func failure(err error, op string) events.APIGatewayProxyResponse {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrUnauthorized):
		return errorResponse(http.StatusUnauthorized, "Unauthorized")
	case errors.As(err, &verrs):
		return errorResponse(http.StatusBadRequest, validationMessage(verrs))
	case errors.Is(err, errBadRequest):
		return errorResponse(http.StatusBadRequest, err.Error())
	case errors.Is(err, adapter.ErrNotFound):
		return errorResponse(http.StatusNotFound, "Not found")
	case errors.Is(err, adapter.ErrPreconditionFailed):
		return errorResponse(http.StatusPreconditionFailed, "Note was modified; reload and retry")
	case errors.Is(err, adapter.ErrLimitExceeded):
		return errorResponse(http.StatusRequestEntityTooLarge, err.Error())
	}
	log.Error().Err(err).Str("op", op).Msg("request failed")
	return errorResponse(http.StatusInternalServerError, "Failed to "+op)
}

var errBadRequest = errors.New("bad request")

func validationMessage(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "gte":
			msgs = append(msgs, field+" must be at least "+fe.Param())
		case "max":
			msgs = append(msgs, field+" must be at most "+fe.Param()+" characters")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// decode reads a JSON body into v and validates it.
func decode(body string, v any) error {
	if strings.TrimSpace(body) == "" {
		body = "{}"
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	return validate.Struct(v)
}

// parsePage reads limit and offset query parameters.
func parsePage(q map[string]string) (adapter.Page, error) {
	p := adapter.Page{Limit: adapter.DefaultLimit}
	if s, ok := q["limit"]; ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: limit must be an integer", errBadRequest)
		}
		p.Limit = n
	}
	if s, ok := q["offset"]; ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: offset must be an integer", errBadRequest)
		}
		p.Offset = n
	}
	return p, validate.Struct(p)
}
