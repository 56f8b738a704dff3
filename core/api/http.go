package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/notely/notely/core/model"
)

// HTTPClient calls the backend over net/http.
type HTTPClient struct {
	baseURL string
	tokens  TokenGetter
	hc      *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeout bounds every request. Zero keeps the transport default.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			hc := *c.hc
			hc.Timeout = d
			c.hc = &hc
		}
	}
}

// NewHTTPClient returns a client for the API rooted at baseURL
// (e.g. http://localhost:8080/api). tokens may be nil.
func NewHTTPClient(baseURL string, tokens TokenGetter, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		hc:      &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) FetchFolders(ctx context.Context, limit, offset int) ([]model.Folder, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var folders []model.Folder
	err := c.do(ctx, http.MethodGet, "/folders?"+q.Encode(), nil, &folders)
	return folders, err
}

func (c *HTTPClient) CreateFolder(ctx context.Context, folder model.Folder) (model.Folder, error) {
	var out model.Folder
	err := c.do(ctx, http.MethodPost, "/folders", folder, &out)
	return out, err
}

func (c *HTTPClient) UpdateFolder(ctx context.Context, folderID string, patch model.FolderPatch) (model.Folder, error) {
	var out model.Folder
	err := c.do(ctx, http.MethodPut, folderPath(folderID), patch, &out)
	return out, err
}

func (c *HTTPClient) DeleteFolder(ctx context.Context, folderID string) (model.Folder, error) {
	var out model.Folder
	err := c.do(ctx, http.MethodDelete, folderPath(folderID), nil, &out)
	return out, err
}

func (c *HTTPClient) FetchFolderNotes(ctx context.Context, folderID string) ([]model.Note, error) {
	var notes []model.Note
	err := c.do(ctx, http.MethodGet, folderPath(folderID)+"/notes", nil, &notes)
	return notes, err
}

func (c *HTTPClient) CreateNote(ctx context.Context, folderID string, patch model.NotePatch) (model.Note, error) {
	var out model.Note
	err := c.do(ctx, http.MethodPost, folderPath(folderID)+"/notes", patch, &out)
	return out, err
}

func (c *HTTPClient) UpdateNote(ctx context.Context, folderID, noteID string, patch model.NotePatch) (model.Note, error) {
	var out model.Note
	err := c.do(ctx, http.MethodPut, notePath(folderID, noteID), patch, &out)
	return out, err
}

func (c *HTTPClient) DeleteNote(ctx context.Context, folderID, noteID string) (model.Note, error) {
	var out model.Note
	err := c.do(ctx, http.MethodDelete, notePath(folderID, noteID), nil, &out)
	return out, err
}

func folderPath(folderID string) string {
	return "/folders/" + url.PathEscape(folderID)
}

func notePath(folderID, noteID string) string {
	return folderPath(folderID) + "/notes/" + url.PathEscape(noteID)
}

// encode marshals v without escaping <, > and &, so note HTML is sent as
// written.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := encode(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
