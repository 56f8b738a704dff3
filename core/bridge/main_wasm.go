//go:build js && wasm

package main

import (
	"context"
	"net/url"
	"os"
	"strings"
	"syscall/js"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notely/notely/core/api"
	"github.com/notely/notely/core/app"
	"github.com/notely/notely/core/auth"
	"github.com/notely/notely/core/config"
	"github.com/notely/notely/core/dom"
	"github.com/notely/notely/core/markdown"
	"github.com/notely/notely/core/sidebar"
)

const tokenKey = "notely.token"

// jsLookup reads keys from window.NOTELY_CONFIG.
func jsLookup(key string) (string, bool) {
	cfg := js.Global().Get("NOTELY_CONFIG")
	if cfg.IsUndefined() || cfg.IsNull() {
		return "", false
	}
	v := cfg.Get(key)
	if v.IsUndefined() || v.IsNull() {
		return "", false
	}
	return v.String(), true
}

// tokenFromFragment returns the token the backend put in the URL fragment
// after sign-in and removes it from the address bar.
func tokenFromFragment() string {
	loc := js.Global().Get("location")
	hash := strings.TrimPrefix(loc.Get("hash").String(), "#")
	if hash == "" {
		return ""
	}
	values, err := url.ParseQuery(hash)
	if err != nil {
		return ""
	}
	token := values.Get("token")
	if token != "" {
		js.Global().Get("history").Call("replaceState", nil, "", loc.Get("pathname").String()+loc.Get("search").String())
	}
	return token
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).With().Timestamp().Logger()

	cfg, err := config.Load(jsLookup)
	if err != nil {
		log.Error().Err(err).Msg("invalid NOTELY_CONFIG, using defaults")
		cfg = config.Default()
	}

	renderer := markdown.NewRenderer()

	// renderMarkdown(source) -> html
	renderFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 1 {
			return "Error: Invalid number of arguments"
		}
		out, err := renderer.RenderString(args[0].String())
		if err != nil {
			return "Error: " + err.Error()
		}
		return out
	})
	js.Global().Set("renderMarkdown", renderFunc)

	doc := dom.NewBrowser()
	authn := auth.New(cfg, auth.Options{Document: doc, Store: auth.LocalStorage{Key: tokenKey}})
	if s, ok := authn.(*auth.Session); ok {
		if token := tokenFromFragment(); token != "" {
			if err := s.SetToken(token); err != nil {
				log.Warn().Err(err).Msg("ignoring token from URL")
			}
		}
	}

	root := doc.ByID("app")
	if root == nil {
		root = doc.Body()
	}

	client := api.New(cfg, authn)
	notely := app.New(doc, root, client, authn, app.Options{
		Async:     sidebar.Background,
		Confirm:   func(msg string) bool { return js.Global().Call("confirm", msg).Bool() },
		SaveDelay: cfg.SaveDelay,
	})
	notely.Start(context.Background())

	log.Info().Str("env", cfg.Env).Str("api", cfg.APIURL).Msg("Notely client started")

	// Keep the module alive for callbacks.
	select {}
}
