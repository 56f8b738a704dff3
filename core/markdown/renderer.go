// Package markdown converts Markdown into the HTML fragments stored as note
// content.
package markdown

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts Markdown to note HTML.
type Renderer struct {
	md goldmark.Markdown
}

type options struct {
	style  string
	unsafe bool
}

// Option configures a Renderer.
type Option func(*options)

// WithStyle sets the chroma style used for fenced code blocks.
func WithStyle(style string) Option {
	return func(o *options) { o.style = style }
}

// WithRawHTML keeps raw HTML from the source. The backend sanitizes note
// content on save, so this only affects what the editor shows before then.
func WithRawHTML() Option {
	return func(o *options) { o.unsafe = true }
}

// NewRenderer returns a GFM renderer with syntax highlighting.
func NewRenderer(opts ...Option) *Renderer {
	o := options{style: "github"}
	for _, opt := range opts {
		opt(&o)
	}

	htmlOpts := []renderer.Option{html.WithHardWraps(), html.WithXHTML()}
	if o.unsafe {
		htmlOpts = append(htmlOpts, html.WithUnsafe())
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(o.style),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(htmlOpts...),
	)

	return &Renderer{md: md}
}

// Render converts Markdown to HTML.
func (r *Renderer) Render(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderString is Render for strings.
func (r *Renderer) RenderString(source string) (string, error) {
	out, err := r.Render([]byte(source))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
