// Package highlight renders single source lines as HTML with chroma token
// colours.
package highlight

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const DefaultStyle = "github"

type Highlighter struct {
	style *chroma.Style
}

// New returns a highlighter for the named chroma style, falling back to
// the chroma default when the name is unknown.
func New(style string) *Highlighter {
	st := styles.Get(style)
	if st == nil {
		st = styles.Fallback
	}
	return &Highlighter{style: st}
}

func (h *Highlighter) StyleName() string {
	return h.style.Name
}

// Line highlights code as a line of the file at path. Lines of files with
// no matching lexer are returned escaped but uncoloured.
func (h *Highlighter) Line(path, code string) string {
	if h == nil || code == "" {
		return html.EscapeString(code)
	}
	lexer := lexerForPath(path)
	if lexer == nil {
		return html.EscapeString(code)
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return html.EscapeString(code)
	}
	var b strings.Builder
	for _, token := range iterator.Tokens() {
		if token.Value == "" {
			continue
		}
		color := colorFromEntry(h.style.Get(token.Type))
		if color == "" {
			b.WriteString(html.EscapeString(token.Value))
			continue
		}
		b.WriteString(`<span style="color:`)
		b.WriteString(color)
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(token.Value))
		b.WriteString(`</span>`)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Func binds path so the result can be handed to diffview.Highlight.
func (h *Highlighter) Func(path string) func(string) string {
	if h == nil {
		return nil
	}
	return func(code string) string { return h.Line(path, code) }
}

func lexerForPath(path string) chroma.Lexer {
	if path == "" {
		return nil
	}
	lexer := lexers.Match(path)
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}

func colorFromEntry(entry chroma.StyleEntry) string {
	if entry.Colour.IsSet() {
		col := entry.Colour.String()
		col = strings.TrimPrefix(strings.ToLower(col), "#")
		return "#" + col
	}
	return ""
}
