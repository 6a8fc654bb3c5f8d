package diffview

import (
	"html"
	"strings"
)

// ExpandTabs replaces tabs with spaces up to the next multiple of width.
func ExpandTabs(s string, width int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	if width <= 0 {
		width = DefaultTabWidth
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := width - col%width
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

// Escape prepares a line for monospace HTML display.
func Escape(s string, tabWidth int) string {
	s = html.EscapeString(ExpandTabs(s, tabWidth))
	return strings.ReplaceAll(s, " ", "&nbsp;")
}
