// Package diffview turns raw line matches and blame data into numbered,
// escaped lines grouped for display.
package diffview

import (
	"fmt"

	"github.com/thiagokokada/revlog/internal/vcs"
)

const (
	DefaultContext  = 3
	DefaultTabWidth = 8
)

type LineKind int

const (
	LineContext LineKind = iota
	LineAdded
	LineRemoved
)

func (k LineKind) String() string {
	switch k {
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "context"
	}
}

func (k LineKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Line numbers are 1-based and nil on the side where the line does not exist.
type Line struct {
	OldLine     *int     `json:"old_line"`
	NewLine     *int     `json:"new_line"`
	Kind        LineKind `json:"kind"`
	Text        string   `json:"text"`
	Escaped     string   `json:"escaped"`
	Highlighted string   `json:"highlighted,omitempty"`
}

type Chunk struct {
	OldStart int    `json:"old_start"`
	OldCount int    `json:"old_count"`
	NewStart int    `json:"new_start"`
	NewCount int    `json:"new_count"`
	Lines    []Line `json:"lines"`
}

func (c Chunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", c.OldStart, c.OldCount, c.NewStart, c.NewCount)
}

// Formatter groups diff lines into chunks. A negative Context keeps the
// whole file in a single chunk.
type Formatter struct {
	Context  int
	TabWidth int
}

func NewFormatter(context, tabWidth int) *Formatter {
	if tabWidth <= 0 {
		tabWidth = DefaultTabWidth
	}
	return &Formatter{Context: context, TabWidth: tabWidth}
}

type flatLine struct {
	Line
	oldBefore int
	newBefore int
}

func (f *Formatter) FormatDiff(oldLines, newLines []string, ops []vcs.Op) ([]Chunk, error) {
	if err := validateOps(len(oldLines), len(newLines), ops); err != nil {
		return nil, err
	}
	flat := f.flatten(oldLines, newLines, ops)
	var changed []int
	for i, l := range flat {
		if l.Kind != LineContext {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}
	if f.Context < 0 {
		return []Chunk{newChunk(flat)}, nil
	}
	keep := make([]bool, len(flat))
	for _, c := range changed {
		lo := max(0, c-f.Context)
		hi := min(len(flat)-1, c+f.Context)
		for i := lo; i <= hi; i++ {
			keep[i] = true
		}
	}
	var chunks []Chunk
	start := -1
	for i := range flat {
		switch {
		case keep[i] && start < 0:
			start = i
		case !keep[i] && start >= 0:
			chunks = append(chunks, newChunk(flat[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		chunks = append(chunks, newChunk(flat[start:]))
	}
	return chunks, nil
}

func validateOps(oldLen, newLen int, ops []vcs.Op) error {
	i, j := 0, 0
	for n, op := range ops {
		if op.OldStart != i || op.NewStart != j || op.OldEnd < op.OldStart || op.NewEnd < op.NewStart {
			return fmt.Errorf("op %d %s [%d:%d] [%d:%d] not contiguous at %d/%d: %w",
				n, op.Tag, op.OldStart, op.OldEnd, op.NewStart, op.NewEnd, i, j, vcs.ErrInvariant)
		}
		if op.OldEnd > oldLen || op.NewEnd > newLen {
			return fmt.Errorf("op %d %s out of range: %w", n, op.Tag, vcs.ErrInvariant)
		}
		oldN, newN := op.OldEnd-op.OldStart, op.NewEnd-op.NewStart
		switch op.Tag {
		case vcs.OpEqual:
			if oldN != newN {
				return fmt.Errorf("op %d equal spans differ: %w", n, vcs.ErrInvariant)
			}
		case vcs.OpDelete:
			if newN != 0 {
				return fmt.Errorf("op %d delete touches new lines: %w", n, vcs.ErrInvariant)
			}
		case vcs.OpInsert:
			if oldN != 0 {
				return fmt.Errorf("op %d insert touches old lines: %w", n, vcs.ErrInvariant)
			}
		case vcs.OpReplace:
		default:
			return fmt.Errorf("op %d has unknown tag %q: %w", n, byte(op.Tag), vcs.ErrInvariant)
		}
		i, j = op.OldEnd, op.NewEnd
	}
	if i != oldLen || j != newLen {
		return fmt.Errorf("ops end at %d/%d, files have %d/%d lines: %w", i, j, oldLen, newLen, vcs.ErrInvariant)
	}
	return nil
}

func (f *Formatter) flatten(oldLines, newLines []string, ops []vcs.Op) []flatLine {
	flat := make([]flatLine, 0, max(len(oldLines), len(newLines)))
	oi, ni := 0, 0
	emit := func(kind LineKind, text string) {
		l := flatLine{oldBefore: oi, newBefore: ni}
		l.Kind = kind
		l.Text = text
		l.Escaped = Escape(text, f.TabWidth)
		switch kind {
		case LineContext:
			l.OldLine, l.NewLine = lineNo(oi+1), lineNo(ni+1)
			oi, ni = oi+1, ni+1
		case LineRemoved:
			l.OldLine = lineNo(oi + 1)
			oi++
		case LineAdded:
			l.NewLine = lineNo(ni + 1)
			ni++
		}
		flat = append(flat, l)
	}
	for _, op := range ops {
		switch op.Tag {
		case vcs.OpEqual:
			for _, text := range newLines[op.NewStart:op.NewEnd] {
				emit(LineContext, text)
			}
		default:
			for _, text := range oldLines[op.OldStart:op.OldEnd] {
				emit(LineRemoved, text)
			}
			for _, text := range newLines[op.NewStart:op.NewEnd] {
				emit(LineAdded, text)
			}
		}
	}
	return flat
}

func newChunk(lines []flatLine) Chunk {
	c := Chunk{Lines: make([]Line, len(lines))}
	for i, l := range lines {
		c.Lines[i] = l.Line
		if l.OldLine != nil {
			c.OldCount++
		}
		if l.NewLine != nil {
			c.NewCount++
		}
	}
	c.OldStart = lines[0].oldBefore
	if c.OldCount > 0 {
		c.OldStart++
	}
	c.NewStart = lines[0].newBefore
	if c.NewCount > 0 {
		c.NewStart++
	}
	return c
}

func lineNo(n int) *int { return &n }

// OldText reconstructs the old side covered by chunks.
func OldText(chunks []Chunk) []string {
	var out []string
	for _, c := range chunks {
		for _, l := range c.Lines {
			if l.OldLine != nil {
				out = append(out, l.Text)
			}
		}
	}
	return out
}

// NewText reconstructs the new side covered by chunks.
func NewText(chunks []Chunk) []string {
	var out []string
	for _, c := range chunks {
		for _, l := range c.Lines {
			if l.NewLine != nil {
				out = append(out, l.Text)
			}
		}
	}
	return out
}

// Highlight fills Highlighted for every line using fn.
func Highlight(chunks []Chunk, fn func(code string) string) {
	if fn == nil {
		return
	}
	for i := range chunks {
		for j := range chunks[i].Lines {
			l := &chunks[i].Lines[j]
			l.Highlighted = fn(l.Text)
		}
	}
}
