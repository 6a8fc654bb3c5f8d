package diffview

import (
	"fmt"

	"github.com/thiagokokada/revlog/internal/vcs"
)

// AnnotatedLine is one file line with the revision that last changed it.
// Changed is set on the first line of each run attributed to one revision
// and Parity flips with every such run.
type AnnotatedLine struct {
	RevisionID string `json:"revision_id"`
	Revno      int    `json:"revno"`
	Line       int    `json:"line"`
	Text       string `json:"text"`
	Escaped    string `json:"escaped"`
	Changed    bool   `json:"changed"`
	Parity     int    `json:"parity"`
}

func (f *Formatter) FormatAnnotate(entries []vcs.BlameEntry) ([]AnnotatedLine, error) {
	out := make([]AnnotatedLine, 0, len(entries))
	parity := 0
	last := ""
	for i, e := range entries {
		if e.Line != i+1 {
			return nil, fmt.Errorf("annotate line %d reported as %d: %w", i+1, e.Line, vcs.ErrInvariant)
		}
		if e.RevisionID == "" {
			return nil, fmt.Errorf("annotate line %d has no revision: %w", e.Line, vcs.ErrInvariant)
		}
		changed := i == 0 || e.RevisionID != last
		if changed {
			parity ^= 1
			last = e.RevisionID
		}
		out = append(out, AnnotatedLine{
			RevisionID: e.RevisionID,
			Line:       e.Line,
			Text:       e.Text,
			Escaped:    Escape(e.Text, f.TabWidth),
			Changed:    changed,
			Parity:     parity,
		})
	}
	return out, nil
}
