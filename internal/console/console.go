// Package console renders navigation results for terminals.
package console

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/thiagokokada/revlog/internal/diffview"
	"github.com/thiagokokada/revlog/internal/graph"
	"github.com/thiagokokada/revlog/internal/nav"
	"github.com/thiagokokada/revlog/internal/vcs"
)

const (
	shortIDLength = 12
	timeLayout    = "2006-01-02 15:04:05 -0700"
)

// Printer writes to w. Colors follow color.NoColor, which is off when
// stdout is not a terminal.
type Printer struct {
	w io.Writer

	id      func(a ...any) string
	label   func(a ...any) string
	added   func(a ...any) string
	removed func(a ...any) string
	hunk    func(a ...any) string
	faint   func(a ...any) string
	failed  func(a ...any) string
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:       w,
		id:      color.New(color.FgYellow).SprintFunc(),
		label:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		added:   color.New(color.FgGreen).SprintFunc(),
		removed: color.New(color.FgRed).SprintFunc(),
		hunk:    color.New(color.FgCyan).SprintFunc(),
		faint:   color.New(color.Faint).SprintFunc(),
		failed:  color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

func shortID(id string) string {
	return id[:min(shortIDLength, len(id))]
}

// FormatRevisionHeader renders the header shown above a revision's
// changes: id and labels, revno, merge parents, author and message.
func FormatRevisionHeader(rev *vcs.Revision, labels []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s", rev.ID)
	if len(labels) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(labels, ", "))
	}
	b.WriteString("\n")
	if rev.Revno > 0 {
		fmt.Fprintf(&b, "Revno:  %d\n", rev.Revno)
	}
	if rev.IsMerge() {
		short := make([]string, len(rev.Parents))
		for i, p := range rev.Parents {
			short[i] = shortID(p)
		}
		fmt.Fprintf(&b, "Merge:  %s\n", strings.Join(short, " "))
	}
	fmt.Fprintf(&b, "Author: %s  %s\n", rev.DisplayAuthor(), rev.When.Format(timeLayout))
	if rev.Committer != "" && rev.Committer != rev.Author {
		fmt.Fprintf(&b, "Committer: %s\n", rev.Committer)
	}
	b.WriteString("\n")
	message := strings.TrimRight(rev.Message, "\n")
	if message == "" {
		b.WriteString("    (no commit message)\n")
		return b.String()
	}
	for line := range strings.SplitSeq(message, "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}

// Page lists a history page newest first, one revision per line.
func (p *Printer) Page(page *graph.Page) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, e := range slices.Backward(page.Entries) {
		p.entry(tw, e)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	w := page.Window
	fmt.Fprintf(p.w, "%s\n", p.faint(fmt.Sprintf("position %d of %d, page size %d", w.Position, w.Count, w.PageSize)))
	if w.Prev != "" {
		fmt.Fprintf(p.w, "older: %s\n", p.id(shortID(w.Prev)))
	}
	if w.Next != "" {
		fmt.Fprintf(p.w, "newer: %s\n", p.id(shortID(w.Next)))
	}
	return nil
}

func (p *Printer) entry(tw io.Writer, e graph.Entry) {
	rev := e.Revision
	summary := rev.Summary()
	if len(e.Labels) > 0 {
		summary = p.label("("+strings.Join(e.Labels, ", ")+")") + " " + summary
	}
	fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
		rev.Revno,
		p.id(shortID(rev.ID)),
		rev.When.Format("2006-01-02"),
		rev.DisplayAuthor(),
		summary,
	)
	for _, ref := range e.MergedFrom {
		fmt.Fprintf(tw, "\t\t\t\t%s\n", p.faint(fmt.Sprintf("merged %s (revno %d)", shortID(ref.ID), ref.Revno)))
	}
}

// Search lists matches in the order found, newest first.
func (p *Printer) Search(res *graph.SearchResult) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, e := range res.Entries {
		p.entry(tw, e)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	summary := fmt.Sprintf("%d matches in %d revisions", len(res.Entries), res.Scanned)
	if res.More {
		summary += ", more available"
	}
	fmt.Fprintf(p.w, "%s\n", p.faint(summary))
	return nil
}

// Files lists a directory with the revision that last changed each entry.
func (p *Printer) Files(listing *nav.Listing) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, e := range listing.Entries {
		name, size := e.Name, fmt.Sprint(e.Size)
		switch e.Kind {
		case vcs.EntryDir:
			name, size = p.hunk(name+"/"), "-"
		case vcs.EntrySubmodule:
			name, size = p.label(name+"@"), "-"
		case vcs.EntrySymlink:
			name += "@"
		}
		since := p.faint("?")
		if lc := e.LastChanged; lc != nil {
			since = fmt.Sprintf("%d %s", lc.Revno, p.id(shortID(lc.ID)))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", size, since, name)
	}
	return tw.Flush()
}

// Comparison prints the change set between two revisions and any diffs.
func (p *Printer) Comparison(view *nav.Comparison) {
	fmt.Fprintf(p.w, "compare %s (revno %d) .. %s (revno %d)\n\n",
		p.id(shortID(view.Base.ID)), view.Base.Revno,
		p.id(shortID(view.Target.ID)), view.Target.Revno,
	)
	p.ChangeSet(view.ChangeSet)
	p.files(view.Files)
}

// Revision prints the header, change set and any file diffs of view.
func (p *Printer) Revision(view *nav.RevisionView) {
	header := FormatRevisionHeader(view.Revision, view.Labels)
	first, rest, _ := strings.Cut(header, "\n")
	fmt.Fprintf(p.w, "%s\n%s", p.id(first), rest)
	for _, ref := range view.MergePoints {
		fmt.Fprintf(p.w, "Merged in: %s (revno %d)\n", p.id(shortID(ref.ID)), ref.Revno)
	}
	fmt.Fprintln(p.w)
	switch {
	case view.ChangeSetErr != nil:
		fmt.Fprintf(p.w, "%s\n", p.failed("changes unavailable: "+view.ChangeSetErr.Error()))
	case view.ChangeSet != nil:
		p.ChangeSet(view.ChangeSet)
	}
	p.files(view.Files)
}

func (p *Printer) files(files []nav.FileDiff) {
	for _, f := range files {
		fmt.Fprintln(p.w)
		if f.Err != nil {
			fmt.Fprintf(p.w, "%s %s\n", f.Path, p.failed(f.Err.Error()))
			continue
		}
		p.Diff(f.Path, f.Chunks)
	}
}

func (p *Printer) ChangeSet(cs *vcs.ChangeSet) {
	for _, path := range cs.Added {
		fmt.Fprintf(p.w, "%s %s\n", p.added("A"), path)
	}
	for _, path := range cs.Removed {
		fmt.Fprintf(p.w, "%s %s\n", p.removed("D"), path)
	}
	for _, r := range cs.Renamed {
		tag := "R"
		if r.ContentChanged {
			tag = "R*"
		}
		fmt.Fprintf(p.w, "%s %s => %s\n", p.hunk(tag), r.OldPath, r.NewPath)
	}
	for _, path := range cs.Modified {
		fmt.Fprintf(p.w, "M %s\n", path)
	}
}

// Diff prints chunks in unified diff notation.
func (p *Printer) Diff(path string, chunks []diffview.Chunk) {
	fmt.Fprintf(p.w, "--- a/%s\n+++ b/%s\n", path, path)
	if len(chunks) == 0 {
		fmt.Fprintf(p.w, "%s\n", p.faint("(no textual changes)"))
		return
	}
	for _, c := range chunks {
		fmt.Fprintln(p.w, p.hunk(c.Header()))
		for _, l := range c.Lines {
			switch l.Kind {
			case diffview.LineAdded:
				fmt.Fprintln(p.w, p.added("+"+l.Text))
			case diffview.LineRemoved:
				fmt.Fprintln(p.w, p.removed("-"+l.Text))
			default:
				fmt.Fprintln(p.w, " "+l.Text)
			}
		}
	}
}

// Annotate prints one line per file line, naming the revision only where
// a new run of lines from one revision starts.
func (p *Printer) Annotate(lines []diffview.AnnotatedLine) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 1, ' ', 0)
	for _, l := range lines {
		rev, revno := "", ""
		if l.Changed {
			rev = p.id(shortID(l.RevisionID))
			revno = fmt.Sprint(l.Revno)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t| %s\n", revno, rev, l.Line, l.Text)
	}
	return tw.Flush()
}
