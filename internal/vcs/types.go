package vcs

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const summaryWidth = 60

// Revision is one immutable commit on the branch. Revno is assigned by the
// history index and is zero when the revision was read straight from a store.
type Revision struct {
	ID          string    `json:"id"`
	Revno       int       `json:"revno"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"-"`
	Committer   string    `json:"committer"`
	When        time.Time `json:"when"`
	Message     string    `json:"message"`
	Parents     []string  `json:"parents"`
}

func (r *Revision) IsMerge() bool { return len(r.Parents) > 1 }

func (r *Revision) FirstParent() string {
	if len(r.Parents) == 0 {
		return ""
	}
	return r.Parents[0]
}

// Summary returns the first message line, shortened for list views.
func (r *Revision) Summary() string {
	line := strings.SplitN(strings.TrimSpace(r.Message), "\n", 2)[0]
	if utf8.RuneCountInString(line) <= summaryWidth {
		return line
	}
	runes := []rune(line)
	return string(runes[:summaryWidth-3]) + "..."
}

// DisplayAuthor never exposes a full e-mail address.
func (r *Revision) DisplayAuthor() string {
	if name := strings.TrimSpace(r.Author); name != "" {
		return name
	}
	return HideEmail(r.AuthorEmail)
}

func HideEmail(email string) string {
	user, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok {
		return user
	}
	if dot := strings.Index(domain, "."); dot > 0 {
		domain = domain[:dot]
	}
	return user + " at " + domain
}

type Rename struct {
	OldPath        string `json:"old_path"`
	NewPath        string `json:"new_path"`
	ContentChanged bool   `json:"content_changed"`
}

// ChangeSet is the delta of a revision against its first parent. A path
// appears in at most one of the lists.
type ChangeSet struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Renamed  []Rename `json:"renamed"`
	Modified []string `json:"modified"`
}

func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Renamed) == 0 && len(c.Modified) == 0
}

// Paths lists every path touched, renames contributing both sides.
func (c *ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.Added)+len(c.Removed)+2*len(c.Renamed)+len(c.Modified))
	paths = append(paths, c.Added...)
	paths = append(paths, c.Removed...)
	for _, r := range c.Renamed {
		paths = append(paths, r.OldPath, r.NewPath)
	}
	return append(paths, c.Modified...)
}

// DiffPaths lists the paths that have line content to diff, by new name.
func (c *ChangeSet) DiffPaths() []string {
	paths := make([]string, 0, len(c.Added)+len(c.Removed)+len(c.Renamed)+len(c.Modified))
	paths = append(paths, c.Added...)
	paths = append(paths, c.Removed...)
	for _, r := range c.Renamed {
		if r.ContentChanged {
			paths = append(paths, r.NewPath)
		}
	}
	return append(paths, c.Modified...)
}

// RenameOf returns the rename whose new path is path.
func (c *ChangeSet) RenameOf(path string) (Rename, bool) {
	for _, r := range c.Renamed {
		if r.NewPath == path {
			return r, true
		}
	}
	return Rename{}, false
}

type OpTag byte

const (
	OpEqual   OpTag = 'e'
	OpDelete  OpTag = 'd'
	OpInsert  OpTag = 'i'
	OpReplace OpTag = 'r'
)

func (t OpTag) String() string {
	switch t {
	case OpEqual:
		return "equal"
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Op maps OldLines[OldStart:OldEnd] onto NewLines[NewStart:NewEnd].
type Op struct {
	Tag      OpTag
	OldStart int
	OldEnd   int
	NewStart int
	NewEnd   int
}

type RawDiff struct {
	OldLines []string
	NewLines []string
	Ops      []Op
}

type EntryKind string

const (
	EntryFile      EntryKind = "file"
	EntryDir       EntryKind = "dir"
	EntrySymlink   EntryKind = "symlink"
	EntrySubmodule EntryKind = "submodule"
)

// TreeEntry is one child of a directory at a revision. Path is relative to
// the repository root and Size is only known for files and symlinks.
type TreeEntry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Kind       EntryKind `json:"kind"`
	Size       int64     `json:"size,omitempty"`
	Executable bool      `json:"executable,omitempty"`
}

// SortTree orders directories first, then by name.
func SortTree(entries []TreeEntry) {
	slices.SortFunc(entries, func(a, b TreeEntry) int {
		if (a.Kind == EntryDir) != (b.Kind == EntryDir) {
			if a.Kind == EntryDir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}

type BlameEntry struct {
	RevisionID string
	Line       int
	Text       string
}

// SplitLines splits file content into lines without their terminators.
func SplitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
