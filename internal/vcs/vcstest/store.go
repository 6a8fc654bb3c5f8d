// Package vcstest provides an in-memory vcs.Store for tests.
package vcstest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/thiagokokada/revlog/internal/vcs"
)

const (
	MethodRevision     = "Revision"
	MethodParents      = "Parents"
	MethodChangedPaths = "ChangedPaths"
	MethodTextDiff     = "TextDiff"
	MethodBlame        = "Blame"
	MethodTipID        = "TipID"

	MethodChangedPathsBetween = "ChangedPathsBetween"
	MethodTextDiffBetween     = "TextDiffBetween"
	MethodTree                = "Tree"
)

// Store keeps revisions, per-revision file contents and change sets in
// memory and counts every call by method name.
type Store struct {
	mu      sync.Mutex
	tip     string
	revs    map[string]*vcs.Revision
	files   map[string]map[string][]string
	changes map[string]*vcs.ChangeSet
	binary  map[string]bool
	blame   map[string][]vcs.BlameEntry
	labels  map[string][]string
	calls   map[string]int

	// Fail, when set, is consulted before each call and its error returned.
	Fail func(method, id string) error
	// Gate, when set, blocks every TextDiff until it is closed.
	Gate chan struct{}
	// Matcher used by TextDiff.
	Matcher vcs.Matcher
}

func New() *Store {
	return &Store{
		revs:    map[string]*vcs.Revision{},
		files:   map[string]map[string][]string{},
		changes: map[string]*vcs.ChangeSet{},
		binary:  map[string]bool{},
		blame:   map[string][]vcs.BlameEntry{},
		labels:  map[string][]string{},
		calls:   map[string]int{},
	}
}

// Commit adds a revision with the given parents and makes it the tip.
func (s *Store) Commit(id string, parents ...string) *vcs.Revision {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev := &vcs.Revision{
		ID:      id,
		Author:  "Test Author",
		Message: "commit " + id,
		Parents: slices.Clone(parents),
	}
	s.revs[id] = rev
	s.tip = id
	return rev
}

// SetTip moves the branch tip without adding a revision.
func (s *Store) SetTip(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tip = id
}

func (s *Store) SetFile(id, path string, lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files[id] == nil {
		s.files[id] = map[string][]string{}
	}
	s.files[id][path] = lines
}

func (s *Store) SetBinary(id, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binary[id+"\x00"+path] = true
}

func (s *Store) SetChangeSet(id string, cs *vcs.ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[id] = cs
}

func (s *Store) SetBlame(id, path string, entries []vcs.BlameEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blame[id+"\x00"+path] = entries
}

func (s *Store) SetLabel(id string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[id] = labels
}

func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) begin(method, id string) error {
	s.mu.Lock()
	s.calls[method]++
	fail := s.Fail
	s.mu.Unlock()
	if fail != nil {
		return fail(method, id)
	}
	return nil
}

func (s *Store) Revision(ctx context.Context, id string) (*vcs.Revision, error) {
	if err := s.begin(MethodRevision, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revs[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	cp := *rev
	cp.Parents = slices.Clone(rev.Parents)
	return &cp, nil
}

func (s *Store) Parents(ctx context.Context, id string) ([]string, error) {
	if err := s.begin(MethodParents, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revs[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	return slices.Clone(rev.Parents), nil
}

func (s *Store) ChangedPaths(ctx context.Context, id string) (*vcs.ChangeSet, error) {
	if err := s.begin(MethodChangedPaths, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revs[id]; !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	if cs, ok := s.changes[id]; ok {
		return cs, nil
	}
	return s.deriveChangeSetLocked(id), nil
}

func (s *Store) deriveChangeSetLocked(id string) *vcs.ChangeSet {
	var prev map[string][]string
	if parents := s.revs[id].Parents; len(parents) > 0 {
		prev = s.files[parents[0]]
	}
	return compareFiles(prev, s.files[id])
}

func compareFiles(prev, cur map[string][]string) *vcs.ChangeSet {
	cs := &vcs.ChangeSet{}
	for _, path := range slices.Sorted(maps.Keys(cur)) {
		old, ok := prev[path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, path)
		case !slices.Equal(old, cur[path]):
			cs.Modified = append(cs.Modified, path)
		}
	}
	for _, path := range slices.Sorted(maps.Keys(prev)) {
		if _, ok := cur[path]; !ok {
			cs.Removed = append(cs.Removed, path)
		}
	}
	return cs
}

func (s *Store) TextDiff(ctx context.Context, id, path string) (*vcs.RawDiff, error) {
	if err := s.begin(MethodTextDiff, id); err != nil {
		return nil, err
	}
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revs[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	if s.binary[id+"\x00"+path] {
		return nil, fmt.Errorf("%s is binary: %w", path, vcs.ErrUnavailable)
	}
	oldPath := path
	if cs, ok := s.changes[id]; ok {
		if r, ok := cs.RenameOf(path); ok {
			oldPath = r.OldPath
		}
	}
	newLines, inNew := s.files[id][path]
	var oldLines []string
	inOld := false
	if len(rev.Parents) > 0 {
		oldLines, inOld = s.files[rev.Parents[0]][oldPath]
	}
	if !inNew && !inOld {
		return nil, fmt.Errorf("%s at %s: %w", path, id, vcs.ErrNotFound)
	}
	return &vcs.RawDiff{
		OldLines: oldLines,
		NewLines: newLines,
		Ops:      vcs.MatchLines(s.Matcher, oldLines, newLines),
	}, nil
}

// ChangedPathsBetween compares file contents only; renames are never
// detected between arbitrary revisions.
func (s *Store) ChangedPathsBetween(ctx context.Context, base, id string) (*vcs.ChangeSet, error) {
	if err := s.begin(MethodChangedPathsBetween, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rev := range []string{base, id} {
		if _, ok := s.revs[rev]; !ok {
			return nil, fmt.Errorf("revision %s: %w", rev, vcs.ErrNotFound)
		}
	}
	return compareFiles(s.files[base], s.files[id]), nil
}

func (s *Store) TextDiffBetween(ctx context.Context, base, id, path string) (*vcs.RawDiff, error) {
	if err := s.begin(MethodTextDiffBetween, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rev := range []string{base, id} {
		if _, ok := s.revs[rev]; !ok {
			return nil, fmt.Errorf("revision %s: %w", rev, vcs.ErrNotFound)
		}
	}
	if s.binary[id+"\x00"+path] || s.binary[base+"\x00"+path] {
		return nil, fmt.Errorf("%s is binary: %w", path, vcs.ErrUnavailable)
	}
	oldLines, inOld := s.files[base][path]
	newLines, inNew := s.files[id][path]
	if !inNew && !inOld {
		return nil, fmt.Errorf("%s between %s and %s: %w", path, base, id, vcs.ErrNotFound)
	}
	return &vcs.RawDiff{
		OldLines: oldLines,
		NewLines: newLines,
		Ops:      vcs.MatchLines(s.Matcher, oldLines, newLines),
	}, nil
}

// Tree derives directories from the file paths set on id.
func (s *Store) Tree(ctx context.Context, id, dir string) ([]vcs.TreeEntry, error) {
	if err := s.begin(MethodTree, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revs[id]; !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	files := s.files[id]
	if _, ok := files[dir]; ok && dir != "" {
		return nil, fmt.Errorf("%s is not a directory: %w", dir, vcs.ErrUnavailable)
	}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := map[string]bool{}
	entries := []vcs.TreeEntry{}
	for path, lines := range files {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		entry := vcs.TreeEntry{Name: name, Path: prefix + name, Kind: vcs.EntryFile}
		if nested {
			entry.Kind = vcs.EntryDir
		} else if len(lines) > 0 {
			entry.Size = int64(len(strings.Join(lines, "\n")) + 1)
		}
		entries = append(entries, entry)
	}
	if dir != "" && len(entries) == 0 {
		return nil, fmt.Errorf("directory %s at %s: %w", dir, id, vcs.ErrNotFound)
	}
	vcs.SortTree(entries)
	return entries, nil
}

func (s *Store) Blame(ctx context.Context, id, path string) ([]vcs.BlameEntry, error) {
	if err := s.begin(MethodBlame, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entries, ok := s.blame[id+"\x00"+path]; ok {
		return entries, nil
	}
	if s.binary[id+"\x00"+path] {
		return nil, fmt.Errorf("%s is binary: %w", path, vcs.ErrUnavailable)
	}
	lines, ok := s.files[id][path]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, id, vcs.ErrNotFound)
	}
	entries := make([]vcs.BlameEntry, len(lines))
	for i, line := range lines {
		entries[i] = vcs.BlameEntry{RevisionID: id, Line: i + 1, Text: line}
	}
	return entries, nil
}

func (s *Store) TipID(ctx context.Context) (string, error) {
	if err := s.begin(MethodTipID, ""); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tip == "" {
		return "", fmt.Errorf("tip: %w", vcs.ErrNotFound)
	}
	return s.tip, nil
}

func (s *Store) Labels(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.labels), nil
}
