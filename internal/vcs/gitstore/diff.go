package gitstore

import (
	"context"
	"errors"
	"fmt"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/vcs"
)

// fileLines returns the lines of path in tree. A nil tree or a missing
// path yields ok=false.
func fileLines(tree *object.Tree, path string) (lines []string, ok bool, err error) {
	if tree == nil {
		return nil, false, nil
	}
	entry, err := tree.FindEntry(path)
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("find "+path, err)
	}
	if entry.Mode == filemode.Submodule || entry.Mode == filemode.Dir {
		return nil, false, fmt.Errorf("%s is not a regular file: %w", path, vcs.ErrUnavailable)
	}
	file, err := tree.TreeEntryFile(entry)
	if err != nil {
		return nil, false, classify("open "+path, err)
	}
	binary, err := file.IsBinary()
	if err != nil {
		return nil, false, classify("inspect "+path, err)
	}
	if binary {
		return nil, false, fmt.Errorf("%s is binary: %w", path, vcs.ErrUnavailable)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, false, classify("read "+path, err)
	}
	return vcs.SplitLines(content), true, nil
}

func (s *Store) TextDiff(ctx context.Context, id, path string) (*vcs.RawDiff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	oldLines, newLines, err := s.parentSidesLocked(ctx, id, path)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.rawDiff(oldLines, newLines), nil
}

func (s *Store) TextDiffBetween(ctx context.Context, base, id, path string) (*vcs.RawDiff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	oldLines, newLines, err := s.pairSidesLocked(ctx, base, id, path)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.rawDiff(oldLines, newLines), nil
}

// rawDiff runs line matching, which needs no lock.
func (s *Store) rawDiff(oldLines, newLines []string) *vcs.RawDiff {
	return &vcs.RawDiff{
		OldLines: oldLines,
		NewLines: newLines,
		Ops:      vcs.MatchLines(s.matcher, oldLines, newLines),
	}
}

func (s *Store) parentSidesLocked(ctx context.Context, id, path string) (oldLines, newLines []string, err error) {
	commit, err := s.commitLocked(id)
	if err != nil {
		return nil, nil, err
	}
	parentTree, tree, err := s.treesLocked(commit)
	if err != nil {
		return nil, nil, err
	}
	return s.sidesLocked(ctx, id, parentTree, tree, path)
}

func (s *Store) pairSidesLocked(ctx context.Context, base, id, path string) (oldLines, newLines []string, err error) {
	baseTree, tree, err := s.pairLocked(base, id)
	if err != nil {
		return nil, nil, err
	}
	return s.sidesLocked(ctx, base+".."+id, baseTree, tree, path)
}

// sidesLocked reads both versions of path. A path missing from the old
// tree is looked up as the target of a rename.
func (s *Store) sidesLocked(ctx context.Context, what string, oldTree, tree *object.Tree, path string) (oldLines, newLines []string, err error) {
	newLines, inNew, err := fileLines(tree, path)
	if err != nil {
		return nil, nil, err
	}
	oldPath := path
	if inNew && oldTree != nil {
		if _, err := oldTree.FindEntry(path); err != nil {
			cs, err := diffTrees(ctx, what, oldTree, tree)
			if err != nil {
				return nil, nil, err
			}
			if r, ok := cs.RenameOf(path); ok {
				oldPath = r.OldPath
			}
		}
	}
	oldLines, inOld, err := fileLines(oldTree, oldPath)
	if err != nil {
		return nil, nil, err
	}
	if !inNew && !inOld {
		return nil, nil, fmt.Errorf("%s at %s: %w", path, what, vcs.ErrNotFound)
	}
	s.log.Debug("Read file sides",
		zap.String("revision", what),
		zap.String("path", path),
		zap.String("old_path", oldPath),
		zap.Int("old_lines", len(oldLines)),
		zap.Int("new_lines", len(newLines)),
	)
	return oldLines, newLines, nil
}

func (s *Store) Blame(ctx context.Context, id, path string) ([]vcs.BlameEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	commit, err := s.commitLocked(id)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, classify("read tree", err)
	}
	if _, ok, err := fileLines(tree, path); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, id, vcs.ErrNotFound)
	}
	result, err := gitlib.Blame(commit, path)
	if err != nil {
		return nil, classify("blame "+path, err)
	}
	entries := make([]vcs.BlameEntry, len(result.Lines))
	for n, line := range result.Lines {
		entries[n] = vcs.BlameEntry{RevisionID: line.Hash.String(), Line: n + 1, Text: line.Text}
	}
	return entries, nil
}
