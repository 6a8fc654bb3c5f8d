package gitstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/thiagokokada/revlog/internal/vcs"
)

// treesLocked returns the tree of commit and of its first parent, the
// latter nil for a root commit.
func (s *Store) treesLocked(commit *object.Commit) (parentTree, tree *object.Tree, err error) {
	tree, err = commit.Tree()
	if err != nil {
		return nil, nil, classify("read tree", err)
	}
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return nil, nil, classify("read first parent", err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, nil, classify("read parent tree", err)
		}
	}
	return parentTree, tree, nil
}

func (s *Store) ChangedPaths(ctx context.Context, id string) (*vcs.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changedPathsLocked(ctx, id)
}

func (s *Store) changedPathsLocked(ctx context.Context, id string) (*vcs.ChangeSet, error) {
	commit, err := s.commitLocked(id)
	if err != nil {
		return nil, err
	}
	parentTree, tree, err := s.treesLocked(commit)
	if err != nil {
		return nil, err
	}
	return diffTrees(ctx, id, parentTree, tree)
}

func (s *Store) ChangedPathsBetween(ctx context.Context, base, id string) (*vcs.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	baseTree, tree, err := s.pairLocked(base, id)
	if err != nil {
		return nil, err
	}
	return diffTrees(ctx, base+".."+id, baseTree, tree)
}

// pairLocked returns the trees of base and id.
func (s *Store) pairLocked(base, id string) (baseTree, tree *object.Tree, err error) {
	for _, side := range []struct {
		id   string
		tree **object.Tree
	}{{base, &baseTree}, {id, &tree}} {
		commit, err := s.commitLocked(side.id)
		if err != nil {
			return nil, nil, err
		}
		if *side.tree, err = commit.Tree(); err != nil {
			return nil, nil, classify("read tree of "+side.id, err)
		}
	}
	return baseTree, tree, nil
}

func diffTrees(ctx context.Context, what string, from, to *object.Tree) (*vcs.ChangeSet, error) {
	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, classify("diff trees of "+what, err)
	}
	cs := &vcs.ChangeSet{}
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, classify("classify change", err)
		}
		switch action {
		case merkletrie.Insert:
			cs.Added = append(cs.Added, change.To.Name)
		case merkletrie.Delete:
			cs.Removed = append(cs.Removed, change.From.Name)
		case merkletrie.Modify:
			if change.From.Name != change.To.Name {
				cs.Renamed = append(cs.Renamed, vcs.Rename{
					OldPath:        change.From.Name,
					NewPath:        change.To.Name,
					ContentChanged: change.From.TreeEntry.Hash != change.To.TreeEntry.Hash,
				})
				continue
			}
			cs.Modified = append(cs.Modified, change.To.Name)
		default:
			return nil, fmt.Errorf("unexpected change action %v in %s: %w", action, what, vcs.ErrInvariant)
		}
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Removed)
	slices.Sort(cs.Modified)
	slices.SortFunc(cs.Renamed, func(a, b vcs.Rename) int { return strings.Compare(a.NewPath, b.NewPath) })
	return cs, nil
}
