package gitstore

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/revlog/internal/vcs"
)

func (s *Store) Tree(ctx context.Context, id, dir string) ([]vcs.TreeEntry, error) {
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
	if dir != "" {
		if tree, err = subtree(tree, dir); err != nil {
			return nil, fmt.Errorf("%s at %s: %w", dir, id, err)
		}
	}

	entries := make([]vcs.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entry := vcs.TreeEntry{Name: e.Name, Path: path.Join(dir, e.Name)}
		switch e.Mode {
		case filemode.Dir:
			entry.Kind = vcs.EntryDir
		case filemode.Submodule:
			entry.Kind = vcs.EntrySubmodule
		case filemode.Symlink:
			entry.Kind = vcs.EntrySymlink
		default:
			entry.Kind = vcs.EntryFile
			entry.Executable = e.Mode == filemode.Executable
		}
		if entry.Kind == vcs.EntryFile || entry.Kind == vcs.EntrySymlink {
			blob, err := s.repo.BlobObject(e.Hash)
			if err != nil {
				return nil, classify("read "+entry.Path, err)
			}
			entry.Size = blob.Size
		}
		entries = append(entries, entry)
	}
	vcs.SortTree(entries)
	return entries, nil
}

func subtree(tree *object.Tree, dir string) (*object.Tree, error) {
	entry, err := tree.FindEntry(dir)
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, vcs.ErrNotFound
	}
	if err != nil {
		return nil, classify("find "+dir, err)
	}
	if entry.Mode != filemode.Dir {
		return nil, fmt.Errorf("not a directory: %w", vcs.ErrUnavailable)
	}
	sub, err := tree.Tree(dir)
	if err != nil {
		return nil, classify("read directory "+dir, err)
	}
	return sub, nil
}
