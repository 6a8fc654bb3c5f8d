// Package gitstore reads revision data from a git repository with go-git.
package gitstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/vcs"
)

type Options struct {
	Matcher vcs.Matcher
	Logger  *zap.Logger
}

type Store struct {
	// mu serializes object reads; go-git storage is not safe for
	// concurrent use.
	mu sync.Mutex

	repo    *gitlib.Repository
	path    string
	branch  string
	matcher vcs.Matcher
	log     *zap.Logger
}

var _ vcs.Store = (*Store)(nil)
var _ vcs.Labeler = (*Store)(nil)

// Open opens the repository containing path. An empty branch follows HEAD.
func Open(path, branch string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	matcher := opts.Matcher
	if matcher == "" {
		matcher = vcs.MatcherDifflib
	}
	root := abs
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &Store{repo: repo, path: root, branch: branch, matcher: matcher, log: log}, nil
}

// Path is the worktree root, or the repository directory when bare.
func (s *Store) Path() string { return s.path }

// classify maps go-git errors onto the vcs error taxonomy.
func classify(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, plumbing.ErrObjectNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, object.ErrFileNotFound),
		errors.Is(err, vcs.ErrNotFound):
		return fmt.Errorf("%s: %w (%w)", what, vcs.ErrNotFound, err)
	case errors.Is(err, vcs.ErrUnavailable), errors.Is(err, vcs.ErrInvariant):
		return fmt.Errorf("%s: %w", what, err)
	default:
		return fmt.Errorf("%s: %w (%w)", what, vcs.ErrBackendIO, err)
	}
}

func parseID(id string) (plumbing.Hash, error) {
	if len(id) != 40 {
		return plumbing.ZeroHash, fmt.Errorf("malformed revision id %q: %w", id, vcs.ErrNotFound)
	}
	if _, err := hex.DecodeString(id); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("malformed revision id %q: %w", id, vcs.ErrNotFound)
	}
	return plumbing.NewHash(id), nil
}

func (s *Store) commitLocked(id string) (*object.Commit, error) {
	hash, err := parseID(id)
	if err != nil {
		return nil, err
	}
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, classify("read commit "+id, err)
	}
	return commit, nil
}

func (s *Store) Revision(ctx context.Context, id string) (*vcs.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	commit, err := s.commitLocked(id)
	if err != nil {
		return nil, err
	}
	return toRevision(commit), nil
}

func toRevision(c *object.Commit) *vcs.Revision {
	parents := make([]string, len(c.ParentHashes))
	for n, p := range c.ParentHashes {
		parents[n] = p.String()
	}
	committer := c.Committer.Name
	if committer == "" {
		committer = c.Author.Name
	}
	return &vcs.Revision{
		ID:          c.Hash.String(),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Committer:   committer,
		When:        c.Author.When,
		Message:     c.Message,
		Parents:     parents,
	}
}

func (s *Store) Parents(ctx context.Context, id string) ([]string, error) {
	rev, err := s.Revision(ctx, id)
	if err != nil {
		return nil, err
	}
	return rev.Parents, nil
}

func (s *Store) TipID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ref *plumbing.Reference
	var err error
	if s.branch == "" {
		ref, err = s.repo.Head()
	} else {
		ref, err = s.repo.Reference(plumbing.NewBranchReferenceName(s.branch), true)
	}
	if err != nil {
		return "", classify("resolve branch tip", err)
	}
	return ref.Hash().String(), nil
}
