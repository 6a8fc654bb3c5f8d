package vcs

import "context"

// Store reads immutable revision data from one branch of a repository.
// Implementations must be safe for concurrent use.
type Store interface {
	Revision(ctx context.Context, id string) (*Revision, error)
	Parents(ctx context.Context, id string) ([]string, error)
	ChangedPaths(ctx context.Context, id string) (*ChangeSet, error)
	TextDiff(ctx context.Context, id, path string) (*RawDiff, error)
	Blame(ctx context.Context, id, path string) ([]BlameEntry, error)
	TipID(ctx context.Context) (string, error)

	// ChangedPathsBetween and TextDiffBetween compare id against base
	// instead of against the first parent of id.
	ChangedPathsBetween(ctx context.Context, base, id string) (*ChangeSet, error)
	TextDiffBetween(ctx context.Context, base, id, path string) (*RawDiff, error)

	// Tree lists the direct children of dir at id. An empty dir is the
	// repository root.
	Tree(ctx context.Context, id, dir string) ([]TreeEntry, error)
}

// Labeler is implemented by stores that know branch and tag names.
type Labeler interface {
	Labels(ctx context.Context) (map[string][]string, error)
}
