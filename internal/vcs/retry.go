package vcs

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type retryStore struct {
	inner Store
	log   *zap.Logger
}

// WithRetry wraps store so that every call failing with ErrBackendIO is
// attempted once more before the error is returned.
func WithRetry(store Store, log *zap.Logger) Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &retryStore{inner: store, log: log}
}

func retry[T any](ctx context.Context, s *retryStore, op string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || !errors.Is(err, ErrBackendIO) || ctx.Err() != nil {
		return v, err
	}
	s.log.Debug("Retrying store call", zap.String("op", op), zap.Error(err))
	return fn()
}

func (s *retryStore) Revision(ctx context.Context, id string) (*Revision, error) {
	return retry(ctx, s, "revision", func() (*Revision, error) { return s.inner.Revision(ctx, id) })
}

func (s *retryStore) Parents(ctx context.Context, id string) ([]string, error) {
	return retry(ctx, s, "parents", func() ([]string, error) { return s.inner.Parents(ctx, id) })
}

func (s *retryStore) ChangedPaths(ctx context.Context, id string) (*ChangeSet, error) {
	return retry(ctx, s, "changed_paths", func() (*ChangeSet, error) { return s.inner.ChangedPaths(ctx, id) })
}

func (s *retryStore) TextDiff(ctx context.Context, id, path string) (*RawDiff, error) {
	return retry(ctx, s, "text_diff", func() (*RawDiff, error) { return s.inner.TextDiff(ctx, id, path) })
}

func (s *retryStore) Blame(ctx context.Context, id, path string) ([]BlameEntry, error) {
	return retry(ctx, s, "blame", func() ([]BlameEntry, error) { return s.inner.Blame(ctx, id, path) })
}

func (s *retryStore) TipID(ctx context.Context) (string, error) {
	return retry(ctx, s, "tip", func() (string, error) { return s.inner.TipID(ctx) })
}

func (s *retryStore) ChangedPathsBetween(ctx context.Context, base, id string) (*ChangeSet, error) {
	return retry(ctx, s, "changed_paths_between", func() (*ChangeSet, error) { return s.inner.ChangedPathsBetween(ctx, base, id) })
}

func (s *retryStore) TextDiffBetween(ctx context.Context, base, id, path string) (*RawDiff, error) {
	return retry(ctx, s, "text_diff_between", func() (*RawDiff, error) { return s.inner.TextDiffBetween(ctx, base, id, path) })
}

func (s *retryStore) Tree(ctx context.Context, id, dir string) ([]TreeEntry, error) {
	return retry(ctx, s, "tree", func() ([]TreeEntry, error) { return s.inner.Tree(ctx, id, dir) })
}

func (s *retryStore) Labels(ctx context.Context) (map[string][]string, error) {
	labeler, ok := s.inner.(Labeler)
	if !ok {
		return map[string][]string{}, nil
	}
	return retry(ctx, s, "labels", func() (map[string][]string, error) { return labeler.Labels(ctx) })
}
