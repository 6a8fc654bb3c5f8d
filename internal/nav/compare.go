package nav

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/diffview"
	"github.com/thiagokokada/revlog/internal/graph"
	"github.com/thiagokokada/revlog/internal/pagecache"
	"github.com/thiagokokada/revlog/internal/vcs"
)

// Comparison is the delta between two arbitrary indexed revisions.
type Comparison struct {
	Base      graph.Ref      `json:"base"`
	Target    graph.Ref      `json:"target"`
	ChangeSet *vcs.ChangeSet `json:"changeset"`
	Files     []FileDiff     `json:"files,omitempty"`
}

// Compare reports what changed from base to id. Per-file diffs are only
// computed when withDiffs is set.
func (n *Navigator) Compare(ctx context.Context, base, id string, withDiffs bool) (*Comparison, error) {
	req := n.begin("compare", zap.String("base", base), zap.String("revision", id), zap.Bool("diffs", withDiffs))
	base, id, err := n.resolvePair(ctx, base, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindCompare, Revision: id, Base: base}
	if withDiffs {
		key.Kind = pagecache.KindCompareDiffs
	}
	view, err := pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*Comparison, error) {
		out := &Comparison{}
		var err error
		if out.Base, err = n.ref(base); err != nil {
			return nil, err
		}
		if out.Target, err = n.ref(id); err != nil {
			return nil, err
		}
		if out.ChangeSet, err = n.changesetBetween(ctx, base, id); err != nil {
			return nil, err
		}
		if withDiffs {
			if out.Files, err = n.fileDiffs(ctx, req, base, id, out.ChangeSet.DiffPaths()); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return view, nil
}

// DiffBetween returns the chunks of path's change from base to id.
func (n *Navigator) DiffBetween(ctx context.Context, base, id, path string) ([]diffview.Chunk, error) {
	req := n.begin("diff", zap.String("base", base), zap.String("revision", id), zap.String("path", path))
	base, id, err := n.resolvePair(ctx, base, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.to(stateLoading)
	chunks, err := n.diff(ctx, req, base, id, path)
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return chunks, nil
}

func (n *Navigator) changesetBetween(ctx context.Context, base, id string) (*vcs.ChangeSet, error) {
	key := pagecache.Key{Kind: pagecache.KindChangeSet, Revision: id, Base: base}
	return pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*vcs.ChangeSet, error) {
		cs, err := n.store.ChangedPathsBetween(ctx, base, id)
		if err != nil {
			return nil, fmt.Errorf("changed paths from %s to %s: %w", base, id, err)
		}
		return cs, nil
	})
}

// resolvePair resolves both ends against one index generation. An empty
// base is refused since the first-parent diff has its own entry points.
func (n *Navigator) resolvePair(ctx context.Context, base, id string) (string, string, error) {
	if base == "" {
		return "", "", fmt.Errorf("missing base revision: %w", vcs.ErrUnavailable)
	}
	id, err := n.resolve(ctx, id)
	if err != nil {
		return "", "", err
	}
	base, err = n.index.Resolve(base)
	if err != nil {
		return "", "", err
	}
	return base, id, nil
}

func (n *Navigator) ref(id string) (graph.Ref, error) {
	revno, err := n.index.Revno(id)
	if err != nil {
		return graph.Ref{}, err
	}
	return graph.Ref{ID: id, Revno: revno}, nil
}
