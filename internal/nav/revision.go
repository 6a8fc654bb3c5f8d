package nav

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/revlog/internal/diffview"
	"github.com/thiagokokada/revlog/internal/graph"
	"github.com/thiagokokada/revlog/internal/pagecache"
	"github.com/thiagokokada/revlog/internal/vcs"
)

const diffWorkers = 4

// FileDiff is the rendered change of one path. Err is set instead of
// Chunks when the diff could not be produced.
type FileDiff struct {
	Path   string           `json:"path"`
	Chunks []diffview.Chunk `json:"chunks,omitempty"`
	Err    *vcs.FieldError  `json:"error,omitempty"`
}

// RevisionView is everything shown on a single revision page. A failing
// change set is reported in ChangeSetErr without failing the view.
type RevisionView struct {
	Revision     *vcs.Revision   `json:"revision"`
	MergedFrom   []graph.Ref     `json:"merged_from,omitempty"`
	MergePoints  []graph.Ref     `json:"merge_points,omitempty"`
	Labels       []string        `json:"labels,omitempty"`
	ChangeSet    *vcs.ChangeSet  `json:"changeset,omitempty"`
	ChangeSetErr *vcs.FieldError `json:"changeset_error,omitempty"`
	Files        []FileDiff      `json:"files,omitempty"`
}

// Revision assembles the view of id. Diffs are only computed when
// withDiffs is set.
func (n *Navigator) Revision(ctx context.Context, id string, withDiffs bool) (*RevisionView, error) {
	req := n.begin("revision", zap.String("revision", id), zap.Bool("diffs", withDiffs))
	id, err := n.resolve(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindRevision, Revision: id}
	if withDiffs {
		key.Kind = pagecache.KindRevisionDiffs
	}
	view, err := pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*RevisionView, error) {
		return n.revisionView(ctx, req, id, withDiffs)
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return view, nil
}

func (n *Navigator) revisionView(ctx context.Context, req *request, id string, withDiffs bool) (*RevisionView, error) {
	rev, err := n.store.Revision(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read revision %s: %w", id, err)
	}
	if rev.Revno, err = n.index.Revno(id); err != nil {
		return nil, err
	}
	view := &RevisionView{Revision: rev, Labels: n.labels(ctx)[id]}
	for _, p := range rev.Parents[min(1, len(rev.Parents)):] {
		revno, err := n.index.Revno(p)
		if err != nil {
			return nil, err
		}
		view.MergedFrom = append(view.MergedFrom, graph.Ref{ID: p, Revno: revno})
	}
	if view.MergePoints, err = n.index.MergePointRefs(id); err != nil {
		return nil, err
	}

	cs, err := n.changeset(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n.log.Warn("Change set unavailable", zap.String("revision", id), zap.Error(err))
		view.ChangeSetErr = vcs.NewFieldError(err)
		return view, nil
	}
	view.ChangeSet = cs
	if !withDiffs {
		return view, nil
	}

	if view.Files, err = n.fileDiffs(ctx, req, "", id, cs.DiffPaths()); err != nil {
		return nil, err
	}
	return view, nil
}

// fileDiffs renders every path concurrently. A path that cannot be diffed
// carries its error instead of failing the whole list.
func (n *Navigator) fileDiffs(ctx context.Context, req *request, base, id string, paths []string) ([]FileDiff, error) {
	files := make([]FileDiff, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(diffWorkers)
	for i, path := range paths {
		g.Go(func() error {
			chunks, err := n.diff(gctx, req, base, id, path)
			files[i] = FileDiff{Path: path, Chunks: chunks}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				files[i].Chunks = nil
				files[i].Err = vcs.NewFieldError(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
