// Package nav answers history browsing requests: pages of revisions, change
// sets, diffs and annotations, memoized per branch tip generation.
package nav

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/diffview"
	"github.com/thiagokokada/revlog/internal/graph"
	"github.com/thiagokokada/revlog/internal/highlight"
	"github.com/thiagokokada/revlog/internal/pagecache"
	"github.com/thiagokokada/revlog/internal/vcs"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// Highlighter is optional; nil leaves Line.Highlighted empty.
	Highlighter *highlight.Highlighter
	Logger      *zap.Logger
}

type Navigator struct {
	store     vcs.Store
	index     *graph.Index
	cache     *pagecache.Cache
	formatter *diffview.Formatter
	highlight *highlight.Highlighter
	log       *zap.Logger

	defaultPageSize int
	maxPageSize     int
}

func New(store vcs.Store, index *graph.Index, cache *pagecache.Cache, formatter *diffview.Formatter, opts Options) *Navigator {
	n := &Navigator{
		store:           store,
		index:           index,
		cache:           cache,
		formatter:       formatter,
		highlight:       opts.Highlighter,
		log:             opts.Logger,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
	}
	if n.log == nil {
		n.log = zap.NewNop()
	}
	if n.formatter == nil {
		n.formatter = diffview.NewFormatter(diffview.DefaultContext, diffview.DefaultTabWidth)
	}
	if n.maxPageSize <= 0 {
		n.maxPageSize = MaxPageSize
	}
	if n.defaultPageSize <= 0 {
		n.defaultPageSize = DefaultPageSize
	}
	n.defaultPageSize = min(n.defaultPageSize, n.maxPageSize)
	return n
}

// Refresh re-reads the branch tip and drops cached results when it moved.
func (n *Navigator) Refresh(ctx context.Context) (bool, error) {
	changed, err := n.ensureFresh(ctx)
	if err != nil {
		return false, err
	}
	if changed {
		n.log.Info("Branch tip moved",
			zap.String("tip", n.index.Tip()),
			zap.Uint64("generation", n.index.Generation()),
		)
	}
	return changed, nil
}

func (n *Navigator) ensureFresh(ctx context.Context) (bool, error) {
	changed, err := n.index.Refresh(ctx)
	if err != nil {
		return false, err
	}
	n.cache.Invalidate(n.index.Generation())
	return changed, nil
}

// PageSize applies the default and the upper bound to a requested size.
func (n *Navigator) PageSize(size int) int {
	if size <= 0 {
		return n.defaultPageSize
	}
	return min(size, n.maxPageSize)
}

func (n *Navigator) Tip() string { return n.index.Tip() }

// Navigate returns the page ending at anchor (the tip when empty). A
// non-empty pathFilter keeps only revisions touching matching paths.
func (n *Navigator) Navigate(ctx context.Context, anchor string, pageSize int, pathFilter string) (*graph.Page, error) {
	req := n.begin("navigate", zap.String("anchor", anchor), zap.String("path", pathFilter))
	id, err := n.resolve(ctx, anchor)
	if err != nil {
		return nil, req.fail(err)
	}
	match, err := compilePathFilter(pathFilter)
	if err != nil {
		return nil, req.fail(err)
	}
	size := n.PageSize(pageSize)

	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindPage, Revision: id, PageSize: size, Path: pathFilter}
	page, err := pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*graph.Page, error) {
		var filter graph.Filter
		if match != nil {
			filter = func(ctx context.Context, id string) (bool, error) {
				cs, err := n.changeset(ctx, id)
				if err != nil {
					return false, err
				}
				return match.matchAny(cs.Paths()), nil
			}
		}
		page, err := n.index.Page(ctx, id, size, filter)
		if err != nil {
			return nil, err
		}
		labels := n.labels(ctx)
		for i := range page.Entries {
			page.Entries[i].Labels = labels[page.Entries[i].Revision.ID]
		}
		return page, nil
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return page, nil
}

func (n *Navigator) Changeset(ctx context.Context, id string) (*vcs.ChangeSet, error) {
	req := n.begin("changeset", zap.String("revision", id))
	id, err := n.resolve(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.to(stateLoading)
	cs, err := n.changeset(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return cs, nil
}

func (n *Navigator) changeset(ctx context.Context, id string) (*vcs.ChangeSet, error) {
	key := pagecache.Key{Kind: pagecache.KindChangeSet, Revision: id}
	return pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*vcs.ChangeSet, error) {
		cs, err := n.store.ChangedPaths(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("changed paths of %s: %w", id, err)
		}
		return cs, nil
	})
}

// Diff returns the chunks of path's change in id against its first parent.
func (n *Navigator) Diff(ctx context.Context, id, path string) ([]diffview.Chunk, error) {
	req := n.begin("diff", zap.String("revision", id), zap.String("path", path))
	id, err := n.resolve(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.to(stateLoading)
	chunks, err := n.diff(ctx, req, "", id, path)
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return chunks, nil
}

// diff compares path at id with base, or with the first parent of id when
// base is empty.
func (n *Navigator) diff(ctx context.Context, req *request, base, id, path string) ([]diffview.Chunk, error) {
	key := pagecache.Key{Kind: pagecache.KindDiff, Revision: id, Base: base, Path: path}
	return pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) ([]diffview.Chunk, error) {
		var raw *vcs.RawDiff
		var err error
		if base == "" {
			raw, err = n.store.TextDiff(ctx, id, path)
		} else {
			raw, err = n.store.TextDiffBetween(ctx, base, id, path)
		}
		if err != nil {
			return nil, fmt.Errorf("diff %s at %s: %w", path, id, err)
		}
		req.to(stateFormatting)
		chunks, err := n.formatter.FormatDiff(raw.OldLines, raw.NewLines, raw.Ops)
		if err != nil {
			return nil, fmt.Errorf("format diff %s at %s: %w", path, id, err)
		}
		if n.highlight != nil {
			diffview.Highlight(chunks, n.highlight.Func(path))
		}
		return chunks, nil
	})
}

// Annotate attributes every line of path at id to the revision that last
// changed it.
func (n *Navigator) Annotate(ctx context.Context, id, path string) ([]diffview.AnnotatedLine, error) {
	req := n.begin("annotate", zap.String("revision", id), zap.String("path", path))
	id, err := n.resolve(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindAnnotate, Revision: id, Path: path}
	lines, err := pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) ([]diffview.AnnotatedLine, error) {
		entries, err := n.store.Blame(ctx, id, path)
		if err != nil {
			return nil, fmt.Errorf("annotate %s at %s: %w", path, id, err)
		}
		req.to(stateFormatting)
		lines, err := n.formatter.FormatAnnotate(entries)
		if err != nil {
			return nil, fmt.Errorf("format annotate %s at %s: %w", path, id, err)
		}
		for i := range lines {
			// Revisions outside the branch ancestry keep revno 0.
			if revno, err := n.index.Revno(lines[i].RevisionID); err == nil {
				lines[i].Revno = revno
			}
		}
		return lines, nil
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return lines, nil
}

func (n *Navigator) ScanRange(ctx context.Context, id string, pageSize int) ([]graph.Jump, error) {
	req := n.begin("scan", zap.String("revision", id))
	id, err := n.resolve(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	size := n.PageSize(pageSize)
	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindScan, Revision: id, PageSize: size}
	jumps, err := pagecache.GetOrCompute(ctx, n.cache, key, func(context.Context) ([]graph.Jump, error) {
		return n.index.ScanRange(id, size)
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return jumps, nil
}

func (n *Navigator) resolve(ctx context.Context, ref string) (string, error) {
	if _, err := n.ensureFresh(ctx); err != nil {
		return "", err
	}
	return n.index.Resolve(ref)
}

// labels is best effort: a failing label lookup leaves entries unlabeled.
func (n *Navigator) labels(ctx context.Context) map[string][]string {
	labeler, ok := n.store.(vcs.Labeler)
	if !ok {
		return nil
	}
	labels, err := labeler.Labels(ctx)
	if err != nil {
		n.log.Warn("Reading labels failed", zap.Error(err))
		return nil
	}
	return labels
}

type state int

const (
	stateResolving state = iota
	stateLoading
	stateFormatting
	stateReady
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateResolving:
		return "resolving"
	case stateLoading:
		return "loading"
	case stateFormatting:
		return "formatting"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// request logs the state transitions of one navigation call. Transitions
// may be reported from a shared computation after the caller returned.
type request struct {
	log   *zap.Logger
	start time.Time
}

func (n *Navigator) begin(op string, fields ...zap.Field) *request {
	r := &request{
		log:   n.log.With(append([]zap.Field{zap.String("op", op)}, fields...)...),
		start: time.Now(),
	}
	r.log.Debug("Navigation state", zap.Stringer("state", stateResolving))
	return r
}

func (r *request) to(s state) {
	r.log.Debug("Navigation state", zap.Stringer("state", s))
}

func (r *request) done() {
	r.log.Debug("Navigation state",
		zap.Stringer("state", stateReady),
		zap.Duration("elapsed", time.Since(r.start)),
	)
}

func (r *request) fail(err error) error {
	r.log.Debug("Navigation state",
		zap.Stringer("state", stateFailed),
		zap.Stringer("kind", vcs.KindOf(err)),
		zap.Error(err),
	)
	return err
}
