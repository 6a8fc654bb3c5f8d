// Package graph indexes the parent graph of a branch so that revnos,
// first-parent pages and merge points can be answered without touching the
// repository again.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/vcs"
)

// ParentCache persists parent lists across restarts. Revisions are
// immutable so any stored entry stays valid forever.
type ParentCache interface {
	LoadParents(ctx context.Context) (map[string][]string, error)
	StoreParents(ctx context.Context, tip string, parents map[string][]string) error
}

type Index struct {
	store   vcs.Store
	parents ParentCache
	log     *zap.Logger

	// buildMu serializes rebuilds; readers only take mu.
	buildMu sync.Mutex
	mu      sync.RWMutex
	snap    *snapshot
	gen     uint64
	loaded  bool
}

type Option func(*Index)

func WithParentCache(pc ParentCache) Option {
	return func(i *Index) { i.parents = pc }
}

func WithLogger(log *zap.Logger) Option {
	return func(i *Index) { i.log = log }
}

func New(store vcs.Store, opts ...Option) *Index {
	i := &Index{store: store}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = zap.NewNop()
	}
	return i
}

func (i *Index) current() (*snapshot, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.snap == nil {
		return nil, fmt.Errorf("history index not loaded: %w", vcs.ErrUnavailable)
	}
	return i.snap, nil
}

// Generation increases every time a new tip is indexed.
func (i *Index) Generation() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.gen
}

func (i *Index) Tip() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.snap == nil {
		return ""
	}
	return i.snap.tip
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.snap == nil {
		return 0
	}
	return len(i.snap.nodes)
}

// Refresh reads the current tip and rebuilds the index when it moved.
func (i *Index) Refresh(ctx context.Context) (bool, error) {
	i.buildMu.Lock()
	defer i.buildMu.Unlock()

	tip, err := i.store.TipID(ctx)
	if err != nil {
		return false, fmt.Errorf("read branch tip: %w", err)
	}
	i.mu.RLock()
	prev := i.snap
	i.mu.RUnlock()
	if prev != nil && prev.tip == tip {
		return false, nil
	}

	start := time.Now()
	known := i.knownParents(ctx, prev)
	parents, fetched, err := i.walk(ctx, tip, known)
	if err != nil {
		i.log.Error("History index build failed", zap.String("tip", tip), zap.Error(err))
		return false, err
	}
	snap, err := buildSnapshot(tip, parents)
	if err != nil {
		i.log.Error("History index build failed", zap.String("tip", tip), zap.Error(err))
		return false, err
	}
	if i.parents != nil && len(fetched) > 0 {
		if err := i.parents.StoreParents(ctx, tip, fetched); err != nil {
			i.log.Warn("Persisting parent map failed", zap.Error(err))
		}
	}

	i.mu.Lock()
	i.gen++
	snap.gen = i.gen
	i.snap = snap
	i.mu.Unlock()

	i.log.Debug("History index rebuilt",
		zap.String("tip", tip),
		zap.Int("revisions", len(snap.nodes)),
		zap.Int("fetched", len(fetched)),
		zap.Uint64("generation", snap.gen),
		zap.Duration("elapsed", time.Since(start)),
	)
	return true, nil
}

func (i *Index) knownParents(ctx context.Context, prev *snapshot) map[string][]string {
	if prev != nil {
		return prev.parentMap()
	}
	if i.parents == nil || i.loaded {
		return nil
	}
	i.loaded = true
	known, err := i.parents.LoadParents(ctx)
	if err != nil {
		i.log.Warn("Loading persisted parent map failed", zap.Error(err))
		return nil
	}
	i.log.Debug("Loaded persisted parent map", zap.Int("revisions", len(known)))
	return known
}

// walk collects the parent lists of every ancestor of tip, asking the store
// only for revisions missing from known.
func (i *Index) walk(ctx context.Context, tip string, known map[string][]string) (map[string][]string, map[string][]string, error) {
	parents := make(map[string][]string, len(known)+1)
	fetched := map[string][]string{}
	stack := []string{tip}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := parents[id]; ok {
			continue
		}
		ps, ok := known[id]
		if !ok {
			if len(fetched)%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, nil, err
				}
			}
			var err error
			ps, err = i.store.Parents(ctx, id)
			switch {
			case errors.Is(err, vcs.ErrNotFound) && id != tip:
				return nil, nil, fmt.Errorf("parent %s does not resolve: %w", id, vcs.ErrInvariant)
			case err != nil:
				return nil, nil, fmt.Errorf("read parents of %s: %w", id, err)
			}
			fetched[id] = ps
		}
		parents[id] = ps
		for _, p := range ps {
			if _, ok := parents[p]; !ok {
				stack = append(stack, p)
			}
		}
	}
	return parents, fetched, nil
}

func (i *Index) Contains(id string) bool {
	snap, err := i.current()
	if err != nil {
		return false
	}
	_, ok := snap.byID[id]
	return ok
}

// Resolve expands a unique id prefix to a full revision id. The returned
// string is owned by the index, never the caller's ref.
func (i *Index) Resolve(ref string) (string, error) {
	snap, err := i.current()
	if err != nil {
		return "", err
	}
	if ref == "" {
		return snap.tip, nil
	}
	if h, ok := snap.byID[ref]; ok {
		return snap.nodes[h].id, nil
	}
	match := ""
	for id := range snap.byID {
		if !strings.HasPrefix(id, ref) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("revision prefix %q is ambiguous: %w", ref, vcs.ErrNotFound)
		}
		match = id
	}
	if match == "" {
		return "", fmt.Errorf("revision %s: %w", ref, vcs.ErrNotFound)
	}
	return match, nil
}

func (i *Index) Revno(id string) (int, error) {
	snap, err := i.current()
	if err != nil {
		return 0, err
	}
	h, ok := snap.byID[id]
	if !ok {
		return 0, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	return snap.nodes[h].revno, nil
}

// Parents returns the indexed parent list of id.
func (i *Index) Parents(id string) ([]string, error) {
	snap, err := i.current()
	if err != nil {
		return nil, err
	}
	h, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	return snap.parentIDs(h), nil
}

// Mainline lists the first-parent chain of the tip, oldest first.
func (i *Index) Mainline() []string {
	snap, err := i.current()
	if err != nil {
		return nil
	}
	out := make([]string, len(snap.mainline))
	for n, h := range snap.mainline {
		out[n] = snap.nodes[h].id
	}
	return out
}

type Ref struct {
	ID    string `json:"id"`
	Revno int    `json:"revno"`
}

// MergePointRefs lists the revisions that merged id into another line of
// history, ordered by revno. It is empty for revisions never merged.
func (i *Index) MergePointRefs(id string) ([]Ref, error) {
	snap, err := i.current()
	if err != nil {
		return nil, err
	}
	h, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	return snap.refs(snap.mergePoints(h)), nil
}

func (i *Index) MergePoints(ctx context.Context, id string) ([]*vcs.Revision, error) {
	refs, err := i.MergePointRefs(id)
	if err != nil {
		return nil, err
	}
	out := make([]*vcs.Revision, 0, len(refs))
	for _, ref := range refs {
		rev, err := i.store.Revision(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("read merge point %s: %w", ref.ID, err)
		}
		rev.Revno = ref.Revno
		out = append(out, rev)
	}
	return out, nil
}
