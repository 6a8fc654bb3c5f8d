package nav

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/graph"
	"github.com/thiagokokada/revlog/internal/pagecache"
	"github.com/thiagokokada/revlog/internal/vcs"
)

// fileHistoryDepth bounds the first-parent walk looking for the last change
// of each listed entry.
const fileHistoryDepth = 1000

// FileEntry is a directory child with the revision that last touched it
// along the first-parent line. LastChanged is nil when that revision lies
// deeper than the walk goes.
type FileEntry struct {
	vcs.TreeEntry
	LastChanged *graph.Ref `json:"last_changed,omitempty"`
}

// Listing is the content of one directory at a revision.
type Listing struct {
	Revision graph.Ref   `json:"revision"`
	Dir      string      `json:"dir"`
	Entries  []FileEntry `json:"entries"`
}

// Files lists dir at id, the repository root when dir is empty.
func (n *Navigator) Files(ctx context.Context, id, dir string) (*Listing, error) {
	req := n.begin("files", zap.String("revision", id), zap.String("dir", dir))
	id, err := n.resolve(ctx, id)
	if err != nil {
		return nil, req.fail(err)
	}
	dir = strings.Trim(dir, "/")
	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindFiles, Revision: id, Path: dir}
	listing, err := pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*Listing, error) {
		tree, err := n.store.Tree(ctx, id, dir)
		if err != nil {
			return nil, fmt.Errorf("list %q at %s: %w", dir, id, err)
		}
		out := &Listing{Dir: dir, Entries: make([]FileEntry, len(tree))}
		if out.Revision, err = n.ref(id); err != nil {
			return nil, err
		}
		for i, e := range tree {
			out.Entries[i] = FileEntry{TreeEntry: e}
		}
		req.to(stateFormatting)
		if err := n.lastChanged(ctx, id, dir, out.Entries); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return listing, nil
}

// lastChanged walks first parents from id and attributes each entry to the
// newest revision whose change set touches it or anything below it. A
// failing change set stops the walk and leaves the rest unattributed.
func (n *Navigator) lastChanged(ctx context.Context, id, dir string, entries []FileEntry) error {
	pending := make(map[string]int, len(entries))
	for i, e := range entries {
		pending[e.Name] = i
	}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	for depth := 0; id != "" && len(pending) > 0 && depth < fileHistoryDepth; depth++ {
		cs, err := n.changeset(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.log.Warn("Stopping last change lookup",
				zap.String("revision", id),
				zap.Int("unattributed", len(pending)),
				zap.Error(err),
			)
			return nil
		}
		var ref *graph.Ref
		for _, path := range cs.Paths() {
			rest, ok := strings.CutPrefix(path, prefix)
			if !ok {
				continue
			}
			name, _, _ := strings.Cut(rest, "/")
			i, ok := pending[name]
			if !ok {
				continue
			}
			if ref == nil {
				r, err := n.ref(id)
				if err != nil {
					return err
				}
				ref = &r
			}
			entries[i].LastChanged = ref
			delete(pending, name)
		}
		parents, err := n.index.Parents(id)
		if err != nil {
			return err
		}
		id = ""
		if len(parents) > 0 {
			id = parents[0]
		}
	}
	return nil
}
