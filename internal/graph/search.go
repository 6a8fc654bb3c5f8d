package graph

import (
	"context"
	"slices"

	"github.com/thiagokokada/revlog/internal/vcs"
)

const searchBatch = 64

// SearchResult holds matching mainline revisions, newest first. More is
// set when the limit was reached before the oldest revision was examined.
type SearchResult struct {
	Entries []Entry `json:"entries"`
	Scanned int     `json:"scanned"`
	More    bool    `json:"more"`
}

// Search walks the mainline from the tip and keeps up to limit revisions
// accepted by match. Revision metadata is read in batches.
func (i *Index) Search(ctx context.Context, match func(*vcs.Revision) bool, limit int) (*SearchResult, error) {
	snap, err := i.current()
	if err != nil {
		return nil, err
	}
	limit = max(limit, 1)
	res := &SearchResult{Entries: []Entry{}}
	for end := len(snap.mainline); end > 0 && len(res.Entries) < limit; end -= searchBatch {
		batch := slices.Clone(snap.mainline[max(0, end-searchBatch):end])
		slices.Reverse(batch)
		entries, err := i.entries(ctx, snap, batch)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if len(res.Entries) == limit {
				break
			}
			res.Scanned++
			if match(e.Revision) {
				res.Entries = append(res.Entries, e)
			}
		}
	}
	res.More = res.Scanned < len(snap.mainline)
	return res, nil
}
