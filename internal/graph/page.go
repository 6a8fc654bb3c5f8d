package graph

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/revlog/internal/vcs"
)

const metadataWorkers = 8

// Filter decides whether a revision belongs to a filtered history view.
type Filter func(ctx context.Context, id string) (bool, error)

type Entry struct {
	Revision    *vcs.Revision `json:"revision"`
	MergedFrom  []Ref         `json:"merged_from,omitempty"`
	MergePoints []Ref         `json:"merge_points,omitempty"`
	Labels      []string      `json:"labels,omitempty"`
}

// Window describes where a page sits in history. Prev points at older
// history and Next at newer; both are empty at the respective end.
type Window struct {
	Current   string `json:"current"`
	Prev      string `json:"prev,omitempty"`
	Next      string `json:"next,omitempty"`
	Position  int    `json:"position"`
	Count     int    `json:"count"`
	PageSize  int    `json:"page_size"`
	PageCount int    `json:"page_count"`
}

type Page struct {
	Entries []Entry `json:"entries"`
	Window  Window  `json:"window"`
}

// Page returns up to count revisions ending at id, oldest first, walking
// first-parent links only. When filter is set the anchor is always kept
// and older revisions are kept only when they match.
func (i *Index) Page(ctx context.Context, id string, count int, filter Filter) (*Page, error) {
	snap, err := i.current()
	if err != nil {
		return nil, err
	}
	anchor, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	count = max(count, 1)

	match := func(h Handle) (bool, error) {
		if filter == nil {
			return true, nil
		}
		return filter(ctx, snap.nodes[h].id)
	}

	picked := []Handle{anchor}
	cur, more := snap.firstParent(anchor)
	for more && len(picked) < count {
		ok, err := match(cur)
		if err != nil {
			return nil, err
		}
		if ok {
			picked = append(picked, cur)
		}
		cur, more = snap.firstParent(cur)
	}
	prev, err := snap.nextMatch(cur, more, match)
	if err != nil {
		return nil, err
	}
	next, err := snap.forward(anchor, count, match)
	if err != nil {
		return nil, err
	}
	slices.Reverse(picked)

	entries, err := i.entries(ctx, snap, picked)
	if err != nil {
		return nil, err
	}
	page := &Page{Entries: entries, Window: snap.window(anchor, count)}
	if prev != nil {
		page.Window.Prev = snap.nodes[*prev].id
	}
	if next != nil {
		page.Window.Next = snap.nodes[*next].id
	}
	return page, nil
}

// nextMatch finds the first matching revision walking first parents from h.
func (s *snapshot) nextMatch(h Handle, ok bool, match func(Handle) (bool, error)) (*Handle, error) {
	for ok {
		m, err := match(h)
		if err != nil {
			return nil, err
		}
		if m {
			return &h, nil
		}
		h, ok = s.firstParent(h)
	}
	return nil, nil
}

// forward walks up to count matching steps towards newer history and
// returns the last revision reached, or nil when nothing newer exists.
func (s *snapshot) forward(h Handle, count int, match func(Handle) (bool, error)) (*Handle, error) {
	var last *Handle
	steps := 0
	for steps < count {
		child, ok := s.newerStep(h)
		if !ok {
			break
		}
		h = child
		m, err := match(h)
		if err != nil {
			return nil, err
		}
		if m {
			found := h
			last = &found
			steps++
		}
	}
	return last, nil
}

// newerStep moves one revision towards the tip along first-parent links,
// preferring the mainline child and otherwise the child with the smallest id.
func (s *snapshot) newerStep(h Handle) (Handle, bool) {
	if pos := s.mainlinePos[h]; pos >= 0 {
		if int(pos) == len(s.mainline)-1 {
			return 0, false
		}
		return s.mainline[pos+1], true
	}
	children := s.firstParentChildren(h)
	if len(children) == 0 {
		return 0, false
	}
	best := children[0]
	for _, c := range children[1:] {
		if s.nodes[c].id < s.nodes[best].id {
			best = c
		}
	}
	return best, true
}

func (s *snapshot) window(anchor Handle, pageSize int) Window {
	w := Window{
		Current:  s.nodes[anchor].id,
		Count:    len(s.mainline),
		PageSize: pageSize,
	}
	if pos := s.mainlinePos[anchor]; pos >= 0 {
		w.Position = len(s.mainline) - int(pos)
	}
	w.PageCount = (w.Count + pageSize - 1) / pageSize
	return w
}

func (i *Index) entries(ctx context.Context, snap *snapshot, hs []Handle) ([]Entry, error) {
	entries := make([]Entry, len(hs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataWorkers)
	for n, h := range hs {
		g.Go(func() error {
			nd := snap.nodes[h]
			rev, err := i.store.Revision(gctx, nd.id)
			if err != nil {
				return fmt.Errorf("read revision %s: %w", nd.id, err)
			}
			rev.Revno = nd.revno
			var mergedFrom []Ref
			if len(nd.parents) > 1 {
				mergedFrom = snap.refs(nd.parents[1:])
			}
			entries[n] = Entry{
				Revision:    rev,
				MergedFrom:  mergedFrom,
				MergePoints: snap.refs(snap.mergePoints(h)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

type Jump struct {
	Label string `json:"label"`
	Title string `json:"title"`
	ID    string `json:"id"`
}

var scanOffsets = []int{1000, 100, 10, 1}

// ScanRange returns jump links around id along the mainline: one page
// back, the oldest revision, power-of-ten offsets in both directions, the
// latest revision and one page forward. Off-mainline revisions are placed
// at their closest mainline ancestor.
func (i *Index) ScanRange(id string, pageSize int) ([]Jump, error) {
	snap, err := i.current()
	if err != nil {
		return nil, err
	}
	h, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, vcs.ErrNotFound)
	}
	pageSize = max(pageSize, 1)
	for !snap.onMainline(h) {
		if h, ok = snap.firstParent(h); !ok {
			h = snap.mainline[0]
		}
	}
	// pos counts from the tip, matching newest-first listings.
	count := len(snap.mainline)
	pos := count - 1 - int(snap.mainlinePos[h])
	at := func(p int) string { return snap.nodes[snap.mainline[count-1-p]].id }

	var jumps []Jump
	if pos < count-1 {
		jumps = append(jumps, Jump{Label: "<", Title: fmt.Sprintf("Back %d", pageSize), ID: at(min(count-1, pos+pageSize))})
	}
	jumps = append(jumps, Jump{Label: "(1)", Title: "Oldest", ID: at(count - 1)})
	for _, off := range scanOffsets {
		if pos+off < count {
			jumps = append(jumps, Jump{Label: fmt.Sprintf("-%d", off), Title: fmt.Sprintf("Back %d", off), ID: at(pos + off)})
		}
	}
	for _, off := range slices.Backward(scanOffsets) {
		if pos-off >= 0 {
			jumps = append(jumps, Jump{Label: fmt.Sprintf("+%d", off), Title: fmt.Sprintf("Forward %d", off), ID: at(pos - off)})
		}
	}
	jumps = append(jumps, Jump{Label: fmt.Sprintf("(%d)", count), Title: "Latest", ID: at(0)})
	if pos > 0 {
		jumps = append(jumps, Jump{Label: ">", Title: fmt.Sprintf("Forward %d", pageSize), ID: at(max(0, pos-pageSize))})
	}
	return jumps, nil
}
