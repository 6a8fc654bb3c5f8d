package graph

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/thiagokokada/revlog/internal/vcs"
)

// Handle addresses a node in a snapshot arena. Handles are assigned in
// topological order so parents always have smaller handles than children.
type Handle uint32

type node struct {
	id      string
	parents []Handle
	revno   int
}

// snapshot is the immutable index for one tip.
type snapshot struct {
	tip      string
	gen      uint64
	nodes    []node
	byID     map[string]Handle
	mainline []Handle
	// mainlinePos is the index into mainline, or -1.
	mainlinePos []int32

	reverseOnce sync.Once
	mergedBy    []*roaring.Bitmap
	fpChildren  []*roaring.Bitmap
}

func buildSnapshot(tip string, parents map[string][]string) (*snapshot, error) {
	order, err := topoOrder(tip, parents)
	if err != nil {
		return nil, err
	}
	s := &snapshot{
		tip:   tip,
		nodes: make([]node, len(order)),
		byID:  make(map[string]Handle, len(order)),
	}
	for n, id := range order {
		s.byID[id] = Handle(n)
	}
	for n, id := range order {
		nd := node{id: id}
		for _, p := range parents[id] {
			ph, ok := s.byID[p]
			if !ok {
				return nil, fmt.Errorf("parent %s of %s is not indexed: %w", p, id, vcs.ErrInvariant)
			}
			nd.parents = append(nd.parents, ph)
		}
		if len(nd.parents) == 0 {
			nd.revno = 1
		} else {
			nd.revno = s.nodes[nd.parents[0]].revno + 1
		}
		s.nodes[n] = nd
	}

	s.mainlinePos = make([]int32, len(s.nodes))
	for n := range s.mainlinePos {
		s.mainlinePos[n] = -1
	}
	for h := s.byID[tip]; ; {
		s.mainline = append(s.mainline, h)
		if len(s.nodes[h].parents) == 0 {
			break
		}
		h = s.nodes[h].parents[0]
	}
	slices.Reverse(s.mainline)
	for n, h := range s.mainline {
		s.mainlinePos[h] = int32(n)
	}
	return s, nil
}

// topoOrder returns every ancestor of tip with parents before children.
func topoOrder(tip string, parents map[string][]string) ([]string, error) {
	const (
		unseen = iota
		active
		done
	)
	type frame struct {
		id   string
		next int
	}
	state := make(map[string]int, len(parents))
	order := make([]string, 0, len(parents))
	stack := []frame{{id: tip}}
	state[tip] = active
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		ps := parents[top.id]
		if top.next < len(ps) {
			p := ps[top.next]
			top.next++
			switch state[p] {
			case unseen:
				if _, ok := parents[p]; !ok {
					return nil, fmt.Errorf("parent %s of %s is unknown: %w", p, top.id, vcs.ErrInvariant)
				}
				state[p] = active
				stack = append(stack, frame{id: p})
			case active:
				return nil, fmt.Errorf("revision %s is its own ancestor: %w", p, vcs.ErrInvariant)
			}
			continue
		}
		state[top.id] = done
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}
	return order, nil
}

func (s *snapshot) parentMap() map[string][]string {
	out := make(map[string][]string, len(s.nodes))
	for h := range s.nodes {
		out[s.nodes[h].id] = s.parentIDs(Handle(h))
	}
	return out
}

func (s *snapshot) parentIDs(h Handle) []string {
	ps := s.nodes[h].parents
	out := make([]string, len(ps))
	for n, p := range ps {
		out[n] = s.nodes[p].id
	}
	return out
}

func (s *snapshot) onMainline(h Handle) bool { return s.mainlinePos[h] >= 0 }

func (s *snapshot) firstParent(h Handle) (Handle, bool) {
	ps := s.nodes[h].parents
	if len(ps) == 0 {
		return 0, false
	}
	return ps[0], true
}

// buildReverse fills the child-side adjacency once per snapshot.
func (s *snapshot) buildReverse() {
	s.reverseOnce.Do(func() {
		s.mergedBy = make([]*roaring.Bitmap, len(s.nodes))
		s.fpChildren = make([]*roaring.Bitmap, len(s.nodes))
		add := func(set []*roaring.Bitmap, at Handle, child int) {
			if set[at] == nil {
				set[at] = roaring.New()
			}
			set[at].Add(uint32(child))
		}
		for child := range s.nodes {
			for n, p := range s.nodes[child].parents {
				if n == 0 {
					add(s.fpChildren, p, child)
				} else {
					add(s.mergedBy, p, child)
				}
			}
		}
	})
}

func (s *snapshot) firstParentChildren(h Handle) []Handle {
	s.buildReverse()
	return handles(s.fpChildren[h])
}

// mergePoints collects the children merging h as a non-first parent. Off
// the mainline it also follows first-parent descendants of h, since merging
// any of them brings h along. Such indirect merges are dropped when an
// earlier merge point lies on their own first-parent chain, as h already
// arrived on that line.
func (s *snapshot) mergePoints(h Handle) []Handle {
	s.buildReverse()
	direct := handles(s.mergedBy[h])
	if s.onMainline(h) {
		return s.sortByRevno(direct)
	}
	kept := roaring.New()
	for _, m := range direct {
		kept.Add(uint32(m))
	}
	visited := roaring.New()
	indirect := roaring.New()
	work := handles(s.fpChildren[h])
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if !visited.CheckedAdd(uint32(cur)) {
			continue
		}
		if bm := s.mergedBy[cur]; bm != nil {
			indirect.Or(bm)
		}
		work = append(work, handles(s.fpChildren[cur])...)
	}
	indirect.AndNot(kept)
	floor := math.MaxInt
	for _, m := range direct {
		floor = min(floor, s.nodes[m].revno)
	}
	for _, m := range s.sortByRevno(handles(indirect)) {
		if !s.lineMerged(m, kept, floor) {
			kept.Add(uint32(m))
			floor = min(floor, s.nodes[m].revno)
		}
	}
	return s.sortByRevno(handles(kept))
}

// lineMerged reports whether a first-parent ancestor of m is in kept. No
// member of kept has a revno below floor.
func (s *snapshot) lineMerged(m Handle, kept *roaring.Bitmap, floor int) bool {
	for cur, ok := s.firstParent(m); ok && s.nodes[cur].revno >= floor; cur, ok = s.firstParent(cur) {
		if kept.Contains(uint32(cur)) {
			return true
		}
	}
	return false
}

func (s *snapshot) sortByRevno(hs []Handle) []Handle {
	slices.SortFunc(hs, func(a, b Handle) int {
		return cmp.Or(cmp.Compare(s.nodes[a].revno, s.nodes[b].revno), cmp.Compare(s.nodes[a].id, s.nodes[b].id))
	})
	return hs
}

func (s *snapshot) refs(hs []Handle) []Ref {
	if len(hs) == 0 {
		return nil
	}
	out := make([]Ref, len(hs))
	for n, h := range hs {
		out[n] = Ref{ID: s.nodes[h].id, Revno: s.nodes[h].revno}
	}
	return out
}

func handles(bm *roaring.Bitmap) []Handle {
	if bm == nil {
		return nil
	}
	out := make([]Handle, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, Handle(it.Next()))
	}
	return out
}
