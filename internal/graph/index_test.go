package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/thiagokokada/revlog/internal/vcs"
	"github.com/thiagokokada/revlog/internal/vcs/vcstest"
)

func linearStore(n int) *vcstest.Store {
	store := vcstest.New()
	prev := ""
	for k := 1; k <= n; k++ {
		id := fmt.Sprintf("r%03d", k)
		if prev == "" {
			store.Commit(id)
		} else {
			store.Commit(id, prev)
		}
		prev = id
	}
	return store
}

func refreshed(t *testing.T, store vcs.Store, opts ...Option) *Index {
	t.Helper()
	idx := New(store, opts...)
	if _, err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	return idx
}

func pageIDs(p *Page) []string {
	ids := make([]string, len(p.Entries))
	for n, e := range p.Entries {
		ids[n] = e.Revision.ID
	}
	return ids
}

func TestRevnoLinear(t *testing.T) {
	t.Parallel()
	idx := refreshed(t, linearStore(5))
	for k := 1; k <= 5; k++ {
		got, err := idx.Revno(fmt.Sprintf("r%03d", k))
		if err != nil || got != k {
			t.Fatalf("Revno(r%03d) = %d, %v", k, got, err)
		}
	}
	if _, err := idx.Revno("missing"); !errors.Is(err, vcs.ErrNotFound) {
		t.Fatalf("Revno(missing) error = %v", err)
	}
}

func TestQueriesBeforeRefresh(t *testing.T) {
	t.Parallel()
	idx := New(linearStore(1))
	if _, err := idx.Revno("r001"); !errors.Is(err, vcs.ErrUnavailable) {
		t.Fatalf("Revno() error = %v, want unavailable", err)
	}
	if idx.Tip() != "" || idx.Len() != 0 || idx.Mainline() != nil {
		t.Fatalf("empty index should report nothing")
	}
}

// mergeStore builds A <- B <- C with C also merging D, where D branches
// off A.
func mergeStore() *vcstest.Store {
	store := vcstest.New()
	store.Commit("A")
	store.Commit("D", "A")
	store.Commit("B", "A")
	store.Commit("C", "B", "D")
	return store
}

func TestPageWithMerge(t *testing.T) {
	t.Parallel()
	idx := refreshed(t, mergeStore())
	page, err := idx.Page(context.Background(), "C", 3, nil)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, pageIDs(page)); diff != "" {
		t.Fatalf("Page() ids mismatch (-want +got):\n%s", diff)
	}
	last := page.Entries[2]
	if diff := cmp.Diff([]Ref{{ID: "D", Revno: 2}}, last.MergedFrom); diff != "" {
		t.Fatalf("MergedFrom mismatch (-want +got):\n%s", diff)
	}
	if last.Revision.Revno != 3 {
		t.Fatalf("C revno = %d, want 3", last.Revision.Revno)
	}
	if page.Window.Prev != "" || page.Window.Next != "" {
		t.Fatalf("whole history page should have no cursors: %+v", page.Window)
	}

	revs, err := idx.MergePoints(context.Background(), "D")
	if err != nil {
		t.Fatalf("MergePoints() error = %v", err)
	}
	if len(revs) != 1 || revs[0].ID != "C" || revs[0].Revno != 3 {
		t.Fatalf("MergePoints(D) = %+v, want [C]", revs)
	}
	if refs, _ := idx.MergePointRefs("C"); len(refs) != 0 {
		t.Fatalf("MergePointRefs(tip) = %+v, want empty", refs)
	}
	if refs, _ := idx.MergePointRefs("B"); len(refs) != 0 {
		t.Fatalf("MergePointRefs(B) = %+v, want empty", refs)
	}
}

func TestMergePointsFollowSideLine(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("A")
	store.Commit("S1", "A")
	store.Commit("S2", "S1")
	store.Commit("B", "A")
	store.Commit("M", "B", "S2")
	idx := refreshed(t, store)
	refs, err := idx.MergePointRefs("S1")
	if err != nil {
		t.Fatalf("MergePointRefs() error = %v", err)
	}
	if diff := cmp.Diff([]Ref{{ID: "M", Revno: 3}}, refs); diff != "" {
		t.Fatalf("MergePointRefs(S1) mismatch (-want +got):\n%s", diff)
	}
}

// A side line merged into the mainline, continued and merged again only
// reports the first merge for revisions the first merge already brought in.
// Direct merges are always reported.
func TestMergePointsKeepEarliestPerLine(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("A")
	store.Commit("D", "A")
	store.Commit("B", "A")
	store.Commit("C", "B", "D")
	store.Commit("E", "D")
	store.Commit("F", "C", "E")
	store.Commit("G", "F", "E")
	idx := refreshed(t, store)
	tests := []struct {
		id   string
		want []Ref
	}{
		{"D", []Ref{{ID: "C", Revno: 3}}},
		{"E", []Ref{{ID: "F", Revno: 4}, {ID: "G", Revno: 5}}},
	}
	for _, tt := range tests {
		got, err := idx.MergePointRefs(tt.id)
		if err != nil {
			t.Fatalf("MergePointRefs(%s) error = %v", tt.id, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("MergePointRefs(%s) mismatch (-want +got):\n%s", tt.id, diff)
		}
	}
}

// Merges on separate lines of history are all reported.
func TestMergePointsSeparateLines(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("A")
	store.Commit("S", "A")
	store.Commit("X", "A")
	store.Commit("Y", "X", "S")
	store.Commit("B", "A")
	store.Commit("M", "B", "S")
	store.Commit("N", "M", "Y")
	idx := refreshed(t, store)
	got, err := idx.MergePointRefs("S")
	if err != nil {
		t.Fatalf("MergePointRefs() error = %v", err)
	}
	want := []Ref{{ID: "M", Revno: 3}, {ID: "Y", Revno: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MergePointRefs(S) mismatch (-want +got):\n%s", diff)
	}
}

func TestPageBoundaries(t *testing.T) {
	t.Parallel()
	idx := refreshed(t, linearStore(25))
	ctx := context.Background()

	page, err := idx.Page(ctx, "r001", 10, nil)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Window.Prev != "" {
		t.Fatalf("root page has prev %q", page.Window.Prev)
	}
	if page.Window.Next != "r011" {
		t.Fatalf("root page next = %q, want r011", page.Window.Next)
	}

	page, err = idx.Page(ctx, "r025", 10, nil)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Window.Next != "" {
		t.Fatalf("tip page has next %q", page.Window.Next)
	}
	if page.Window.Prev != "r015" {
		t.Fatalf("tip page prev = %q, want r015", page.Window.Prev)
	}
	if got := pageIDs(page); got[0] != "r016" || got[len(got)-1] != "r025" {
		t.Fatalf("tip page ids = %v", got)
	}
	want := Window{Current: "r025", Prev: "r015", Position: 1, Count: 25, PageSize: 10, PageCount: 3}
	if diff := cmp.Diff(want, page.Window); diff != "" {
		t.Fatalf("Window mismatch (-want +got):\n%s", diff)
	}

	page, err = idx.Page(ctx, "r020", 10, nil)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Window.Next != "r025" {
		t.Fatalf("next should clamp to tip, got %q", page.Window.Next)
	}

	if _, err := idx.Page(ctx, "nope", 10, nil); !errors.Is(err, vcs.ErrNotFound) {
		t.Fatalf("Page(nope) error = %v", err)
	}
}

func TestPageFollowsSideLineForward(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("A")
	store.Commit("S1", "A")
	store.Commit("S2", "S1")
	store.Commit("B", "A")
	store.Commit("M", "B", "S2")
	idx := refreshed(t, store)
	page, err := idx.Page(context.Background(), "S1", 1, nil)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Window.Next != "S2" || page.Window.Prev != "A" || page.Window.Position != 0 {
		t.Fatalf("side line window = %+v", page.Window)
	}
}

func TestPageFilter(t *testing.T) {
	t.Parallel()
	idx := refreshed(t, linearStore(10))
	even := func(_ context.Context, id string) (bool, error) {
		var n int
		fmt.Sscanf(id, "r%d", &n)
		return n%2 == 0, nil
	}
	page, err := idx.Page(context.Background(), "r009", 3, even)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if diff := cmp.Diff([]string{"r006", "r008", "r009"}, pageIDs(page)); diff != "" {
		t.Fatalf("filtered ids mismatch (-want +got):\n%s", diff)
	}
	if page.Window.Prev != "r004" || page.Window.Next != "r010" {
		t.Fatalf("filtered window = %+v", page.Window)
	}

	boom := errors.New("boom")
	_, err = idx.Page(context.Background(), "r009", 3, func(context.Context, string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Page() error = %v, want boom", err)
	}
}

func TestRefreshIncremental(t *testing.T) {
	t.Parallel()
	store := linearStore(5)
	idx := refreshed(t, store)
	gen := idx.Generation()
	before := store.Calls(vcstest.MethodParents)

	changed, err := idx.Refresh(context.Background())
	if err != nil || changed {
		t.Fatalf("Refresh() = %v, %v; want unchanged", changed, err)
	}
	if idx.Generation() != gen {
		t.Fatalf("generation moved without a new tip")
	}

	store.Commit("r006", "r005")
	changed, err = idx.Refresh(context.Background())
	if err != nil || !changed {
		t.Fatalf("Refresh() = %v, %v; want changed", changed, err)
	}
	if got := store.Calls(vcstest.MethodParents) - before; got != 1 {
		t.Fatalf("incremental refresh fetched %d parent lists, want 1", got)
	}
	if idx.Generation() != gen+1 || idx.Tip() != "r006" || idx.Len() != 6 {
		t.Fatalf("unexpected index state gen=%d tip=%s len=%d", idx.Generation(), idx.Tip(), idx.Len())
	}
}

func TestRefreshUnresolvableParent(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("A")
	store.Commit("B", "A", "ghost")
	idx := New(store)
	if _, err := idx.Refresh(context.Background()); !errors.Is(err, vcs.ErrInvariant) {
		t.Fatalf("Refresh() error = %v, want invariant", err)
	}
	if idx.Generation() != 0 {
		t.Fatalf("failed build must not be published")
	}
}

type memParents struct {
	mu     sync.Mutex
	stored map[string][]string
	tips   []string
}

func (m *memParents) LoadParents(context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]string{}
	for k, v := range m.stored {
		out[k] = v
	}
	return out, nil
}

func (m *memParents) StoreParents(_ context.Context, tip string, parents map[string][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = map[string][]string{}
	}
	for k, v := range parents {
		m.stored[k] = v
	}
	m.tips = append(m.tips, tip)
	return nil
}

func TestRefreshUsesParentCache(t *testing.T) {
	t.Parallel()
	store := linearStore(4)
	pc := &memParents{}
	refreshed(t, store, WithParentCache(pc))
	if len(pc.stored) != 4 || !slices.Equal(pc.tips, []string{"r004"}) {
		t.Fatalf("parent cache not filled: %d entries, tips %v", len(pc.stored), pc.tips)
	}

	before := store.Calls(vcstest.MethodParents)
	idx := refreshed(t, store, WithParentCache(pc))
	if got := store.Calls(vcstest.MethodParents) - before; got != 0 {
		t.Fatalf("warm start fetched %d parent lists, want 0", got)
	}
	if got, _ := idx.Revno("r004"); got != 4 {
		t.Fatalf("Revno(r004) = %d", got)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("abc123")
	store.Commit("abd456", "abc123")
	idx := refreshed(t, store)
	tests := []struct {
		ref  string
		want string
		err  error
	}{
		{"", "abd456", nil},
		{"abc", "abc123", nil},
		{"abd456", "abd456", nil},
		{"ab", "", vcs.ErrNotFound},
		{"zz", "", vcs.ErrNotFound},
	}
	for _, tt := range tests {
		got, err := idx.Resolve(tt.ref)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Fatalf("Resolve(%q) = %q, %v; want %q, %v", tt.ref, got, err, tt.want, tt.err)
		}
	}
}

// Resolve must not hand back the caller's buffer, which HTTP frameworks
// reuse between requests.
func TestResolveReturnsIndexOwnedID(t *testing.T) {
	t.Parallel()
	store := vcstest.New()
	store.Commit("abc123")
	store.Commit("abd456", "abc123")
	idx := refreshed(t, store)

	buf := []byte("abd456")
	got, err := idx.Resolve(unsafe.String(&buf[0], len(buf)))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	copy(buf, "zzzzzz")
	if got != "abd456" {
		t.Fatalf("Resolve() = %q after the input buffer changed, want abd456", got)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	store := linearStore(150)
	idx := refreshed(t, store)
	odd := func(rev *vcs.Revision) bool {
		var k int
		fmt.Sscanf(rev.ID, "r%03d", &k)
		return k%2 == 1
	}

	res, err := idx.Search(context.Background(), odd, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if diff := cmp.Diff([]string{"r149", "r147", "r145"}, pageIDs(&Page{Entries: res.Entries})); diff != "" {
		t.Fatalf("Search() ids mismatch (-want +got):\n%s", diff)
	}
	if res.Entries[0].Revision.Revno != 149 || !res.More || res.Scanned != 6 {
		t.Fatalf("Search() = revno %d, more %v, scanned %d", res.Entries[0].Revision.Revno, res.More, res.Scanned)
	}

	res, err = idx.Search(context.Background(), func(rev *vcs.Revision) bool { return rev.ID == "r001" }, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Entries) != 1 || res.More || res.Scanned != 150 {
		t.Fatalf("Search(r001) = %d entries, more %v, scanned %d", len(res.Entries), res.More, res.Scanned)
	}
}

func TestScanRange(t *testing.T) {
	t.Parallel()
	idx := refreshed(t, linearStore(30))
	jumps, err := idx.ScanRange("r020", 5)
	if err != nil {
		t.Fatalf("ScanRange() error = %v", err)
	}
	var labels []string
	byLabel := map[string]string{}
	for _, j := range jumps {
		labels = append(labels, j.Label)
		byLabel[j.Label] = j.ID
	}
	want := []string{"<", "(1)", "-10", "-1", "+1", "+10", "(30)", ">"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Fatalf("ScanRange() labels mismatch (-want +got):\n%s", diff)
	}
	checks := map[string]string{"<": "r015", "(1)": "r001", "-10": "r010", "-1": "r019", "+1": "r021", "+10": "r030", "(30)": "r030", ">": "r025"}
	for label, id := range checks {
		if byLabel[label] != id {
			t.Fatalf("jump %s = %s, want %s", label, byLabel[label], id)
		}
	}

	jumps, err = idx.ScanRange("r030", 5)
	if err != nil {
		t.Fatalf("ScanRange() error = %v", err)
	}
	if jumps[len(jumps)-1].Label == ">" {
		t.Fatalf("tip should have no forward page jump")
	}
}

func TestIndexProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "revisions")
		store := vcstest.New()
		ids := make([]string, n)
		for k := range n {
			ids[k] = fmt.Sprintf("n%02d", k)
			if k == 0 {
				store.Commit(ids[k])
				continue
			}
			parents := []string{ids[rapid.IntRange(0, k-1).Draw(t, "first")]}
			if rapid.Bool().Draw(t, "merge") {
				second := ids[rapid.IntRange(0, k-1).Draw(t, "second")]
				if second != parents[0] {
					parents = append(parents, second)
				}
			}
			store.Commit(ids[k], parents...)
		}
		idx := New(store)
		if _, err := idx.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		for _, id := range ids {
			if !idx.Contains(id) {
				continue
			}
			parents, _ := idx.Parents(id)
			revno, _ := idx.Revno(id)
			if len(parents) == 0 {
				if revno != 1 {
					t.Fatalf("root %s has revno %d", id, revno)
				}
				continue
			}
			parentRevno, _ := idx.Revno(parents[0])
			if revno != parentRevno+1 {
				t.Fatalf("revno(%s) = %d, first parent has %d", id, revno, parentRevno)
			}
			for _, p := range parents[1:] {
				refs, err := idx.MergePointRefs(p)
				if err != nil {
					t.Fatalf("MergePointRefs() error = %v", err)
				}
				if !slices.ContainsFunc(refs, func(r Ref) bool { return r.ID == id }) {
					t.Fatalf("%s merges %s but is missing from its merge points %v", id, p, refs)
				}
			}
		}
		mainline := idx.Mainline()
		if mainline[len(mainline)-1] != idx.Tip() {
			t.Fatalf("mainline does not end at tip")
		}
	})
}
