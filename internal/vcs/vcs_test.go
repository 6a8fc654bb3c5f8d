package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"pgregory.net/rapid"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("read abc: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("binary: %w", ErrUnavailable), KindUnavailable},
		{fmt.Errorf("pack: %w", ErrBackendIO), KindBackendIO},
		{fmt.Errorf("graph: %w", ErrInvariant), KindInvariant},
		{context.Canceled, KindCanceled},
		{errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestNewFieldError(t *testing.T) {
	t.Parallel()
	if NewFieldError(nil) != nil {
		t.Fatalf("NewFieldError(nil) should be nil")
	}
	fe := NewFieldError(fmt.Errorf("a.bin: %w", ErrUnavailable))
	if fe.Kind != KindUnavailable {
		t.Fatalf("kind = %v, want unavailable", fe.Kind)
	}
	if !strings.HasPrefix(fe.Error(), "unavailable: ") {
		t.Fatalf("unexpected message %q", fe.Error())
	}
}

func TestRevisionSummary(t *testing.T) {
	t.Parallel()
	rev := &Revision{Message: "\n  Fix the thing\n\nlong body"}
	if got := rev.Summary(); got != "Fix the thing" {
		t.Fatalf("Summary() = %q", got)
	}
	long := &Revision{Message: strings.Repeat("x", 100)}
	got := long.Summary()
	if len([]rune(got)) != summaryWidth || !strings.HasSuffix(got, "...") {
		t.Fatalf("Summary() = %q, want truncated to %d", got, summaryWidth)
	}
}

func TestDisplayAuthorHidesEmail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rev  Revision
		want string
	}{
		{Revision{Author: "Alice", AuthorEmail: "alice@example.com"}, "Alice"},
		{Revision{AuthorEmail: "bob@mail.example.org"}, "bob at mail"},
		{Revision{AuthorEmail: "carol"}, "carol"},
	}
	for _, tt := range tests {
		if got := tt.rev.DisplayAuthor(); got != tt.want {
			t.Fatalf("DisplayAuthor() = %q, want %q", got, tt.want)
		}
	}
}

func TestChangeSetPaths(t *testing.T) {
	t.Parallel()
	cs := &ChangeSet{
		Added:    []string{"a"},
		Removed:  []string{"b"},
		Renamed:  []Rename{{OldPath: "c", NewPath: "d"}, {OldPath: "e", NewPath: "f", ContentChanged: true}},
		Modified: []string{"g"},
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e", "f", "g"}, cs.Paths()); diff != "" {
		t.Fatalf("Paths() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "f", "g"}, cs.DiffPaths()); diff != "" {
		t.Fatalf("DiffPaths() mismatch (-want +got):\n%s", diff)
	}
	if r, ok := cs.RenameOf("f"); !ok || r.OldPath != "e" {
		t.Fatalf("RenameOf(f) = %+v, %v", r, ok)
	}
	if !(&ChangeSet{}).Empty() {
		t.Fatalf("empty changeset should report Empty")
	}
}

func TestSortTree(t *testing.T) {
	t.Parallel()
	entries := []TreeEntry{
		{Name: "z.go", Kind: EntryFile},
		{Name: "b", Kind: EntryDir},
		{Name: "a.go", Kind: EntryFile},
		{Name: "vendor", Kind: EntrySubmodule},
		{Name: "a", Kind: EntryDir},
	}
	SortTree(entries)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "a.go", "vendor", "z.go"}, got); diff != "" {
		t.Fatalf("SortTree() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()
	if got := SplitLines(""); got != nil {
		t.Fatalf("SplitLines(\"\") = %q", got)
	}
	if diff := cmp.Diff([]string{"a", "", "b"}, SplitLines("a\n\nb\n")); diff != "" {
		t.Fatalf("SplitLines mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMatcher(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Matcher{"": MatcherDifflib, "DiffLib": MatcherDifflib, "myers": MatcherMyers} {
		got, err := ParseMatcher(in)
		if err != nil || got != want {
			t.Fatalf("ParseMatcher(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMatcher("patience"); err == nil {
		t.Fatalf("expected error for unknown matcher")
	}
}

func TestMatchLinesReplace(t *testing.T) {
	t.Parallel()
	old := []string{"a", "b", "c"}
	updated := []string{"a", "x", "c"}
	for _, m := range []Matcher{MatcherDifflib, MatcherMyers} {
		want := []Op{
			{Tag: OpEqual, OldStart: 0, OldEnd: 1, NewStart: 0, NewEnd: 1},
			{Tag: OpReplace, OldStart: 1, OldEnd: 2, NewStart: 1, NewEnd: 2},
			{Tag: OpEqual, OldStart: 2, OldEnd: 3, NewStart: 2, NewEnd: 3},
		}
		if diff := cmp.Diff(want, MatchLines(m, old, updated)); diff != "" {
			t.Fatalf("MatchLines(%s) mismatch (-want +got):\n%s", m, diff)
		}
	}
}

func TestMatchLinesCoverBothSides(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		alphabet := rapid.SampledFrom([]string{"a", "b", "c", "d", ""})
		old := rapid.SliceOfN(alphabet, 0, 30).Draw(t, "old")
		updated := rapid.SliceOfN(alphabet, 0, 30).Draw(t, "new")
		m := rapid.SampledFrom([]Matcher{MatcherDifflib, MatcherMyers}).Draw(t, "matcher")

		var gotOld, gotNew []string
		i, j := 0, 0
		for _, op := range MatchLines(m, old, updated) {
			if op.OldStart != i || op.NewStart != j {
				t.Fatalf("op %+v not contiguous at old=%d new=%d", op, i, j)
			}
			if op.Tag == OpEqual {
				for k := range op.OldEnd - op.OldStart {
					if old[op.OldStart+k] != updated[op.NewStart+k] {
						t.Fatalf("equal op %+v covers differing lines", op)
					}
				}
			}
			gotOld = append(gotOld, old[op.OldStart:op.OldEnd]...)
			gotNew = append(gotNew, updated[op.NewStart:op.NewEnd]...)
			i, j = op.OldEnd, op.NewEnd
		}
		if i != len(old) || j != len(updated) {
			t.Fatalf("ops end at old=%d new=%d, want %d %d", i, j, len(old), len(updated))
		}
		if !cmp.Equal(gotOld, old, cmpopts.EquateEmpty()) || !cmp.Equal(gotNew, updated, cmpopts.EquateEmpty()) {
			t.Fatalf("ops do not reproduce inputs")
		}
	})
}

type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) TipID(context.Context) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", fmt.Errorf("read ref: %w", ErrBackendIO)
	}
	return "abc", nil
}

func (f *flakyStore) Revision(context.Context, string) (*Revision, error) {
	f.calls++
	return nil, ErrNotFound
}

func TestWithRetryRetriesBackendIOOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &flakyStore{failures: 1}
	tip, err := WithRetry(inner, nil).TipID(ctx)
	if err != nil || tip != "abc" {
		t.Fatalf("TipID() = %q, %v", tip, err)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}

	inner = &flakyStore{failures: 2}
	if _, err := WithRetry(inner, nil).TipID(ctx); !errors.Is(err, ErrBackendIO) {
		t.Fatalf("TipID() error = %v, want backend io", err)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestWithRetryDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()
	inner := &flakyStore{}
	if _, err := WithRetry(inner, nil).Revision(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Revision() error = %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}

func TestWithRetryLabelsWithoutLabeler(t *testing.T) {
	t.Parallel()
	labels, err := WithRetry(&flakyStore{}, nil).(Labeler).Labels(context.Background())
	if err != nil || len(labels) != 0 {
		t.Fatalf("Labels() = %v, %v", labels, err)
	}
}
