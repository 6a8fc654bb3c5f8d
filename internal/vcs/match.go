package vcs

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Matcher selects the line matching algorithm used to build Ops.
type Matcher string

const (
	MatcherDifflib Matcher = "difflib"
	MatcherMyers   Matcher = "myers"
)

func ParseMatcher(name string) (Matcher, error) {
	switch m := Matcher(strings.ToLower(strings.TrimSpace(name))); m {
	case "", MatcherDifflib:
		return MatcherDifflib, nil
	case MatcherMyers:
		return m, nil
	default:
		return "", fmt.Errorf("unknown line matcher %q", name)
	}
}

// MatchLines returns ops covering both sequences in order.
func MatchLines(m Matcher, oldLines, newLines []string) []Op {
	if m == MatcherMyers {
		return myersOps(oldLines, newLines)
	}
	return difflibOps(oldLines, newLines)
}

func difflibOps(oldLines, newLines []string) []Op {
	matcher := difflib.NewMatcher(oldLines, newLines)
	codes := matcher.GetOpCodes()
	ops := make([]Op, 0, len(codes))
	for _, c := range codes {
		if c.I1 == c.I2 && c.J1 == c.J2 {
			continue
		}
		ops = append(ops, Op{Tag: OpTag(c.Tag), OldStart: c.I1, OldEnd: c.I2, NewStart: c.J1, NewEnd: c.J2})
	}
	return ops
}

func myersOps(oldLines, newLines []string) []Op {
	dmp := diffmatchpatch.New()
	a, b, _ := dmp.DiffLinesToRunes(joinLines(oldLines), joinLines(newLines))
	diffs := dmp.DiffMainRunes(a, b, false)
	var ops []Op
	i, j := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = Op{Tag: OpEqual, OldStart: i, OldEnd: i + n, NewStart: j, NewEnd: j + n}
			i, j = i+n, j+n
		case diffmatchpatch.DiffDelete:
			op = Op{Tag: OpDelete, OldStart: i, OldEnd: i + n, NewStart: j, NewEnd: j}
			i += n
		case diffmatchpatch.DiffInsert:
			op = Op{Tag: OpInsert, OldStart: i, OldEnd: i, NewStart: j, NewEnd: j + n}
			j += n
		}
		ops = appendOp(ops, op)
	}
	return ops
}

// appendOp folds a delete/insert pair into a single replace.
func appendOp(ops []Op, op Op) []Op {
	if len(ops) == 0 {
		return append(ops, op)
	}
	last := &ops[len(ops)-1]
	switch {
	case last.Tag == OpDelete && op.Tag == OpInsert, last.Tag == OpInsert && op.Tag == OpDelete:
		last.Tag = OpReplace
		last.OldEnd = max(last.OldEnd, op.OldEnd)
		last.NewEnd = max(last.NewEnd, op.NewEnd)
		return ops
	case last.Tag == OpReplace && (op.Tag == OpDelete || op.Tag == OpInsert):
		last.OldEnd = max(last.OldEnd, op.OldEnd)
		last.NewEnd = max(last.NewEnd, op.NewEnd)
		return ops
	}
	return append(ops, op)
}

func joinLines(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
