package gitstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// Labels maps revision ids to the branch, tag and HEAD names pointing at them.
func (s *Store) Labels(ctx context.Context) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := map[string][]string{}
	refs, err := s.repo.References()
	if err != nil {
		return nil, classify("list references", err)
	}
	defer refs.Close()
	var headHash plumbing.Hash
	var headBranch string
	if head, err := s.repo.Head(); err == nil && head != nil {
		headHash = head.Hash()
		if head.Name().IsBranch() {
			headBranch = head.Name().Short()
		}
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		if !name.IsBranch() && !name.IsRemote() && !name.IsTag() {
			return nil
		}
		short := name.Short()
		if name.IsRemote() && strings.HasSuffix(short, "/HEAD") {
			return nil
		}
		hash := ref.Hash()
		label := short
		if name.IsTag() {
			label = "tag: " + short
			if peeled, ok := s.peelTagLocked(hash); ok {
				hash = peeled
			}
		}
		labels[hash.String()] = append(labels[hash.String()], label)
		return nil
	})
	if err != nil {
		return nil, classify("walk references", err)
	}
	if headHash != plumbing.ZeroHash {
		key := headHash.String()
		label := "HEAD"
		if headBranch != "" {
			label = fmt.Sprintf("HEAD -> %s", headBranch)
		}
		labels[key] = append([]string{label}, labels[key]...)
	}
	return labels, nil
}

// peelTagLocked resolves annotated tags, possibly nested, to their commit.
func (s *Store) peelTagLocked(hash plumbing.Hash) (plumbing.Hash, bool) {
	if _, err := s.repo.CommitObject(hash); err == nil {
		return hash, true
	}
	cur := hash
	for range 8 {
		tag, err := s.repo.TagObject(cur)
		if err != nil {
			return plumbing.ZeroHash, false
		}
		switch tag.TargetType {
		case plumbing.CommitObject:
			return tag.Target, true
		case plumbing.TagObject:
			cur = tag.Target
		default:
			return plumbing.ZeroHash, false
		}
	}
	return plumbing.ZeroHash, false
}
