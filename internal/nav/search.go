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

// Search finds mainline revisions whose message, author or committer
// contains every word of query, ignoring case. A word of at least
// minIDPrefix characters may also be a prefix of the revision id. At most
// limit revisions are returned, newest first.
func (n *Navigator) Search(ctx context.Context, query string, limit int) (*graph.SearchResult, error) {
	req := n.begin("search", zap.String("query", query))
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, req.fail(fmt.Errorf("empty search query: %w", vcs.ErrUnavailable))
	}
	if _, err := n.ensureFresh(ctx); err != nil {
		return nil, req.fail(err)
	}
	size := n.PageSize(limit)

	req.to(stateLoading)
	key := pagecache.Key{Kind: pagecache.KindSearch, Revision: n.index.Tip(), PageSize: size, Path: strings.Join(terms, " ")}
	res, err := pagecache.GetOrCompute(ctx, n.cache, key, func(ctx context.Context) (*graph.SearchResult, error) {
		res, err := n.index.Search(ctx, func(rev *vcs.Revision) bool { return matchTerms(rev, terms) }, size)
		if err != nil {
			return nil, err
		}
		labels := n.labels(ctx)
		for i := range res.Entries {
			res.Entries[i].Labels = labels[res.Entries[i].Revision.ID]
		}
		return res, nil
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.done()
	return res, nil
}

const minIDPrefix = 4

func matchTerms(rev *vcs.Revision, terms []string) bool {
	text := strings.ToLower(rev.Message + "\n" + rev.Author + "\n" + rev.Committer)
	for _, term := range terms {
		if strings.Contains(text, term) {
			continue
		}
		if len(term) < minIDPrefix || !strings.HasPrefix(rev.ID, term) {
			return false
		}
	}
	return true
}
