package nav

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/thiagokokada/revlog/internal/vcs"
)

// pathMatcher selects revisions by the paths they touch. Plain patterns
// match the path itself and everything below it; patterns with glob
// metacharacters use doublestar syntax and also match below a matching
// directory.
type pathMatcher struct {
	pattern string
	glob    bool
}

func compilePathFilter(pattern string) (*pathMatcher, error) {
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return nil, nil
	}
	glob := strings.ContainsAny(pattern, "*?[{")
	if glob && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid path filter %q: %w", pattern, vcs.ErrUnavailable)
	}
	return &pathMatcher{pattern: pattern, glob: glob}, nil
}

func (m *pathMatcher) match(path string) bool {
	if !m.glob {
		return path == m.pattern || strings.HasPrefix(path, m.pattern+"/")
	}
	if ok, _ := doublestar.Match(m.pattern, path); ok {
		return true
	}
	ok, _ := doublestar.Match(m.pattern+"/**", path)
	return ok
}

func (m *pathMatcher) matchAny(paths []string) bool {
	for _, p := range paths {
		if m.match(p) {
			return true
		}
	}
	return false
}
