package rules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

const recursiveWildcard = "**"

// Set holds expanded, root-relative, slash separated paths.
type Set map[string]struct{}

// Contains reports whether path is in the set.
func (s Set) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// Normalize prepares a pattern for matching against root-relative paths.
//
// A pattern whose last segment is exactly "**" gets a "/*" suffix. The
// recursive glob a trailing "**" came from yields nothing for it, and rule
// files depend on "dir/**" meaning everything below dir.
func Normalize(pattern string) string {
	p := filepath.ToSlash(pattern)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	segments := strings.Split(p, "/")
	if segments[len(segments)-1] == recursiveWildcard {
		p += "/*"
	}
	return p
}

// Expand resolves patterns against an enumerated tree.
// Patterns that match nothing contribute nothing; an invalid pattern is
// an error.
func Expand(tree []Entry, patterns []string) (Set, error) {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		np := Normalize(p)
		// Walk paths are root relative; an absolute rule could never match
		if strings.HasPrefix(np, "/") || filepath.IsAbs(p) {
			return nil, fmt.Errorf("%w: %q is absolute, rules are relative to the input directory", ErrBadPattern, p)
		}
		if !doublestar.ValidatePattern(np) {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
		normalized = append(normalized, np)
	}

	set := make(Set)
	for _, e := range tree {
		for _, p := range normalized {
			if doublestar.MatchUnvalidated(p, e.Path) {
				set[e.Path] = struct{}{}
				break
			}
		}
	}
	return set, nil
}

// ExpandTree walks root and expands patterns against it in one call.
func ExpandTree(fsys afero.Fs, root string, patterns []string) (Set, error) {
	tree, err := Walk(fsys, root)
	if err != nil {
		return nil, err
	}
	return Expand(tree, patterns)
}
