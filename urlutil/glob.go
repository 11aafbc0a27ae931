package urlutil

import (
	"strings"

	"github.com/gobwas/glob"
)

// GlobSet compiles a list of shell-style patterns (supporting `*`, `?`, and
// `[...]` character classes per spec §4.6) and matches strings against them.
// Match compares the whole candidate string against each pattern, so a
// pattern with no glob metacharacters matches only that exact string;
// MatchHost additionally treats such a pattern as a domain suffix and
// MatchName as a filename suffix. Case is folded when ignoreCase is set.
type GlobSet struct {
	globs       []glob.Glob
	ignoreCase  bool
	rawPatterns []string
}

// NewGlobSet compiles patterns for later matching. Invalid patterns are
// dropped silently (mirrors wget's lenient glob compilation); the set
// offers no way to report which patterns failed to compile.
func NewGlobSet(patterns []string, ignoreCase bool) *GlobSet {
	gs := &GlobSet{ignoreCase: ignoreCase, rawPatterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		compiled := p
		if ignoreCase {
			compiled = strings.ToLower(compiled)
		}
		g, err := glob.Compile(compiled, '/')
		if err != nil {
			continue
		}
		gs.globs = append(gs.globs, g)
	}
	return gs
}

// Empty reports whether no patterns were supplied (an empty GlobSet matches
// nothing, which callers treat as "no restriction" rather than "reject all").
func (gs *GlobSet) Empty() bool {
	return gs == nil || len(gs.rawPatterns) == 0
}

// Match reports whether s matches any compiled pattern.
func (gs *GlobSet) Match(s string) bool {
	if gs == nil {
		return false
	}
	if gs.ignoreCase {
		s = strings.ToLower(s)
	}
	for _, g := range gs.globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// MatchHost reports whether host matches any pattern in the set, where a
// pattern with no glob metacharacters additionally matches as a domain
// suffix (so "example.com" matches "blog.example.com").
func (gs *GlobSet) MatchHost(host string) bool {
	if gs.Empty() {
		return false
	}
	host = strings.ToLower(host)
	for _, raw := range gs.rawPatterns {
		pattern := raw
		if gs.ignoreCase {
			pattern = strings.ToLower(pattern)
		}
		if hasGlobMeta(pattern) {
			if gs.Match(host) {
				return true
			}
			continue
		}
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return true
		}
	}
	return false
}

// MatchName reports whether name matches any pattern in the set, where a
// pattern with no glob metacharacters additionally matches as a suffix (so
// the plain pattern ".jpeg" matches "picture_a.jpeg"), mirroring wget's
// --accept/--reject filename-suffix behavior.
func (gs *GlobSet) MatchName(name string) bool {
	if gs.Empty() {
		return false
	}
	cmp := name
	if gs.ignoreCase {
		cmp = strings.ToLower(cmp)
	}
	for _, raw := range gs.rawPatterns {
		pattern := raw
		if gs.ignoreCase {
			pattern = strings.ToLower(pattern)
		}
		if hasGlobMeta(pattern) {
			if gs.Match(name) {
				return true
			}
			continue
		}
		if strings.HasSuffix(cmp, pattern) {
			return true
		}
	}
	return false
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
