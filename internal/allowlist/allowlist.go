// Package allowlist compiles the glob patterns access-gate a proxy
// request before any upstream call is made, per spec.md's `*`/`**`
// semantics. No public-suffix or URL-parsing library in the retrieved
// example repos implements `**`-aware globbing (that double-star
// crosses "/" boundaries, unlike path.Match or filepath.Match), so the
// translation to a regular expression is hand-rolled here rather than
// reaching for a library that doesn't cover the `**` case.
package allowlist

import (
	"regexp"
	"strings"
	"sync"
)

// Matches reports whether url matches any of patterns. An empty
// pattern list denies everything (spec.md's "empty allowlist in
// allowlist mode denies everything").
func Matches(patterns []string, url string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if compile(p).MatchString(url) {
			return true
		}
	}
	return false
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]*regexp.Regexp{}
)

func compile(pattern string) *regexp.Regexp {
	cacheMu.RLock()
	re, ok := cache[pattern]
	cacheMu.RUnlock()
	if ok {
		return re
	}
	re = regexp.MustCompile("^" + globToRegexp(pattern) + "$")
	cacheMu.Lock()
	cache[pattern] = re
	cacheMu.Unlock()
	return re
}

// globToRegexp translates a glob pattern into an anchored regexp body.
// "**" becomes ".*" (matches across "/"); a lone "*" becomes "[^/]*"
// (matches within a single path segment); everything else is escaped
// literally.
func globToRegexp(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '*' {
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(runes[i])))
	}
	return b.String()
}
