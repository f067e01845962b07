package utils

import (
	"regexp"
	"strings"
)

// RemoveDuplicates keeps the first occurrence of every item, preserving order.
func RemoveDuplicates(slice []string) []string {
	keys := make(map[string]bool)
	var result []string

	for _, item := range slice {
		if !keys[item] {
			keys[item] = true
			result = append(result, item)
		}
	}
	return result
}

// Filter selects source references by include/exclude patterns.
// A pattern that compiles as a regex is used as one; otherwise it is a prefix.
// With includes set, a value must match at least one of them; any exclude match drops it.
type Filter struct {
	includes []matcher
	excludes []matcher
}

// NewFilter compiles the include and exclude patterns. Blank patterns are ignored.
func NewFilter(includes, excludes []string) *Filter {
	return &Filter{
		includes: compileMatchers(includes),
		excludes: compileMatchers(excludes),
	}
}

// Allows reports whether s passes the filter.
func (f *Filter) Allows(s string) bool {
	if f == nil {
		return true
	}
	if len(f.includes) > 0 && !matchesAny(f.includes, s) {
		return false
	}
	return !matchesAny(f.excludes, s)
}

type matcher struct {
	prefix string
	re     *regexp.Regexp
}

func (m matcher) match(s string) bool {
	if m.re != nil {
		return m.re.MatchString(s)
	}
	return strings.HasPrefix(s, m.prefix)
}

func matchesAny(matchers []matcher, s string) bool {
	for _, m := range matchers {
		if m.match(s) {
			return true
		}
	}
	return false
}

func compileMatchers(patterns []string) []matcher {
	var matchers []matcher
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			matchers = append(matchers, matcher{prefix: p})
			continue
		}
		matchers = append(matchers, matcher{re: re})
	}
	return matchers
}
