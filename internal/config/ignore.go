package config

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreMatcher classifies paths against a flat list of ignore_patterns:
// a trailing "/" means "this directory anywhere in the path"; anything
// containing a glob metacharacter is matched with doublestar; everything
// else is a substring/prefix check.
type IgnoreMatcher struct {
	dirs     []string // directory-name patterns, e.g. "node_modules"
	globs    []string // doublestar patterns
	literals []string // plain substrings
}

// NewIgnoreMatcher classifies patterns once at construction so Match is a
// cheap per-path scan.
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, p := range patterns {
		switch {
		case strings.HasSuffix(p, "/"):
			m.dirs = append(m.dirs, strings.TrimSuffix(p, "/"))
		case strings.ContainsAny(p, "*?["):
			m.globs = append(m.globs, p)
		default:
			m.literals = append(m.literals, p)
		}
	}
	return m
}

// Match reports whether relPath (forward-slash, workspace-relative) should
// be ignored.
func (m *IgnoreMatcher) Match(relPath string) bool {
	parts := strings.Split(relPath, "/")
	for _, d := range m.dirs {
		for _, part := range parts {
			if part == d {
				return true
			}
		}
	}
	for _, lit := range m.literals {
		if strings.Contains(relPath, lit) {
			return true
		}
	}
	for _, g := range m.globs {
		if ok, _ := doublestar.Match(g, relPath); ok {
			return true
		}
	}
	return false
}
