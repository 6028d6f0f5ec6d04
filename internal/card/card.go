// Package card holds the data model shared by every component of the
// indexing engine: the parsed Document snapshot, its front-matter, and the
// lightweight metadata row mirrored into the SQLite store.
package card

import "time"

// Document is an immutable snapshot of a parsed Markdown file.
//
// hash uniquely determines Tokens, Anchors, and Links for a given file.
// Callers must never mutate a Document in place; produce a new one
// instead.
type Document struct {
	Path        string // workspace-relative, forward-slash separated
	Frontmatter *CardMetadata
	Hash        string // 64-hex lowercase sha256
	Tokens      uint64
	Anchors     []Anchor
	Links       []string // raw [[target]] strings, insertion order
}

// CardMetadata is a card's YAML front-matter.
type CardMetadata struct {
	Title     string   `yaml:"title"`
	Status    string   `yaml:"status"`
	Priority  string   `yaml:"priority"`
	Assignee  string   `yaml:"assignee,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Created   string   `yaml:"created,omitempty"`
	Updated   string   `yaml:"updated,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// RecognizedPriorities is the closed set of Priority values, ordered for
// sorting.
var RecognizedPriorities = map[string]int{
	"critical": 3,
	"high":     2,
	"medium":   1,
	"low":      0,
}

// WithDefaults fills in the required defaults for an otherwise-zero
// CardMetadata (status="todo", priority="medium").
func (m *CardMetadata) WithDefaults() *CardMetadata {
	if m == nil {
		return &CardMetadata{Status: "todo", Priority: "medium"}
	}
	if m.Status == "" {
		m.Status = "todo"
	}
	if m.Priority == "" {
		m.Priority = "medium"
	}
	return m
}

// HasTag reports whether tag is present, case-insensitively.
func (m *CardMetadata) HasTag(tag string) bool {
	if m == nil {
		return false
	}
	for _, t := range m.Tags {
		if equalFold(t, tag) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Anchor is a Markdown heading within a Document.
type Anchor struct {
	Slug      string
	Header    string
	Level     int // 1..6
	StartLine int // 1-indexed
	EndLine   int
}

// WithRange returns a copy of the anchor with EndLine extended to just
// before the next anchor of equal-or-higher level. The parser never calls
// this, only read_doc's anchor slicing in internal/mcpsrv does, so parser
// output always has EndLine == StartLine.
func (a Anchor) WithRange(next *Anchor) Anchor {
	if next == nil || next.Level > a.Level {
		return a
	}
	out := a
	if next.StartLine > a.StartLine {
		out.EndLine = next.StartLine - 1
	}
	return out
}

// CachedDocument is the Document Cache's per-path entry.
type CachedDocument struct {
	Hash         string
	ModifiedTime time.Time
	Document     Document
}

// FileMetadata mirrors a file's indexed state into the SQLite store.
type FileMetadata struct {
	ID         int64
	Path       string
	Hash       string
	ModifiedAt int64 // epoch seconds
	SizeBytes  int64
	Tokens     uint64
}
