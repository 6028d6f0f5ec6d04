// Package query implements the filter query language: parsing
// "field:value" / "field:>value" / "+tag" / "-tag" terms, and evaluating a
// parsed query against a card.Document.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/errs"
)

// Op is a comparison operator for field predicates.
type Op int

const (
	OpEq Op = iota
	OpGT
	OpLT
)

// FieldPredicate is a single "field:value" term.
type FieldPredicate struct {
	Field string
	Op    Op
	Value string
}

// Query is a fully-parsed filter expression: all FieldPredicates must match
// (AND), at least one IncludeTag must be present when any are given, and no
// ExcludeTag may be present.
type Query struct {
	Fields       []FieldPredicate
	IncludeTags  []string // OR among these if non-empty
	ExcludeTags  []string
}

// recognizedFields are the front-matter fields the query language accepts.
var recognizedFields = map[string]bool{
	"status": true, "priority": true, "assignee": true,
	"created": true, "updated": true,
}

// Parse tokenizes a raw query string into a Query. There is no error
// recovery: an unknown field, empty tag, empty value, or malformed token
// fails the whole parse. An empty input parses to an empty Query.
func Parse(raw string) (Query, error) {
	var q Query
	for _, tok := range strings.Fields(raw) {
		switch {
		case strings.HasPrefix(tok, "+"):
			if len(tok) == 1 {
				return Query{}, parseErr(tok, errors.New("empty tag"))
			}
			q.IncludeTags = append(q.IncludeTags, tok[1:])
		case strings.HasPrefix(tok, "-"):
			if len(tok) == 1 {
				return Query{}, parseErr(tok, errors.New("empty tag"))
			}
			q.ExcludeTags = append(q.ExcludeTags, tok[1:])
		case strings.Contains(tok, ":"):
			parts := strings.SplitN(tok, ":", 2)
			field, val := strings.ToLower(parts[0]), parts[1]
			if field == "" {
				return Query{}, parseErr(tok, errors.New("empty field"))
			}
			if !recognizedFields[field] {
				return Query{}, parseErr(tok, fmt.Errorf("unknown field %q", field))
			}
			op := OpEq
			switch {
			case strings.HasPrefix(val, ">"):
				op, val = OpGT, val[1:]
			case strings.HasPrefix(val, "<"):
				op, val = OpLT, val[1:]
			}
			if val == "" {
				return Query{}, parseErr(tok, errors.New("empty value"))
			}
			q.Fields = append(q.Fields, FieldPredicate{Field: field, Op: op, Value: val})
		default:
			return Query{}, parseErr(tok, errors.New("malformed token"))
		}
	}
	return q, nil
}

func parseErr(tok string, reason error) error {
	return &errs.ParseError{Kind: "query", Input: tok, Underlying: reason}
}

// Match reports whether doc satisfies q.
func Match(doc card.Document, q Query) bool {
	fm := doc.Frontmatter
	if fm == nil {
		fm = &card.CardMetadata{}
	}

	for _, p := range q.Fields {
		if !matchField(fm, p) {
			return false
		}
	}

	if len(q.IncludeTags) > 0 {
		found := false
		for _, t := range q.IncludeTags {
			if fm.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, t := range q.ExcludeTags {
		if fm.HasTag(t) {
			return false
		}
	}

	return true
}

func matchField(fm *card.CardMetadata, p FieldPredicate) bool {
	switch p.Field {
	case "status":
		return p.Op == OpEq && strings.EqualFold(fm.Status, p.Value)
	case "priority":
		return matchPriority(fm.Priority, p)
	case "assignee":
		return p.Op == OpEq && strings.EqualFold(fm.Assignee, p.Value)
	case "created":
		return matchDate(fm.Created, p)
	case "updated":
		return matchDate(fm.Updated, p)
	default:
		return true
	}
}

func matchPriority(val string, p FieldPredicate) bool {
	if p.Op == OpEq {
		return strings.EqualFold(val, p.Value)
	}
	rank, ok := card.RecognizedPriorities[strings.ToLower(val)]
	if !ok {
		return false
	}
	target, ok := card.RecognizedPriorities[strings.ToLower(p.Value)]
	if !ok {
		return false
	}
	if p.Op == OpGT {
		return rank > target
	}
	return rank < target
}

// matchDate resolves p.Value as either an absolute YYYY-MM-DD date or a
// relative duration (Nd|Nw|Nm|Ny, a cutoff N units before now: a bare or
// ">" value matches dates after the cutoff, "<" dates before it), then
// compares against val (an RFC-3339 or YYYY-MM-DD string).
func matchDate(val string, p FieldPredicate) bool {
	t, ok := parseDate(val)
	if !ok {
		return false
	}

	if rel, ok := parseRelative(p.Value); ok {
		cutoff := time.Now().Add(-rel)
		switch p.Op {
		case OpGT:
			return t.After(cutoff)
		case OpLT:
			return t.Before(cutoff)
		default:
			return t.After(cutoff)
		}
	}

	target, ok := parseDate(p.Value)
	if !ok {
		return false
	}
	switch p.Op {
	case OpGT:
		return t.After(target)
	case OpLT:
		return t.Before(target)
	default:
		return t.Equal(target) || sameDay(t, target)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseRelative parses "Nd", "Nw", "Nm", "Ny" as a duration.
func parseRelative(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, false
	}
	day := 24 * time.Hour
	switch unit {
	case 'd':
		return time.Duration(n) * day, true
	case 'w':
		return time.Duration(n) * 7 * day, true
	case 'm':
		return time.Duration(n) * 30 * day, true
	case 'y':
		return time.Duration(n) * 365 * day, true
	default:
		return 0, false
	}
}
