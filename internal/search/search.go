// Package search implements keyword/semantic/hybrid search over the
// workspace's documents, opaque cursor pagination, and
// post-scoring filter application.
package search

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/embedding"
	"github.com/cuedeck/cue/internal/errs"
)

// Mode selects the scoring strategy.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// noiseDirs are the directories the keyword scan skips.
var noiseDirs = map[string]bool{
	".git": true, "node_modules": true, "target": true, "dist": true, "vendor": true,
}

// Filters is SearchFilters: applied to scored results after ranking.
type Filters struct {
	Tags      []string
	Priority  string
	Assignee  string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (f Filters) apply(d card.Document) bool {
	fm := d.Frontmatter
	if fm == nil {
		fm = &card.CardMetadata{}
	}
	if len(f.Tags) > 0 {
		found := false
		for _, t := range f.Tags {
			if fm.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Priority != "" && !strings.EqualFold(fm.Priority, f.Priority) {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(fm.Assignee, f.Assignee) {
		return false
	}
	if f.CreatedAfter != nil || f.CreatedBefore != nil {
		t, err := time.Parse(time.RFC3339, fm.Created)
		if err != nil {
			t, err = time.Parse("2006-01-02", fm.Created)
		}
		if err != nil {
			return false
		}
		if f.CreatedAfter != nil && !t.After(*f.CreatedAfter) {
			return false
		}
		if f.CreatedBefore != nil && !t.Before(*f.CreatedBefore) {
			return false
		}
	}
	return true
}

// Scored pairs a Document with its rank score.
type Scored struct {
	Doc   card.Document
	Score float64
}

// Weights is the hybrid blend configuration.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// ContentLookup supplies the raw body used for scoring and embedding;
// Documents carry only metadata, so callers decide how bodies are read.
type ContentLookup func(doc card.Document) string

// Searcher executes the three search modes over a fixed document set.
type Searcher struct {
	Docs     []card.Document
	Content  ContentLookup
	Embed    *embedding.Cache
	Weights  Weights
}

// Keyword scores every document by a filename/content match heuristic.
func (s *Searcher) Keyword(query string) []Scored {
	q := strings.ToLower(query)
	tokens := strings.Fields(q)

	var out []Scored
	for _, d := range s.Docs {
		if inNoiseDir(d.Path) {
			continue
		}
		filename := strings.ToLower(path.Base(d.Path))
		content := strings.ToLower(s.contentOf(d))

		var score float64
		if strings.Contains(filename, q) {
			score += 100
		}
		for _, tok := range tokens {
			if strings.Contains(filename, tok) {
				score += 10
			}
		}
		if strings.Contains(content, q) {
			score += 50
		}
		for _, tok := range tokens {
			if strings.Contains(content, tok) {
				score += 5
			}
		}
		if score > 0 {
			out = append(out, Scored{Doc: d, Score: score})
		}
	}
	sortScored(out)
	return out
}

// Semantic scores every document by cosine similarity to the query
// embedding, via the Embedding Cache.
func (s *Searcher) Semantic(ctx context.Context, query string) ([]Scored, error) {
	queryVecs, err := s.Embed.GetOrCompute(ctx, "query:"+query, query)
	if err != nil {
		return nil, err
	}

	var out []Scored
	for _, d := range s.Docs {
		if inNoiseDir(d.Path) {
			continue
		}
		content := s.contentOf(d)
		vec, err := s.Embed.GetOrCompute(ctx, d.Hash, content)
		if err != nil {
			continue
		}
		sim := embedding.CosineSimilarity(queryVecs, vec)
		out = append(out, Scored{Doc: d, Score: sim})
	}
	sortScored(out)
	return out, nil
}

// Hybrid blends keyword and semantic scores, each normalised to [0,1]
// before the weighted combination.
func (s *Searcher) Hybrid(ctx context.Context, query string) ([]Scored, error) {
	kw := s.Keyword(query)
	sem, err := s.Semantic(ctx, query)
	if err != nil {
		return nil, err
	}

	kwScores := normalize(kw)
	semScores := normalize(sem)

	combined := make(map[string]float64)
	for path, v := range kwScores {
		combined[path] += v * s.Weights.Keyword
	}
	for path, v := range semScores {
		combined[path] += v * s.Weights.Semantic
	}

	byPath := make(map[string]card.Document, len(s.Docs))
	for _, d := range s.Docs {
		byPath[d.Path] = d
	}

	var out []Scored
	for p, score := range combined {
		if d, ok := byPath[p]; ok {
			out = append(out, Scored{Doc: d, Score: score})
		}
	}
	sortScored(out)
	return out, nil
}

func normalize(scored []Scored) map[string]float64 {
	out := make(map[string]float64, len(scored))
	if len(scored) == 0 {
		return out
	}
	max := scored[0].Score
	for _, s := range scored {
		if s.Score > max {
			max = s.Score
		}
	}
	for _, s := range scored {
		if max > 0 {
			out[s.Doc.Path] = s.Score / max
		} else {
			out[s.Doc.Path] = 0
		}
	}
	return out
}

func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Doc.Path < s[j].Doc.Path
	})
}

func (s *Searcher) contentOf(d card.Document) string {
	if s.Content == nil {
		return ""
	}
	return s.Content(d)
}

func inNoiseDir(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if noiseDirs[part] {
			return true
		}
	}
	return false
}

// ApplyFilters filters scored results after ranking.
func ApplyFilters(scored []Scored, f Filters) []Scored {
	var out []Scored
	for _, s := range scored {
		if f.apply(s.Doc) {
			out = append(out, s)
		}
	}
	return out
}

// Page is the paginated result envelope.
type Page struct {
	Docs       []card.Document
	TotalCount int
	NextCursor string
}

const maxLimit = 50

// EncodeCursor builds an opaque Base64-URL cursor encoding offset and a
// query fingerprint.
func EncodeCursor(offset int, fingerprint uint64) string {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[:4], uint32(offset))
	binary.BigEndian.PutUint64(buf[4:], fingerprint)
	return base64.URLEncoding.EncodeToString(buf)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(cursor string) (offset int, fingerprint uint64, err error) {
	buf, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil || len(buf) != 12 {
		return 0, 0, &errs.ValidationError{Field: "cursor", Reason: "malformed cursor"}
	}
	offset = int(binary.BigEndian.Uint32(buf[:4]))
	fingerprint = binary.BigEndian.Uint64(buf[4:])
	return offset, fingerprint, nil
}

// Fingerprint computes a stable fingerprint for a (query, mode) pair so a
// cursor can be rejected if the query changes between calls.
func Fingerprint(query string, mode Mode) uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	for _, b := range []byte(string(mode) + "\x00" + query) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// Paginate slices scored results starting at cursor's offset (or 0 if
// cursor is empty), validating the query fingerprint, clamping limit to
// maxLimit.
func Paginate(scored []Scored, query string, mode Mode, limit int, cursor string) (Page, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	offset := 0
	if cursor != "" {
		off, fp, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		if fp != Fingerprint(query, mode) {
			return Page{}, &errs.StaleCacheError{Reason: "cursor fingerprint does not match current query"}
		}
		offset = off
	}

	total := len(scored)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	docs := make([]card.Document, 0, end-offset)
	for _, s := range scored[offset:end] {
		docs = append(docs, s.Doc)
	}

	page := Page{Docs: docs, TotalCount: total}
	if end < total {
		page.NextCursor = EncodeCursor(end, Fingerprint(query, mode))
	}
	return page, nil
}

// ModeFromString parses a mode string, defaulting to keyword on empty.
func ModeFromString(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeKeyword:
		return ModeKeyword, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", &errs.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown search mode %q", s)}
	}
}
