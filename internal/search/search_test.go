package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/embedding"
)

func testSearcher(t *testing.T) *Searcher {
	t.Helper()
	docs := []card.Document{
		{Path: "cards/auth-bug.md", Hash: "h1", Frontmatter: &card.CardMetadata{Priority: "high", Created: "2026-01-01"}},
		{Path: "cards/login-flow.md", Hash: "h2", Frontmatter: &card.CardMetadata{Priority: "low", Tags: []string{"auth"}, Created: "2026-02-01"}},
		{Path: "node_modules/ignored.md", Hash: "h3"},
	}
	content := map[string]string{
		"cards/auth-bug.md":   "fix the authentication bug in the login handler",
		"cards/login-flow.md": "describes the login flow end to end",
	}
	return &Searcher{
		Docs:    docs,
		Content: func(d card.Document) string { return content[d.Path] },
		Embed:   embedding.New(t.TempDir(), 100, embedding.LocalEmbedder{}),
		Weights: Weights{Semantic: 0.5, Keyword: 0.5},
	}
}

func TestKeywordMatchesFilenameAndContent(t *testing.T) {
	s := testSearcher(t)
	results := s.Keyword("auth")
	require.NotEmpty(t, results)
	assert.Equal(t, "cards/auth-bug.md", results[0].Doc.Path, "filename match should outrank content-only match")
}

func TestKeywordSkipsNoiseDirs(t *testing.T) {
	s := testSearcher(t)
	for _, r := range s.Keyword("ignored") {
		assert.NotEqual(t, "node_modules/ignored.md", r.Doc.Path)
	}
}

func TestSemanticReturnsScoresForAllNonNoiseDocs(t *testing.T) {
	s := testSearcher(t)
	results, err := s.Semantic(context.Background(), "authentication login bug")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestHybridBlendsBothModes(t *testing.T) {
	s := testSearcher(t)
	results, err := s.Hybrid(context.Background(), "login")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestApplyFiltersByPriorityAndTag(t *testing.T) {
	scored := []Scored{
		{Doc: card.Document{Frontmatter: &card.CardMetadata{Priority: "high"}}},
		{Doc: card.Document{Frontmatter: &card.CardMetadata{Priority: "low", Tags: []string{"auth"}}}},
	}
	out := ApplyFilters(scored, Filters{Priority: "high"})
	assert.Len(t, out, 1)

	out = ApplyFilters(scored, Filters{Tags: []string{"auth"}})
	assert.Len(t, out, 1)
}

func TestApplyFiltersByCreatedRange(t *testing.T) {
	scored := []Scored{
		{Doc: card.Document{Frontmatter: &card.CardMetadata{Created: "2026-01-01"}}},
		{Doc: card.Document{Frontmatter: &card.CardMetadata{Created: "2026-03-01"}}},
	}
	after := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	out := ApplyFilters(scored, Filters{CreatedAfter: &after})
	assert.Len(t, out, 1)
	assert.Equal(t, "2026-03-01", out[0].Doc.Frontmatter.Created)
}

func TestEncodeDecodeCursorRoundTrip(t *testing.T) {
	cursor := EncodeCursor(42, 1234)
	offset, fp, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, 42, offset)
	assert.Equal(t, uint64(1234), fp)
}

func TestDecodeCursorRejectsMalformed(t *testing.T) {
	_, _, err := DecodeCursor("not-base64!!!")
	assert.Error(t, err)
}

func TestFingerprintStableForSameInput(t *testing.T) {
	a := Fingerprint("status:todo", ModeKeyword)
	b := Fingerprint("status:todo", ModeKeyword)
	assert.Equal(t, a, b)
	c := Fingerprint("status:done", ModeKeyword)
	assert.NotEqual(t, a, c)
}

func TestPaginateFirstPageAndNextCursor(t *testing.T) {
	scored := make([]Scored, 0, 5)
	for i := 0; i < 5; i++ {
		scored = append(scored, Scored{Doc: card.Document{Path: string(rune('a' + i))}, Score: float64(5 - i)})
	}
	page, err := Paginate(scored, "q", ModeKeyword, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Docs, 2)
	assert.Equal(t, 5, page.TotalCount)
	assert.NotEmpty(t, page.NextCursor)

	next, err := Paginate(scored, "q", ModeKeyword, 2, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, next.Docs, 2)
}

func TestPaginateRejectsStaleCursorOnQueryChange(t *testing.T) {
	scored := []Scored{{Doc: card.Document{Path: "a"}, Score: 1}}
	page, err := Paginate(scored, "q1", ModeKeyword, 1, "")
	require.NoError(t, err)
	_ = page

	cursor := EncodeCursor(1, Fingerprint("q1", ModeKeyword))
	_, err = Paginate(scored, "q2", ModeKeyword, 1, cursor)
	require.Error(t, err)
}

func TestPaginateClampsLimit(t *testing.T) {
	scored := make([]Scored, 0, 60)
	for i := 0; i < 60; i++ {
		scored = append(scored, Scored{Doc: card.Document{Path: string(rune(i))}})
	}
	page, err := Paginate(scored, "q", ModeKeyword, 1000, "")
	require.NoError(t, err)
	assert.Len(t, page.Docs, maxLimit)
}

func TestModeFromStringDefaultsToKeyword(t *testing.T) {
	m, err := ModeFromString("")
	require.NoError(t, err)
	assert.Equal(t, ModeKeyword, m)
}

func TestModeFromStringRejectsUnknown(t *testing.T) {
	_, err := ModeFromString("bogus")
	assert.Error(t, err)
}
