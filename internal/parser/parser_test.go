package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuedeck/cue/internal/errs"
)

const sampleCard = `---
title: Fix login bug
status: in-progress
priority: high
tags:
  - backend
  - urgent
---

## Summary

See [[architecture/auth]] for context.

### Steps

Check [[cards/task-7]] first.
`

func TestParseExtractsFrontmatterAnchorsAndLinks(t *testing.T) {
	p := New()
	doc, err := p.Parse([]byte(sampleCard), "cards/task-1.md")
	require.NoError(t, err)

	require.NotNil(t, doc.Frontmatter)
	assert.Equal(t, "Fix login bug", doc.Frontmatter.Title)
	assert.Equal(t, "in-progress", doc.Frontmatter.Status)
	assert.Equal(t, "high", doc.Frontmatter.Priority)
	assert.Equal(t, []string{"backend", "urgent"}, doc.Frontmatter.Tags)

	require.Len(t, doc.Anchors, 2)
	assert.Equal(t, "Summary", doc.Anchors[0].Header)
	assert.Equal(t, 2, doc.Anchors[0].Level)
	assert.Equal(t, "Steps", doc.Anchors[1].Header)
	assert.Equal(t, 3, doc.Anchors[1].Level)

	assert.Equal(t, []string{"architecture/auth", "cards/task-7"}, doc.Links)

	want := sha256.Sum256([]byte(sampleCard))
	assert.Equal(t, hex.EncodeToString(want[:]), doc.Hash)
}

func TestParseNoFrontmatterDefaultsNil(t *testing.T) {
	p := New()
	doc, err := p.Parse([]byte("# Just a heading\n\nbody text\n"), "notes.md")
	require.NoError(t, err)
	assert.Nil(t, doc.Frontmatter)
	require.Len(t, doc.Anchors, 1)
	assert.Equal(t, 1, doc.Anchors[0].Level)
}

func TestParseInvalidFrontmatterWarnsAndContinues(t *testing.T) {
	var warned string
	p := &Parser{Warnf: func(format string, args ...any) { warned = format }}
	raw := "---\ntitle: [unterminated\n---\nbody\n"
	doc, err := p.Parse([]byte(raw), "bad.md")
	require.NoError(t, err)
	assert.Nil(t, doc.Frontmatter)
	assert.NotEmpty(t, warned)
}

func TestParseFileMissing(t *testing.T) {
	p := New()
	_, err := p.ParseFile(filepath.Join(t.TempDir(), "missing.md"), "missing.md")
	require.Error(t, err)
	var nf *errs.FileNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestParseFileReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "card.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleCard), 0o644))

	p := New()
	doc, err := p.ParseFile(path, "card.md")
	require.NoError(t, err)
	assert.Equal(t, "card.md", doc.Path)
	assert.Equal(t, "Fix login bug", doc.Frontmatter.Title)
}

func TestSplitFrontmatterNoFence(t *testing.T) {
	fm, body := splitFrontmatter([]byte("no fence here\n"))
	assert.Equal(t, "", fm)
	assert.Equal(t, "no fence here\n", string(body))
}

func TestSplitFrontmatterUnterminatedFence(t *testing.T) {
	fm, body := splitFrontmatter([]byte("---\ntitle: x\n"))
	assert.Equal(t, "", fm)
	assert.Equal(t, "---\ntitle: x\n", string(body))
}

func TestHeadingLevelRejectsHashWithoutSpace(t *testing.T) {
	_, _, ok := headingLevel("#nospace")
	assert.False(t, ok)
}

func TestHeadingLevelRejectsTooManyHashes(t *testing.T) {
	_, _, ok := headingLevel("####### seven")
	assert.False(t, ok)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "fix-login-bug", slugify("Fix Login Bug"))
	assert.Equal(t, "apis--v2", slugify("APIs & v2"))
}

func TestScanLinksIgnoresUnterminated(t *testing.T) {
	links := scanLinks([]byte("see [[target-a]] and then [[unterminated"))
	assert.Equal(t, []string{"target-a"}, links)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "cards/sub/task.md", NormalizePath(`cards\sub\task.md`))
}

func TestTokensApproximatesLengthOverFour(t *testing.T) {
	p := New()
	raw := []byte("abcdefgh") // 8 bytes
	doc, err := p.Parse(raw, "x.md")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), doc.Tokens)
}
