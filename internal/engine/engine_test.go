package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuedeck/cue/internal/config"
)

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestNewScansCardsAndDocs(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, ".cuedeck/cards/abc123.md",
		"---\ntitle: Task A\nstatus: todo\npriority: high\n---\n# Task A\nbody\n")
	writeWorkspaceFile(t, root, ".cuedeck/docs/guide.md",
		"# Guide\nSee [[abc123]] for the task.\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	docs := e.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, ".cuedeck/cards/abc123.md", docs[0].Path)
	assert.Equal(t, ".cuedeck/docs/guide.md", docs[1].Path)

	edges := e.LinkGraph().Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, ".cuedeck/docs/guide.md", edges[0][0])
	assert.Equal(t, ".cuedeck/cards/abc123.md", edges[0][1])
}

func TestScanAllRemovesDeletedFilesFirst(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, ".cuedeck/cards/keep.md", "---\ntitle: Keep\n---\nbody\n")
	writeWorkspaceFile(t, root, ".cuedeck/cards/drop.md", "---\ntitle: Drop\n---\nbody\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()
	require.Len(t, e.Documents(), 2)

	require.NoError(t, os.Remove(filepath.Join(root, ".cuedeck", "cards", "drop.md")))
	require.NoError(t, e.ScanAll(context.Background()))

	docs := e.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, ".cuedeck/cards/keep.md", docs[0].Path)
	assert.NotContains(t, e.LinkGraph().Nodes(), ".cuedeck/cards/drop.md")
}

func TestTaskGraphTracksDependsOn(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, ".cuedeck/cards/aaa111.md", "---\ntitle: A\n---\nbody\n")
	writeWorkspaceFile(t, root, ".cuedeck/cards/bbb222.md",
		"---\ntitle: B\ndepends_on:\n  - aaa111\n---\nbody\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []string{"aaa111"}, e.TaskGraph().GetDependencies("bbb222"))
	assert.Equal(t, []string{"bbb222"}, e.TaskGraph().GetDependents("aaa111"))
}

func TestUpdateFilePersistsMetadataRow(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, ".cuedeck/cards/row1.md", "---\ntitle: Row\n---\nsome body text\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()
	require.NotNil(t, e.Store())

	meta, ok, err := e.Store().GetFile(context.Background(), ".cuedeck/cards/row1.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, meta.Hash, 64)
	assert.Greater(t, meta.SizeBytes, int64(0))

	total, err := e.Store().GetTotalTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meta.Tokens, total)
}

func TestRemoveFileDeletesMetadataRow(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, ".cuedeck/cards/gone.md", "---\ntitle: Gone\n---\nbody\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.RemoveFile(context.Background(), ".cuedeck/cards/gone.md"))

	_, ok, err := e.Store().GetFile(context.Background(), ".cuedeck/cards/gone.md")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, e.Documents())
}

func TestRenderDependencyFirstAndBudgetBounded(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, ".cuedeck/docs/base.md", "# Base\nfoundation\n")
	writeWorkspaceFile(t, root, ".cuedeck/docs/top.md", "# Top\nbuilds on [[base]]\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	scene, err := e.Render()
	require.NoError(t, err)
	assert.Contains(t, scene, "## .cuedeck/docs/base.md")
	assert.Contains(t, scene, "## .cuedeck/docs/top.md")
	assert.Less(t,
		strings.Index(scene, "## .cuedeck/docs/base.md"),
		strings.Index(scene, "## .cuedeck/docs/top.md"),
		"dependencies render before their dependents")
}

func TestRenderStopsAtTokenBudget(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Core.TokenLimit = 1
	require.NoError(t, config.Write(root, cfg))

	writeWorkspaceFile(t, root, ".cuedeck/docs/big.md",
		"# Big\nthis document alone exceeds one token of budget\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	scene, err := e.Render()
	require.NoError(t, err)
	assert.NotContains(t, scene, "## .cuedeck/docs/big.md")
}

func TestStartStopWatching(t *testing.T) {
	root := t.TempDir()
	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.StartWatching())
	e.StopWatching()
}
