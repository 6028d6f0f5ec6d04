package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkspaceDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestSearchWorkspaceKeywordTopResults(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceDoc(t, root, "async.md", "all about asynchronous programming\n")
	writeWorkspaceDoc(t, root, "recipes.md", "cooking recipes for dinner\n")

	docs, err := SearchWorkspace(context.Background(), root, "asynchronous", false)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "async.md", docs[0].Path)
}

func TestSearchWorkspaceSkipsNoiseDirs(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceDoc(t, root, "keep.md", "needle\n")
	writeWorkspaceDoc(t, root, "node_modules/dep.md", "needle\n")

	docs, err := SearchWorkspace(context.Background(), root, "needle", false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.md", docs[0].Path)
}

func TestSearchWorkspaceWithModeAppliesFilters(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceDoc(t, root, "a.md", "---\ntitle: A\npriority: high\n---\nneedle\n")
	writeWorkspaceDoc(t, root, "b.md", "---\ntitle: B\npriority: low\n---\nneedle\n")

	docs, err := SearchWorkspaceWithMode(context.Background(), root, "needle", ModeKeyword, &Filters{Priority: "high"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.md", docs[0].Path)
}

func TestSearchWorkspaceHybridRanksRelatedContentFirst(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceDoc(t, root, "async.md", "asynchronous programming with concurrent execution of tasks\n")
	writeWorkspaceDoc(t, root, "recipes.md", "cooking recipes with butter and flour\n")

	docs, err := SearchWorkspaceWithMode(context.Background(), root, "concurrent execution", ModeHybrid, nil)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "async.md", docs[0].Path)
}

func TestSearchWorkspacePaginatedAcceptsOversizeLimitAndRejectsBadCursor(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		writeWorkspaceDoc(t, root, filepath.Join("d", string(rune('a'+i))+".md"), "needle\n")
	}

	page, err := SearchWorkspacePaginated(context.Background(), root, "needle", ModeKeyword, nil, 100, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Empty(t, page.NextCursor)

	_, err = SearchWorkspacePaginated(context.Background(), root, "needle", ModeKeyword, nil, 10, "not-a-cursor")
	assert.Error(t, err)
}
