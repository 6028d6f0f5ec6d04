package mcpsrv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuedeck/cue/internal/config"
	"github.com/cuedeck/cue/internal/errs"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func noIgnore() *config.IgnoreMatcher {
	return config.NewIgnoreMatcher(nil)
}

func TestSearchCodeFindsMatchesWithPositions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md": "first line\nneedle here\n",
		"b.md": "no match\n",
	})

	matches, truncated, err := searchCode(root, "needle", "", true, 50, noIgnore())
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.md", matches[0].Path)
	assert.Equal(t, 2, matches[0].LineNum)
	assert.Equal(t, 0, matches[0].Column)
	assert.Equal(t, "needle here", matches[0].Preview)
}

func TestSearchCodeCaseInsensitiveByDefault(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "NEEDLE\n"})

	matches, _, err := searchCode(root, "needle", "", false, 50, noIgnore())
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, _, err = searchCode(root, "needle", "", true, 50, noIgnore())
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchCodeHonorsFileGlob(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/x.go":  "needle\n",
		"docs/x.md": "needle\n",
	})

	matches, _, err := searchCode(root, "needle", "**/*.md", true, 50, noIgnore())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "docs/x.md", matches[0].Path)
}

func TestSearchCodeHonorsIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.md":           "needle\n",
		"node_modules/x.md": "needle\n",
	})

	ignore := config.NewIgnoreMatcher([]string{"node_modules/"})
	matches, _, err := searchCode(root, "needle", "", true, 50, ignore)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "keep.md", matches[0].Path)
}

func TestSearchCodeTruncatesAtMaxResults(t *testing.T) {
	root := t.TempDir()
	files := make(map[string]string)
	for i := 0; i < 5; i++ {
		files[filepath.Join("d", string(rune('a'+i))+".md")] = "needle\nneedle\n"
	}
	writeTree(t, root, files)

	matches, truncated, err := searchCode(root, "needle", "", true, 3, noIgnore())
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	assert.True(t, truncated)
}

func TestSearchCodeBadPattern(t *testing.T) {
	root := t.TempDir()
	_, _, err := searchCode(root, "(unclosed", "", true, 50, noIgnore())
	var pe *errs.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestTruncatePreview(t *testing.T) {
	long := strings.Repeat("x", 200)
	p := truncatePreview("  " + long)
	assert.Len(t, p, previewMaxChars)
	assert.True(t, strings.HasSuffix(p, "..."))

	assert.Equal(t, "short", truncatePreview("  short  "))
}

func TestCreateErrorResponseMapsCodesInBand(t *testing.T) {
	resp, err := createErrorResponse("read_doc", &errs.FileNotFoundError{Path: "cards/x.md"})
	require.NoError(t, err)
	assert.True(t, resp.IsError)

	text := resp.Content[0].(*mcp.TextContent).Text
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, float64(errs.CodeFileNotFound), payload["code"])
	assert.Equal(t, "read_doc", payload["method"])
	assert.Equal(t, false, payload["success"])
}

func TestCreateErrorResponseRateLimitData(t *testing.T) {
	rl := &errs.RateLimitError{Method: "read_context", Limit: 10, WindowSeconds: 60, CurrentCount: 10, RetryAfterSeconds: 42}
	resp, err := createErrorResponse("read_context", rl)
	require.NoError(t, err)

	text := resp.Content[0].(*mcp.TextContent).Text
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, float64(42), payload["retry_after_seconds"])
	assert.Equal(t, float64(10), payload["limit"])
	assert.Equal(t, float64(60), payload["window_seconds"])
	assert.Equal(t, float64(10), payload["current_count"])
}
