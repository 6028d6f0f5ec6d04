package mcpsrv

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cuedeck/cue/internal/config"
	"github.com/cuedeck/cue/internal/errs"
)

const maxCodeSearchResults = 100
const previewMaxChars = 100

// codeMatch is a single search_code hit, token-optimized: path +
// line number + a truncated preview, not the full line.
type codeMatch struct {
	Path      string
	LineNum   int
	Preview   string
	Column    int
}

// searchCode walks root (honoring the workspace's configured ignore
// patterns, same as the engine's own scan) applying pattern as a regex to
// every line of every non-ignored file.
func searchCode(root, pattern, fileGlob string, caseSensitive bool, maxResults int, ignore *config.IgnoreMatcher) ([]codeMatch, bool, error) {
	if maxResults <= 0 || maxResults > maxCodeSearchResults {
		maxResults = maxCodeSearchResults
	}

	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, false, &errs.ParseError{Kind: "regex", Input: pattern, Underlying: err}
	}

	var out []codeMatch
	truncated := false

	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ignore.Match(rel) {
			return nil
		}
		if fileGlob != "" {
			if ok, _ := doublestar.Match(fileGlob, rel); !ok {
				return nil
			}
		}
		if len(out) >= maxResults {
			truncated = true
			return nil
		}

		f, openErr := os.Open(p)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if isBinaryLine(line) {
				return nil
			}
			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			out = append(out, codeMatch{
				Path:    rel,
				LineNum: lineNum,
				Preview: truncatePreview(line),
				Column:  loc[0],
			})
			if len(out) >= maxResults {
				truncated = true
				return nil
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, false, walkErr
	}
	return out, truncated, nil
}

func truncatePreview(line string) string {
	p := strings.TrimSpace(line)
	if len(p) > previewMaxChars {
		return p[:previewMaxChars-3] + "..."
	}
	return p
}

// isBinaryLine rejects null bytes the same way ripgrep's binary detection
// does.
func isBinaryLine(line string) bool {
	return strings.ContainsRune(line, 0)
}
