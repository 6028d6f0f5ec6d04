// Package agentfs enforces the agent file-editor boundary: path
// canonicalisation and sandboxing, blocked extensions, a size ceiling,
// and timestamped backup retention. Every path is validated before any
// read or write touches it.
package agentfs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cuedeck/cue/internal/errs"
)

// MaxFileSize is the 10 MiB ceiling on files the editor will touch.
const MaxFileSize = 10 * 1024 * 1024

// MaxBackupsPerFile is the retention cap per base filename.
const MaxBackupsPerFile = 10

// blockedExtensions are never editable, regardless of size.
var blockedExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".key": true, ".pem": true, ".p12": true, ".crt": true,
	".env": true, ".secrets": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
}

// blockedDirs are path components that sandbox a file out of reach even
// when the resolved path is otherwise inside the workspace.
var blockedDirs = map[string]bool{
	".git": true, ".cuedeck": true,
}

// Boundary canonicalises and validates paths against a single workspace
// root before any read or write touches disk.
type Boundary struct {
	Root string
}

// New returns a Boundary rooted at root (an absolute workspace path).
func New(root string) *Boundary {
	return &Boundary{Root: root}
}

// Resolve canonicalises relPath against the workspace root and rejects
// anything outside the workspace, inside .git/.cuedeck, with a blocked
// extension, or larger than MaxFileSize. Returns the validated absolute
// path.
func (b *Boundary) Resolve(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", &errs.ValidationError{Field: "path", Reason: "must be workspace-relative"}
	}

	abs := filepath.Join(b.Root, relPath)
	rootWithSep := b.Root + string(filepath.Separator)
	if abs != b.Root && !strings.HasPrefix(abs, rootWithSep) {
		return "", &errs.ValidationError{Field: "path", Reason: "resolves outside the workspace"}
	}

	rel, err := filepath.Rel(b.Root, abs)
	if err != nil {
		return "", &errs.ValidationError{Field: "path", Reason: "cannot relativize"}
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if blockedDirs[part] {
			return "", &errs.ValidationError{Field: "path", Reason: fmt.Sprintf("path enters protected directory %q", part)}
		}
	}

	ext := strings.ToLower(filepath.Ext(abs))
	if blockedExtensions[ext] {
		return "", &errs.ValidationError{Field: "path", Reason: fmt.Sprintf("extension %q is blocked", ext)}
	}

	info, statErr := os.Stat(abs)
	if statErr == nil && info.Size() > MaxFileSize {
		return "", &errs.ValidationError{Field: "path", Reason: "file exceeds 10 MiB limit"}
	}

	return abs, nil
}

// ReadLines reads inclusive 1-indexed lines [startLine, endLine] of the
// file at relPath.
func (b *Boundary) ReadLines(relPath string, startLine, endLine int) (string, int, error) {
	abs, err := b.Resolve(relPath)
	if err != nil {
		return "", 0, err
	}
	if startLine < 1 || endLine < startLine {
		return "", 0, &errs.ValidationError{Field: "line_range", Reason: "start_line must be >=1 and <= end_line"}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, &errs.FileNotFoundError{Path: relPath}
		}
		return "", 0, err
	}

	lines := strings.Split(string(data), "\n")
	if startLine > len(lines) {
		return "", 0, nil
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	selected := lines[startLine-1 : endLine]
	return strings.Join(selected, "\n"), len(selected), nil
}

// Backup writes a timestamped copy of relPath under .cuedeck/backups/ and
// evicts the oldest backups beyond MaxBackupsPerFile for that base
// filename, returning the backup's workspace-relative path.
func (b *Boundary) Backup(relPath string, now time.Time) (string, error) {
	abs := filepath.Join(b.Root, relPath)
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}

	backupsDir := filepath.Join(b.Root, ".cuedeck", "backups")
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(relPath)
	stamp := now.Format("20060102_150405")
	backupName := fmt.Sprintf("%s_%s", base, stamp)
	backupPath := filepath.Join(backupsDir, backupName)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}

	if err := b.evictOldest(backupsDir, base); err != nil {
		return "", err
	}

	rel, _ := filepath.Rel(b.Root, backupPath)
	return filepath.ToSlash(rel), nil
}

// evictOldest keeps at most MaxBackupsPerFile entries for base, removing
// the oldest by creation time.
func (b *Boundary) evictOldest(backupsDir, base string) error {
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		return err
	}

	type stamped struct {
		name string
		mod  time.Time
	}
	var matches []stamped
	prefix := base + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		matches = append(matches, stamped{name: e.Name(), mod: info.ModTime()})
	}
	if len(matches) <= MaxBackupsPerFile {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].mod.Before(matches[j].mod) })
	excess := len(matches) - MaxBackupsPerFile
	for i := 0; i < excess; i++ {
		_ = os.Remove(filepath.Join(backupsDir, matches[i].name))
	}
	return nil
}

// Write replaces relPath's content atomically, after validating it through
// Resolve (so an existing oversized or blocked file is never overwritten).
func (b *Boundary) Write(relPath, content string) error {
	abs, err := b.Resolve(relPath)
	if err != nil {
		return err
	}
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, abs)
}

// ReplaceResult reports the outcome of a find/replace mutation.
type ReplaceResult struct {
	MatchesFound int
	BackupPath   string
}

// ReplaceInFile backs up relPath, then substitutes every occurrence of find
// (literal, or a regexp when useRegex) with replace, and rewrites the file. No backup or write occurs when there are zero matches.
func (b *Boundary) ReplaceInFile(relPath, find, replace string, useRegex bool, now time.Time) (ReplaceResult, error) {
	abs, err := b.Resolve(relPath)
	if err != nil {
		return ReplaceResult{}, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ReplaceResult{}, &errs.FileNotFoundError{Path: relPath}
		}
		return ReplaceResult{}, err
	}
	original := string(data)

	var updated string
	var matches int
	if useRegex {
		re, reErr := regexp.Compile(find)
		if reErr != nil {
			return ReplaceResult{}, &errs.ParseError{Kind: "regex", Input: find, Underlying: reErr}
		}
		matches = len(re.FindAllStringIndex(original, -1))
		updated = re.ReplaceAllString(original, replace)
	} else {
		matches = strings.Count(original, find)
		updated = strings.ReplaceAll(original, find, replace)
	}

	if matches == 0 {
		return ReplaceResult{MatchesFound: 0}, nil
	}

	backupPath, err := b.Backup(relPath, now)
	if err != nil {
		return ReplaceResult{}, err
	}
	if err := b.Write(relPath, updated); err != nil {
		return ReplaceResult{}, err
	}
	return ReplaceResult{MatchesFound: matches, BackupPath: backupPath}, nil
}
