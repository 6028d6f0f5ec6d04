// Package migrate implements the one-shot, lock-guarded migration of
// Document Cache state into the SQLite metadata store. An advisory lock
// file gates the single in-flight migration; a sticky failure marker
// suppresses automatic retries.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuedeck/cue/internal/cache"
	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/store"
)

const (
	lockName   = "migration.lock"
	markerName = "migration_failed.marker"
	blobName   = "documents.bin"
)

// ShouldRun reports whether the migration trigger condition holds: no
// metadata DB, a cache blob present, and no failure marker.
func ShouldRun(workspaceRoot string) bool {
	cueDir := filepath.Join(workspaceRoot, ".cue")
	dbPath := filepath.Join(cueDir, "metadata.db")
	blobPath := filepath.Join(workspaceRoot, ".cuedeck", "cache", blobName)
	markerPath := filepath.Join(cueDir, markerName)

	if _, err := os.Stat(dbPath); err == nil {
		return false
	}
	if _, err := os.Stat(markerPath); err == nil {
		return false
	}
	_, err := os.Stat(blobPath)
	return err == nil
}

// RemoveMarker is the manual, explicit unblock operation. Nothing in the
// automated path calls this: a failed migration stays failed until an
// operator clears the marker.
func RemoveMarker(workspaceRoot string) error {
	return os.Remove(filepath.Join(workspaceRoot, ".cue", markerName))
}

// Run executes the migration. It returns nil on
// success (including the "skip silently" case when the lock is held by
// another process).
func Run(ctx context.Context, workspaceRoot string) error {
	cueDir := filepath.Join(workspaceRoot, ".cue")
	if err := os.MkdirAll(cueDir, 0o755); err != nil {
		return err
	}
	lockPath := filepath.Join(cueDir, lockName)

	lockFile, acquired, err := acquireLock(lockPath)
	if err != nil {
		return err
	}
	if !acquired {
		return nil // another process holds the lock; skip silently
	}
	defer releaseLock(lockFile, lockPath)

	if err := backupBlob(workspaceRoot); err != nil {
		return fail(cueDir, err)
	}

	st, err := store.Open(workspaceRoot)
	if err != nil {
		return fail(cueDir, err)
	}
	defer st.Close()

	c, err := cache.New(workspaceRoot)
	if err != nil {
		return fail(cueDir, err)
	}
	if err := c.Load(); err != nil {
		return fail(cueDir, err)
	}

	var rows []card.FileMetadata
	for _, path := range c.Paths() {
		doc, ok := c.Get(path)
		if !ok {
			continue
		}
		absPath := filepath.Join(workspaceRoot, path)
		info, err := os.Stat(absPath)
		if err != nil {
			continue // file no longer exists
		}
		rows = append(rows, card.FileMetadata{
			Path:       path,
			Hash:       doc.Hash,
			ModifiedAt: info.ModTime().Unix(),
			SizeBytes:  info.Size(),
			Tokens:     doc.Tokens,
		})
	}

	if err := st.UpsertFilesBatch(ctx, rows); err != nil {
		return fail(cueDir, err)
	}
	return nil
}

func fail(cueDir string, cause error) error {
	os.Remove(filepath.Join(cueDir, "metadata.db"))
	os.Remove(filepath.Join(cueDir, "metadata.db-wal"))
	os.Remove(filepath.Join(cueDir, "metadata.db-shm"))
	markerPath := filepath.Join(cueDir, markerName)
	_ = os.WriteFile(markerPath, []byte(fmt.Sprintf("migration failed at %s: %v\n", time.Now().Format(time.RFC3339), cause)), 0o644)
	return cause
}

func backupBlob(workspaceRoot string) error {
	src := filepath.Join(workspaceRoot, ".cuedeck", "cache", blobName)
	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	dst := filepath.Join(workspaceRoot, ".cue", fmt.Sprintf("documents.bin.backup.%d", time.Now().Unix()))
	return os.WriteFile(dst, data, 0o644)
}

func acquireLock(lockPath string) (*os.File, bool, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, true, nil
}

func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}
