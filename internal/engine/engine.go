// Package engine owns the Cache, Graphs, and optional Metadata Store for
// a single workspace and is the sole mutator of all three.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cuedeck/cue/internal/cache"
	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/config"
	"github.com/cuedeck/cue/internal/errs"
	"github.com/cuedeck/cue/internal/graph"
	"github.com/cuedeck/cue/internal/store"
)

// Engine is the workspace's single logical owner of indexed state.
type Engine struct {
	mu sync.RWMutex

	WorkspaceRoot string
	Config        *config.Config

	cache       *cache.Cache
	linkGraph   *graph.LinkGraph
	taskGraph   *graph.TaskGraph
	store       *store.Store // optional; nil if not opened
	knownFiles  map[string]bool

	watcher      *fsnotify.Watcher
	watcherStop  chan struct{}
	watcherWG    sync.WaitGroup
	debounceMs   int
}

// New loads config, opens and loads the cache, builds an empty graph, and
// runs an initial scan_all.
func New(workspaceRoot string) (*Engine, error) {
	cfg, err := config.Load(workspaceRoot)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(workspaceRoot)
	if err != nil {
		return nil, err
	}
	if err := c.Load(); err != nil {
		return nil, err
	}

	e := &Engine{
		WorkspaceRoot: workspaceRoot,
		Config:        cfg,
		cache:         c,
		linkGraph:     graph.NewLinkGraph(),
		taskGraph:     graph.NewTaskGraph(),
		knownFiles:    make(map[string]bool),
		debounceMs:    cfg.Watcher.DebounceMs,
	}

	if cfg.Cache.Enabled {
		st, err := store.Open(workspaceRoot)
		if err != nil {
			return nil, err
		}
		e.store = st
	}

	if err := e.ScanAll(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// Close releases the engine's held resources.
func (e *Engine) Close() error {
	e.StopWatching()
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// cardDirs are the two trees scan_all walks for markdown files.
func (e *Engine) cardDirs() []string {
	return []string{
		filepath.Join(e.WorkspaceRoot, ".cuedeck", "cards"),
		filepath.Join(e.WorkspaceRoot, ".cuedeck", "docs"),
	}
}

// ScanAll walks the card/doc trees, removes deleted files before updating
// changed ones, and saves the cache.
func (e *Engine) ScanAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := make(map[string]bool)
	ignore := config.NewIgnoreMatcher(e.Config.Parser.IgnorePatterns)

	for _, dir := range e.cardDirs() {
		_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
			if err != nil || d == nil || d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(p, ".md") {
				return nil
			}
			rel, relErr := filepath.Rel(e.WorkspaceRoot, p)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if ignore.Match(rel) {
				return nil
			}
			current[rel] = true
			return nil
		})
	}

	for known := range e.knownFiles {
		if !current[known] {
			e.removeFileLocked(known)
			if e.store != nil {
				_ = e.store.DeleteFile(ctx, known)
			}
		}
	}

	for rel := range current {
		if err := e.updateFileLocked(ctx, rel); err != nil {
			log.Printf("cuedeck: engine: skip %s: %v", rel, err)
		}
	}

	return e.cache.Save()
}

// UpdateFile parses path, updates cache/graph/store, and tracks it as known.
func (e *Engine) UpdateFile(ctx context.Context, relPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateFileLocked(ctx, relPath)
}

func (e *Engine) updateFileLocked(ctx context.Context, relPath string) error {
	abs := filepath.Join(e.WorkspaceRoot, relPath)
	doc, err := e.cache.GetOrParse(abs, relPath)
	if err != nil {
		return err
	}

	e.linkGraph.AddOrUpdateDocument(doc)
	if doc.Frontmatter != nil && isTaskPath(relPath) {
		id := taskIDFromPath(relPath)
		e.taskGraph.SetDependencies(id, doc.Frontmatter.DependsOn)
	}
	e.knownFiles[relPath] = true

	if e.store != nil {
		info, statErr := os.Stat(abs)
		if statErr == nil {
			_, _ = e.store.UpsertFile(ctx, card.FileMetadata{
				Path:       relPath,
				Hash:       doc.Hash,
				ModifiedAt: info.ModTime().Unix(),
				SizeBytes:  info.Size(),
				Tokens:     doc.Tokens,
			})
		}
	}
	return nil
}

// RemoveFile invalidates relPath from cache/graph/known_files.
func (e *Engine) RemoveFile(ctx context.Context, relPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeFileLocked(relPath)
	if e.store != nil {
		return e.store.DeleteFile(ctx, relPath)
	}
	return nil
}

func (e *Engine) removeFileLocked(relPath string) {
	e.cache.Invalidate(relPath)
	e.linkGraph.RemoveDocument(relPath)
	if isTaskPath(relPath) {
		e.taskGraph.RemoveTask(taskIDFromPath(relPath))
	}
	delete(e.knownFiles, relPath)
}

func isTaskPath(relPath string) bool {
	return strings.Contains(relPath, "/cards/") || strings.HasPrefix(relPath, "cards/")
}

func taskIDFromPath(relPath string) string {
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Documents returns a snapshot of every currently-known document, sorted
// by path, read from the cache.
func (e *Engine) Documents() []card.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	paths := make([]string, 0, len(e.knownFiles))
	for p := range e.knownFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]card.Document, 0, len(paths))
	for _, p := range paths {
		if doc, ok := e.cache.Get(p); ok {
			out = append(out, doc)
		}
	}
	return out
}

// LinkGraph returns the engine's content-link graph for read-only queries.
func (e *Engine) LinkGraph() *graph.LinkGraph { return e.linkGraph }

// TaskGraph returns the engine's task dependency graph for read-only queries.
func (e *Engine) TaskGraph() *graph.TaskGraph { return e.taskGraph }

// Render topologically sorts the graph and accumulates a scene string in
// dependency-first order, stopping before the running token total would
// exceed the configured budget.
func (e *Engine) Render() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	order, err := e.linkGraph.TopologicalSort()
	if err != nil {
		return "", err
	}

	budget := e.Config.Core.TokenLimit
	var b strings.Builder
	var total uint64

	for _, path := range order {
		doc, ok := e.cache.Get(path)
		if !ok {
			continue
		}
		if total+doc.Tokens > uint64(budget) {
			break
		}

		b.WriteString(fmt.Sprintf("## %s\n", path))
		b.WriteString(fmt.Sprintf("tokens=%d hash=%s\n\n", doc.Tokens, doc.Hash))
		for _, a := range doc.Anchors {
			b.WriteString(fmt.Sprintf("- %s (L%d-%d)\n", a.Header, a.StartLine, a.EndLine))
		}
		b.WriteString("\n")

		abs := filepath.Join(e.WorkspaceRoot, path)
		content, readErr := os.ReadFile(abs)
		if readErr == nil {
			b.Write(content)
			b.WriteString("\n\n")
		}

		total += doc.Tokens
	}
	return b.String(), nil
}

// StartWatching enables the fsnotify-based debounced rescan hook, if
// config.watcher.enabled. This is boundary-adjacent: the core
// scan_all/update_file/remove_file behavior is unaffected.
func (e *Engine) StartWatching() error {
	if !e.Config.Watcher.Enabled || e.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range e.cardDirs() {
		_ = os.MkdirAll(dir, 0o755)
		if err := w.Add(dir); err != nil {
			log.Printf("cuedeck: engine: watch %s: %v", dir, err)
		}
	}
	e.watcher = w
	e.watcherStop = make(chan struct{})
	e.watcherWG.Add(1)
	go e.watchLoop()
	return nil
}

// StopWatching halts the watcher goroutine, if running.
func (e *Engine) StopWatching() {
	if e.watcher == nil {
		return
	}
	close(e.watcherStop)
	e.watcher.Close()
	e.watcherWG.Wait()
	e.watcher = nil
}

func (e *Engine) watchLoop() {
	defer e.watcherWG.Done()
	var timer *time.Timer
	debounce := time.Duration(e.debounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	for {
		select {
		case <-e.watcherStop:
			if timer != nil {
				timer.Stop()
			}
			return
		case _, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := e.ScanAll(context.Background()); err != nil {
					log.Printf("cuedeck: engine: debounced rescan failed: %v", err)
				}
			})
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("cuedeck: engine: watcher error: %v", err)
		}
	}
}

// StaleTaskThreshold is the "age > 90 days" boundary used by Doctor's
// metadata-consistency check.
const StaleTaskThreshold = 90 * 24 * time.Hour

// Store returns the optional metadata store, or nil.
func (e *Engine) Store() *store.Store { return e.store }

// Cache returns the document cache for callers needing raw access (search,
// doctor).
func (e *Engine) Cache() *cache.Cache { return e.cache }

// CheckMissingDependencies surfaces a *errs.DependencyNotFoundError for
// every task whose depends_on references an id with no known card. Used by
// doctor's task-graph check.
func (e *Engine) CheckMissingDependencies() []error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var errsOut []error
	for id := range e.knownFiles {
		if !isTaskPath(id) {
			continue
		}
		taskID := taskIDFromPath(id)
		for _, dep := range e.taskGraph.GetDependencies(taskID) {
			found := false
			for p := range e.knownFiles {
				if isTaskPath(p) && taskIDFromPath(p) == dep {
					found = true
					break
				}
			}
			if !found {
				errsOut = append(errsOut, &errs.DependencyNotFoundError{TaskID: taskID, DepID: dep})
			}
		}
	}
	return errsOut
}
