// Package cache implements the Document Cache: a path-keyed
// map of parsed cards, persisted to a binary blob, self-healing on
// corruption, and fronted by a fast index keyed on mtime and size so a cache
// hit never recomputes SHA-256 unless the file's mtime or size moved.
package cache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/parser"
)

const blobName = "documents.bin"

// Stats summarizes cache effectiveness.
type Stats struct {
	Entries  int
	Hits     int64
	Misses   int64
	HitRate  float64
}

// Cache is the Document Cache. All exported methods are safe for
// concurrent use by readers; the Engine is the only expected mutator.
type Cache struct {
	mu sync.RWMutex

	dir    string
	blob   string
	parser *parser.Parser

	entries map[string]*card.CachedDocument
	// fastIndex maps path -> (mtime unix-nano, size, xxhash of the content
	// hash) so a re-stat with unchanged mtime and size never touches the
	// file's content. Entries recorded by Load, Insert and InsertBatch carry
	// size 0, so their first GetOrParse re-reads the file.
	fastIndex map[string]fastEntry

	hits   int64
	misses int64
}

type fastEntry struct {
	mtimeNano int64
	size      int64
	xh        uint64
}

// New creates a Cache rooted at <workspaceRoot>/.cuedeck/cache, creating
// the directory if needed.
func New(workspaceRoot string) (*Cache, error) {
	dir := filepath.Join(workspaceRoot, ".cuedeck", "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:       dir,
		blob:      filepath.Join(dir, blobName),
		parser:    parser.New(),
		entries:   make(map[string]*card.CachedDocument),
		fastIndex: make(map[string]fastEntry),
	}, nil
}

type persisted struct {
	Entries map[string]*card.CachedDocument
}

// Load reads the persisted blob. Deserialization failure self-heals: the
// corrupt blob is deleted and the cache starts empty.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.blob)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		f.Close()
		os.Remove(c.blob)
		c.entries = make(map[string]*card.CachedDocument)
		c.fastIndex = make(map[string]fastEntry)
		return nil
	}
	c.entries = p.Entries
	if c.entries == nil {
		c.entries = make(map[string]*card.CachedDocument)
	}
	c.fastIndex = make(map[string]fastEntry)
	for path, entry := range c.entries {
		c.fastIndex[path] = fastEntry{
			mtimeNano: entry.ModifiedTime.UnixNano(),
			xh:        xxhash.Sum64String(entry.Hash),
		}
	}
	return nil
}

// Save persists the current map.
func (c *Cache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tmp := c.blob + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(persisted{Entries: c.entries}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.blob)
}

// GetOrParse returns the cached Document for path iff the stored
// (hash, modified) still matches the file on disk; otherwise it reparses,
// updates the entry, and counts a miss.
func (c *Cache) GetOrParse(absPath, wsRelPath string) (card.Document, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return card.Document{}, err
	}
	mtime := info.ModTime()

	c.mu.RLock()
	entry, ok := c.entries[wsRelPath]
	fast, fastOK := c.fastIndex[wsRelPath]
	c.mu.RUnlock()

	if ok && fastOK && fast.mtimeNano == mtime.UnixNano() && fast.size == info.Size() {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.Document, nil
	}

	doc, err := c.parser.ParseFile(absPath, wsRelPath)
	if err != nil {
		return card.Document{}, err
	}

	c.mu.Lock()
	c.misses++
	c.entries[wsRelPath] = &card.CachedDocument{Hash: doc.Hash, ModifiedTime: mtime, Document: doc}
	c.fastIndex[wsRelPath] = fastEntry{
		mtimeNano: mtime.UnixNano(),
		size:      info.Size(),
		xh:        xxhash.Sum64String(doc.Hash),
	}
	c.mu.Unlock()
	return doc, nil
}

// NeedsUpdate reports whether the cached entry for path is stale relative
// to the given hash/modified pair.
func (c *Cache) NeedsUpdate(path, hash string, modified time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	if !ok {
		return true
	}
	return entry.Hash != hash || !entry.ModifiedTime.Equal(modified)
}

// Insert adds or replaces a single entry.
func (c *Cache) Insert(path string, doc card.Document, modified time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = &card.CachedDocument{Hash: doc.Hash, ModifiedTime: modified, Document: doc}
	c.fastIndex[path] = fastEntry{mtimeNano: modified.UnixNano(), xh: xxhash.Sum64String(doc.Hash)}
}

// InsertBatch adds or replaces many entries atomically with respect to
// other Cache callers.
func (c *Cache) InsertBatch(docs map[string]card.Document, modified map[string]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, doc := range docs {
		mt := modified[path]
		c.entries[path] = &card.CachedDocument{Hash: doc.Hash, ModifiedTime: mt, Document: doc}
		c.fastIndex[path] = fastEntry{mtimeNano: mt.UnixNano(), xh: xxhash.Sum64String(doc.Hash)}
	}
}

// Invalidate removes path from both the primary map and the fast index.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
	delete(c.fastIndex, path)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*card.CachedDocument)
	c.fastIndex = make(map[string]fastEntry)
}

// Get returns the cached document for path without triggering a parse.
func (c *Cache) Get(path string) (card.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	if !ok {
		return card.Document{}, false
	}
	return entry.Document, true
}

// Paths returns every cached path, in no particular order.
func (c *Cache) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	return out
}

// Stats reports entry count, hits, misses, and the hit rate.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses, HitRate: rate}
}
