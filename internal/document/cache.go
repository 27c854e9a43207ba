package document

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// ReadOnlyDoc is an immutable-after-load Document, reference-counted by
// DocumentCache. Callers must not mutate it; Set/SetAdd/etc. are not
// exposed on this type on purpose (use Doc() only for reads).
type ReadOnlyDoc struct {
	path     string
	doc      *Document
	refCount int
	idleFor  int // frames since refCount last reached zero
}

// Doc exposes the underlying read-only Document for Get/Serialize calls.
func (r *ReadOnlyDoc) Doc() *Document { return r.doc }

// Path returns the canonical path this entry was loaded from.
func (r *ReadOnlyDoc) Path() string { return r.path }

// DocumentCache loads JSON/JSONC documents from disk once and hands out
// reference-counted read-only handles, evicting entries whose refcount has
// sat at zero for at least evictAfterFrames frames.
type DocumentCache struct {
	mu               sync.Mutex
	entries          map[string]*ReadOnlyDoc
	evictAfterFrames int
}

// NewDocumentCache creates a cache that evicts idle entries after
// evictAfterFrames frames with a zero refcount (minimum 2).
func NewDocumentCache(evictAfterFrames int) *DocumentCache {
	if evictAfterFrames < 2 {
		evictAfterFrames = 2
	}
	return &DocumentCache{
		entries:          make(map[string]*ReadOnlyDoc),
		evictAfterFrames: evictAfterFrames,
	}
}

// GetDocument canonicalizes path, returning a cached entry (refcount
// bumped) or loading, parsing, and interning a new one.
func (c *DocumentCache) GetDocument(path string) (*ReadOnlyDoc, error) {
	canon, err := filepath.Abs(path)
	if err != nil {
		canon = path
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[canon]; ok {
		entry.refCount++
		entry.idleFor = 0
		return entry, nil
	}

	doc, _, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("documentcache: %w", err)
	}
	entry := &ReadOnlyDoc{path: canon, doc: doc, refCount: 1}
	c.entries[canon] = entry
	log.Debug().Str("path", canon).Msg("documentcache: loaded")
	return entry, nil
}

// Release decrements an entry's refcount; it becomes eligible for eviction
// once refcount reaches zero and Update has observed it idle long enough.
func (c *DocumentCache) Release(entry *ReadOnlyDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.refCount > 0 {
		entry.refCount--
	}
}

// Update runs once per frame, aging idle (refcount==0) entries and
// evicting those that have been idle for evictAfterFrames consecutive
// frames.
func (c *DocumentCache) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, entry := range c.entries {
		if entry.refCount > 0 {
			entry.idleFor = 0
			continue
		}
		entry.idleFor++
		if entry.idleFor >= c.evictAfterFrames {
			delete(c.entries, path)
			log.Debug().Str("path", path).Msg("documentcache: evicted")
		}
	}
}

// Len reports the number of currently cached entries (for tests/metrics).
func (c *DocumentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
