package cache

import (
	"log/slog"

	"github.com/ppiankov/veracity/internal/model"
)

// Layered is a memory cache with write-through to a durable store.
// Memory stays authoritative for the process lifetime; store failures are logged only.
type Layered struct {
	memory *Memory
	store  Store
	logger *slog.Logger
}

// NewLayered creates a layered cache and warms memory from the store.
// A store that cannot be read leaves the cache empty instead of failing startup.
func NewLayered(memory *Memory, store Store, logger *slog.Logger) *Layered {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Layered{
		memory: memory,
		store:  store,
		logger: logger,
	}
	c.warm()
	return c
}

func (c *Layered) warm() {
	entries, err := c.store.Load()
	if err != nil {
		c.logger.Warn("cache snapshot unreadable, starting empty", "error", err)
		return
	}

	loaded := 0
	for _, entry := range entries {
		before := c.memory.Len()
		c.memory.Insert(entry)
		if c.memory.Len() > before {
			loaded++
		}
	}
	c.logger.Debug("cache warmed from store", "entries", len(entries), "loaded", loaded)
}

// Get retrieves results from memory
func (c *Layered) Get(query string) ([]model.SearchResult, bool) {
	return c.memory.Get(query)
}

// Lookup retrieves an entry from memory
func (c *Layered) Lookup(query string) (Entry, bool) {
	return c.memory.Lookup(query)
}

// Put stores results in memory and flushes them to the store
func (c *Layered) Put(query string, results []model.SearchResult) {
	c.Insert(Entry{
		Query:     query,
		Results:   results,
		Requested: len(results),
	})
}

// Insert stores an entry in memory and flushes it to the store
func (c *Layered) Insert(entry Entry) {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = c.memory.now()
	}
	entry.Query = NormalizeKey(entry.Query)
	c.memory.Insert(entry)

	if err := c.store.Save(entry); err != nil {
		c.logger.Warn("cache flush failed", "query", entry.Query, "error", err)
	}
}

// Close closes the backing store
func (c *Layered) Close() error {
	return c.store.Close()
}
