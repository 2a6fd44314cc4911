package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/veracity/internal/model"
)

// Memory is an in-process TTL cache backed by go-cache.
// Entries are immutable values, so concurrent Put calls are last-write-wins and never torn.
type Memory struct {
	items *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemory creates a memory cache. cleanupInterval controls the background sweep
// of expired items; lookups never return an expired entry regardless of the sweep.
func NewMemory(ttl time.Duration, cleanupInterval time.Duration) *Memory {
	return &Memory{
		items: gocache.New(ttl, cleanupInterval),
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTL returns the configured time-to-live
func (m *Memory) TTL() time.Duration {
	return m.ttl
}

// Get retrieves results for a query
func (m *Memory) Get(query string) ([]model.SearchResult, bool) {
	entry, ok := m.Lookup(query)
	if !ok {
		return nil, false
	}
	return entry.Results, true
}

// Put stores results for a query with the current time as insertion time
func (m *Memory) Put(query string, results []model.SearchResult) {
	m.Insert(Entry{
		Query:     query,
		Results:   results,
		Requested: len(results),
	})
}

// Lookup retrieves the full entry for a query
func (m *Memory) Lookup(query string) (Entry, bool) {
	val, found := m.items.Get(NormalizeKey(query))
	if !found {
		return Entry{}, false
	}
	entry := val.(Entry)

	// go-cache expiry runs on wall time; the age check here is what enforces the TTL
	if m.now().Sub(entry.InsertedAt) >= m.ttl {
		return Entry{}, false
	}

	entry.Results = model.CloneResults(entry.Results)
	return entry, true
}

// Insert stores an entry, keeping only the TTL remaining since its insertion time.
// Insertion times in the future are treated as now.
func (m *Memory) Insert(entry Entry) {
	now := m.now()
	if entry.InsertedAt.IsZero() || entry.InsertedAt.After(now) {
		entry.InsertedAt = now
	}
	remaining := m.ttl - now.Sub(entry.InsertedAt)
	if remaining <= 0 {
		return
	}

	entry.Query = NormalizeKey(entry.Query)
	entry.Results = model.CloneResults(entry.Results)
	if entry.Results == nil {
		entry.Results = []model.SearchResult{}
	}
	m.items.Set(entry.Query, entry, remaining)
}

// Len returns the number of stored items, including expired ones not yet swept
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Clear removes all entries
func (m *Memory) Clear() {
	m.items.Flush()
}
