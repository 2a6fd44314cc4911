package cache

import (
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Cache defines the interface for caching search results by query
type Cache interface {
	// Get returns the results stored for query, or false on a miss or expired entry
	Get(query string) ([]model.SearchResult, bool)

	// Put stores results for query, replacing any previous entry
	Put(query string, results []model.SearchResult)

	// Lookup returns the full entry for query
	Lookup(query string) (Entry, bool)

	// Insert stores a full entry. Entries already past their TTL are ignored.
	Insert(entry Entry)
}

// Entry is one cached search: normalized query, ranked results and insertion time
type Entry struct {
	Query      string               `json:"query"`
	Results    []model.SearchResult `json:"results"`
	Requested  int                  `json:"requested"`   // Result count the entry was fetched with
	InsertedAt time.Time            `json:"inserted_at"` // Age is measured from here
}

// Covers reports whether the entry can answer a request for count results
func (e Entry) Covers(count int) bool {
	return e.Requested <= 0 || count <= e.Requested
}

// Store is an optional durable backing store for cache entries
type Store interface {
	// Load returns all readable entries. Corrupt entries are skipped, not returned as errors.
	Load() ([]Entry, error)

	// Save persists a single entry
	Save(entry Entry) error

	// Close releases store resources
	Close() error
}

// NormalizeKey case-folds and trims a query so equivalent queries share one entry
func NormalizeKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
