package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "veracity:v1:"

// BadgerStore persists cache entries in a Badger key-value database, one key per query.
// Badger's own TTL removes entries once they can no longer be served.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
// An empty dir opens an in-memory database.
func OpenBadgerStore(dir string, ttl time.Duration, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db, ttl: ttl, logger: logger}, nil
}

// Load iterates all stored entries, skipping values that fail to decode
func (s *BadgerStore) Load() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				s.logger.Warn("skipping corrupt cache entry", "key", string(item.Key()), "error", err)
				continue
			}
			if NormalizeKey(entry.Query) == "" || entry.InsertedAt.IsZero() {
				s.logger.Warn("skipping incomplete cache entry", "key", string(item.Key()))
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate badger store: %w", err)
	}

	return entries, nil
}

// Save writes one entry
func (s *BadgerStore) Save(entry Entry) error {
	entry.Query = NormalizeKey(entry.Query)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(badgerKeyPrefix+entry.Query), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
