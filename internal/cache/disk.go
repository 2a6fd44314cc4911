package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const snapshotVersion = 1

// FileStore persists cache entries as a single JSON snapshot file.
// Every save rewrites the snapshot through a temp file and rename, so readers never see a torn file.
type FileStore struct {
	path    string
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]Entry
}

type snapshot struct {
	Version int               `json:"version"`
	Entries []json.RawMessage `json:"entries"`
}

// NewFileStore creates a snapshot store at path. Entries older than maxAge are pruned on save.
func NewFileStore(path string, maxAge time.Duration, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:    path,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
}

// Load reads the snapshot. A missing file is an empty cache; corrupt entries are skipped with a warning.
func (s *FileStore) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(snap.Entries))
	for i, raw := range snap.Entries {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn("skipping corrupt cache entry", "index", i, "error", err)
			continue
		}
		if NormalizeKey(entry.Query) == "" || entry.InsertedAt.IsZero() {
			s.logger.Warn("skipping incomplete cache entry", "index", i)
			continue
		}
		entry.Query = NormalizeKey(entry.Query)
		s.entries[entry.Query] = entry
		entries = append(entries, entry)
	}

	return entries, nil
}

// Save adds or replaces an entry and rewrites the snapshot
func (s *FileStore) Save(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Query = NormalizeKey(entry.Query)
	s.entries[entry.Query] = entry
	s.prune()

	return s.write()
}

// Close is a no-op; every save is already durable
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) prune() {
	if s.maxAge <= 0 {
		return
	}
	now := s.now()
	for key, entry := range s.entries {
		if now.Sub(entry.InsertedAt) >= s.maxAge {
			delete(s.entries, key)
		}
	}
}

func (s *FileStore) write() error {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	snap := snapshot{Version: snapshotVersion, Entries: make([]json.RawMessage, 0, len(keys))}
	for _, key := range keys {
		raw, err := json.Marshal(s.entries[key])
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		snap.Entries = append(snap.Entries, raw)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}
