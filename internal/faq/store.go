package faq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dshills/ragroute/pkg/types"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidStore is returned when the FAQ file cannot be parsed
var ErrInvalidStore = errors.New("invalid faq store")

// Source provides the FAQ entries to match against
type Source interface {
	Entries(ctx context.Context) ([]types.FAQEntry, error)
}

// Store loads a JSON array of FAQ entries from disk on first use and keeps
// it for the life of the process. Concurrent first callers share one read.
// A failed load is not cached; the next call tries again.
type Store struct {
	path   string
	logger *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries []types.FAQEntry
	loaded  bool
}

// NewStore creates a store backed by the JSON file at path.
// An empty path yields an empty store.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Entries returns the cached entries, loading them on first use
func (s *Store) Entries(ctx context.Context) ([]types.FAQEntry, error) {
	s.mu.RLock()
	if s.loaded {
		entries := s.entries
		s.mu.RUnlock()
		return entries, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do("load", func() (interface{}, error) {
		s.mu.RLock()
		if s.loaded {
			entries := s.entries
			s.mu.RUnlock()
			return entries, nil
		}
		s.mu.RUnlock()

		entries, err := s.read()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries = entries
		s.loaded = true
		s.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.FAQEntry), nil
}

// Len reports how many entries are cached, zero before the first load
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) read() ([]types.FAQEntry, error) {
	if s.path == "" {
		return []types.FAQEntry{}, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("faq store not found, matching disabled", "path", s.path)
		return []types.FAQEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read faq store: %w", err)
	}

	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	s.logger.Info("faq store loaded", "path", s.path, "entries", len(entries))
	return entries, nil
}

// Parse decodes a JSON array of {"q","a","project_id"} objects
func Parse(data []byte) ([]types.FAQEntry, error) {
	var entries []types.FAQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStore, err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Question) == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty question", ErrInvalidStore, i)
		}
	}
	if entries == nil {
		entries = []types.FAQEntry{}
	}
	return entries, nil
}

// Static is a fixed in-memory Source
type Static []types.FAQEntry

// Entries returns the fixed entries
func (s Static) Entries(context.Context) ([]types.FAQEntry, error) {
	return s, nil
}
