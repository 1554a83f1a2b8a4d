package reference

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of distinct (directory, filter) keys kept.
const DefaultCacheSize = 16

// Store caches loaded reference sets per (absolute directory, action filter).
// It is safe for concurrent use. Cached slices are shared between callers and
// must be treated as read-only.
type Store struct {
	cache  *lru.Cache[string, []Sequence]
	group  singleflight.Group
	logger *slog.Logger
}

// NewStore creates a Store holding at most size reference sets.
func NewStore(size int, logger *slog.Logger) (*Store, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, []Sequence](size)
	if err != nil {
		return nil, fmt.Errorf("create reference cache: %w", err)
	}
	return &Store{cache: cache, logger: logger}, nil
}

// Load returns the reference set for dir filtered by actions, loading it from
// disk on first use. Concurrent misses on one key share a single load, and a
// failed load leaves the cache untouched.
func (s *Store) Load(dir string, actions []string) ([]Sequence, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve reference directory: %w", err)
	}
	filter := NormalizeActions(actions)
	key := cacheKey(abs, filter)

	if refs, ok := s.cache.Get(key); ok {
		return refs, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		if refs, ok := s.cache.Get(key); ok {
			return refs, nil
		}
		refs, err := LoadDir(abs, filter)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, refs)
		s.logger.Info("loaded reference sequences", "dir", abs, "actions", filterLabel(filter), "count", len(refs))
		return refs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("shared reference load", "key", key)
	}
	return v.([]Sequence), nil
}

// Len returns the number of cached reference sets.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Purge drops every cached reference set.
func (s *Store) Purge() {
	s.cache.Purge()
}

func cacheKey(abs string, filter []string) string {
	return abs + "\x00" + filterLabel(filter)
}

func filterLabel(filter []string) string {
	if len(filter) == 0 {
		return "all"
	}
	return strings.Join(filter, ",")
}
