// Package cachestore implements the size-bounded, TTL-aware in-memory store
// backing the resource loader. Entries are grouped into one map per resource
// kind and accounted against a single global byte budget.
package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or has expired.
	ErrNotFound = errors.New("cachestore: key not found")
)

// Config holds cache store configuration.
type Config struct {
	// MaxBytes is the global byte budget across all kind maps.
	MaxBytes int64

	// MaxAge is the TTL after which an entry is treated as a miss.
	MaxAge time.Duration

	// SweepInterval is how often the background sweep reclaims expired
	// entries. Zero or negative disables the sweep; the store then relies
	// on lazy expiry during Get.
	SweepInterval time.Duration

	// OnEvict, if set, is invoked (outside any public operation result,
	// but under the store lock) for every entry removed by the eviction
	// manager. Used for metrics.
	OnEvict func(kind, key string)
}

// entry is the unit of storage. It is owned exclusively by its kind map and
// mutated only under the store lock.
type entry struct {
	value     any
	createdAt time.Time
	sizeBytes int64
	useCount  int64
	// seq is a monotonic insertion counter. Go maps do not preserve
	// insertion order, so the eviction tie-break carries it explicitly.
	seq uint64
}

// Store is a typed key->entry cache with one map per resource kind.
// All methods are safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	kinds      map[string]map[string]*entry
	totalBytes int64
	seq        uint64

	maxBytes int64
	maxAge   time.Duration
	onEvict  func(kind, key string)

	stopCh    chan struct{}
	closeOnce sync.Once
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	SizeBytes     int64
	EntriesByKind map[string]int
}

// New creates a store and, when configured, starts the background sweep.
func New(cfg Config) *Store {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}

	s := &Store{
		kinds:    make(map[string]map[string]*entry),
		maxBytes: cfg.MaxBytes,
		maxAge:   cfg.MaxAge,
		onEvict:  cfg.OnEvict,
		stopCh:   make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go s.sweep(cfg.SweepInterval)
	}

	return s
}

// Get retrieves a value. A hit increments the entry's use count. An entry
// older than MaxAge is removed on the spot and reported as a miss, so Get is
// a side-effecting read.
func (s *Store) Get(kind, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.kinds[kind]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}

	if time.Since(e.createdAt) > s.maxAge {
		delete(m, key)
		s.totalBytes -= e.sizeBytes
		return nil, ErrNotFound
	}

	e.useCount++
	return e.value, nil
}

// Set stores a value, replacing any previous entry for the key. The entry
// size is estimated from the serialized payload. If the write pushes the
// global size past the budget, the eviction manager runs before Set returns.
func (s *Store) Set(kind, key string, value any) error {
	size, err := EstimateSize(value)
	if err != nil {
		return fmt.Errorf("cachestore: estimate size for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.kinds[kind]
	if !ok {
		m = make(map[string]*entry)
		s.kinds[kind] = m
	}

	// Overwrites release the old entry's bytes first so the counter stays
	// an incremental running sum.
	if old, ok := m[key]; ok {
		s.totalBytes -= old.sizeBytes
	}

	s.seq++
	m[key] = &entry{
		value:     value,
		createdAt: time.Now(),
		sizeBytes: size,
		useCount:  0,
		seq:       s.seq,
	}
	s.totalBytes += size

	if s.totalBytes > s.maxBytes {
		s.evictLocked()
	}

	return nil
}

// Invalidate removes a single entry. It reports whether the key was present.
func (s *Store) Invalidate(kind, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.kinds[kind]
	if !ok {
		return false
	}
	e, ok := m[key]
	if !ok {
		return false
	}
	delete(m, key)
	s.totalBytes -= e.sizeBytes
	return true
}

// Clear removes entries older than maxAge across all kinds. A non-positive
// maxAge drops everything; this is the only operation allowed to rebuild the
// global counter from scratch.
func (s *Store) Clear(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxAge <= 0 {
		s.kinds = make(map[string]map[string]*entry)
		s.totalBytes = 0
		return
	}

	now := time.Now()
	for _, m := range s.kinds {
		for key, e := range m {
			if now.Sub(e.createdAt) > maxAge {
				delete(m, key)
				s.totalBytes -= e.sizeBytes
			}
		}
	}
}

// Stats returns current occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		SizeBytes:     s.totalBytes,
		EntriesByKind: make(map[string]int, len(s.kinds)),
	}
	for kind, m := range s.kinds {
		if len(m) > 0 {
			st.EntriesByKind[kind] = len(m)
		}
	}
	return st
}

// Close stops the background sweep. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// sweep periodically removes expired entries so memory is reclaimed even for
// keys that are never read again.
func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

// removeExpired drops every entry past its TTL, decrementing the counter
// entry by entry.
func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, m := range s.kinds {
		for key, e := range m {
			if now.Sub(e.createdAt) > s.maxAge {
				delete(m, key)
				s.totalBytes -= e.sizeBytes
			}
		}
	}
}

// EstimateSize computes the byte cost charged against the budget. Strings
// and byte slices are charged their raw length; anything else is charged the
// length of its JSON serialization. Serializing on every Set is a known cost
// for large structured payloads, carried over as-is.
func EstimateSize(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		return int64(len(v)), nil
	case []byte:
		return int64(len(v)), nil
	case json.RawMessage:
		return int64(len(v)), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return 0, err
		}
		return int64(len(b)), nil
	}
}
