package cachestore

import (
	"sort"
	"time"
)

// lowWaterFraction is how far below the budget eviction drains the store
// before stopping.
const lowWaterFraction = 0.8

// candidate is one entry considered for eviction, flattened out of its kind
// map.
type candidate struct {
	kind  string
	key   string
	size  int64
	score float64
	seq   uint64
}

// evictLocked enforces the byte budget. It ranks every resident entry by
// useCount + ageSeconds and removes entries from the lowest score upward
// until the total drops to the low-water mark. Ties are broken by insertion
// sequence, earliest first. Caller must hold s.mu.
//
// The score deliberately rewards age: an old entry that has been re-read can
// outlive a fresh never-reused one. This is a frequency-weighted
// approximation, not strict LRU.
func (s *Store) evictLocked() []string {
	target := int64(float64(s.maxBytes) * lowWaterFraction)
	now := time.Now()

	var cands []candidate
	for kind, m := range s.kinds {
		for key, e := range m {
			// Age is quantized to milliseconds so entries written within
			// the same instant tie exactly and fall back to seq order.
			age := float64(now.Sub(e.createdAt).Milliseconds()) / 1000.0
			cands = append(cands, candidate{
				kind:  kind,
				key:   key,
				size:  e.sizeBytes,
				score: float64(e.useCount) + age,
				seq:   e.seq,
			})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return cands[i].seq < cands[j].seq
	})

	var removed []string
	for _, c := range cands {
		if s.totalBytes <= target {
			break
		}
		delete(s.kinds[c.kind], c.key)
		s.totalBytes -= c.size
		removed = append(removed, c.key)
		if s.onEvict != nil {
			s.onEvict(c.kind, c.key)
		}
	}
	return removed
}
