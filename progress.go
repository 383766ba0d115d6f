package loader

import "sync"

// LoadingProgress is one byte-level progress report for a resource load.
// Progress stays within [0,1] and reaches exactly 1 at completion.
type LoadingProgress struct {
	Loaded     int64
	Total      int64
	Progress   float64
	ResourceID string
}

// ProgressFunc receives progress events. Callbacks run synchronously on the
// loading goroutine and should return quickly.
type ProgressFunc func(LoadingProgress)

// progressHub fans progress events out to globally registered listeners in
// registration order.
type progressHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []progressSub
}

type progressSub struct {
	id uint64
	fn ProgressFunc
}

func (h *progressHub) add(fn ProgressFunc) (remove func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, progressSub{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.subs {
			if sub.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// emit delivers p to the per-call callback first, then every global listener
// in registration order.
func (h *progressHub) emit(perCall ProgressFunc, p LoadingProgress) {
	if perCall != nil {
		perCall(p)
	}

	h.mu.RLock()
	subs := make([]progressSub, len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(p)
	}
}
