package loader

import "time"

// Kind is the category of content being loaded. Each kind has its own cache
// map and decode rule.
type Kind string

const (
	// KindMarkup is template/HTML text, cached and returned as a string.
	KindMarkup Kind = "markup"
	// KindData is structured JSON, cached and returned decoded.
	KindData Kind = "data"
	// KindScript is executable code loaded once for its side effect.
	KindScript Kind = "script"
	// KindStyle is a stylesheet loaded once for its side effect.
	KindStyle Kind = "style"
)

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMarkup, KindData, KindScript, KindStyle:
		return true
	}
	return false
}

// SideEffect reports whether loading k produces no value, only an injection
// side effect.
func (k Kind) SideEffect() bool {
	return k == KindScript || k == KindStyle
}

// Priority is a transport hint forwarded with the request. The loader does
// not schedule by it.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// LoadOptions adjusts a single load. The zero value means: use the cache, no
// priority hint, no per-call progress callback, no extra timeout.
type LoadOptions struct {
	// NoCache bypasses the cache for both the read and the write.
	NoCache bool

	// Priority is forwarded to the transport as a request header hint.
	Priority Priority

	// OnProgress receives progress events for this call only, before any
	// globally registered listener.
	OnProgress ProgressFunc

	// Timeout bounds this load on top of the caller's context. Exceeding
	// it surfaces as a timeout-flavored CancelError.
	Timeout time.Duration
}

// Descriptor names one resource inside a batch or preload manifest.
type Descriptor struct {
	Kind    Kind
	Source  string
	Options *LoadOptions
}
