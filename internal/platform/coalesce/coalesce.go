// Package coalesce deduplicates concurrent in-flight fetches for an
// identical resource key.
package coalesce

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Key builds a coalescing key. The kind is part of the key so a markup load
// and a data load for the same logical source never share a flight.
func Key(kind, source string) string {
	return kind + ":" + source
}

// Group coalesces concurrent calls sharing a key onto a single execution.
// The zero value is ready to use.
type Group struct {
	sf singleflight.Group
}

// Do executes fn for key, or joins an execution already in flight for it.
// Every joined caller observes the same value or the same error; the
// in-flight registration is dropped when fn returns, regardless of outcome.
//
// A caller whose ctx ends detaches immediately with the ctx error. The
// shared flight keeps running so other waiters are unaffected.
//
// The returned bool reports whether the result was shared with at least one
// other caller.
func (g *Group) Do(ctx context.Context, key string, fn func() (any, error)) (any, bool, error) {
	ch := g.sf.DoChan(key, fn)
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
