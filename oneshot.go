package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park-jun-woo/aits-loader/internal/platform/coalesce"
)

// Injector performs the side effect of making a script or stylesheet active,
// and undoes it on cancellation. The loader only tracks idempotence and
// cancellation around it.
type Injector interface {
	// Inject activates the resource at url. It should honor ctx.
	Inject(ctx context.Context, kind Kind, url string) error

	// Remove undoes a previous Inject for url.
	Remove(kind Kind, url string) error
}

// loadOnce performs an idempotent side-effecting load. A URL already in the
// loaded set resolves immediately. The URL joins the set only on success, so
// a failed load can be retried. Cancellation before completion removes the
// injected artifact and leaves the set untouched.
func (l *Loader) loadOnce(ctx context.Context, kind Kind, url string, _ LoadOptions) error {
	if l.injector == nil {
		return ErrNoInjector
	}

	if l.isLoaded(url) {
		return nil
	}

	start := time.Now()
	key := coalesce.Key(string(kind), url)
	_, _, err := l.flights.Do(ctx, key, func() (any, error) {
		// A racing caller may have completed while we queued.
		if l.isLoaded(url) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, l.cancelOnce(url, start, ctx.Err())
		}

		if err := l.injector.Inject(ctx, kind, url); err != nil {
			if ctx.Err() != nil {
				// The injection may have partially landed; undo it.
				if rerr := l.injector.Remove(kind, url); rerr != nil {
					l.logger.Warn("failed to undo cancelled injection", "url", url, "error", rerr)
				}
				return nil, l.cancelOnce(url, start, ctx.Err())
			}
			return nil, fmt.Errorf("loader: injecting %s %s: %w", kind, url, err)
		}

		// Cancelled between injection and commit: roll back rather than
		// recording a load the caller thinks never happened.
		if ctx.Err() != nil {
			if rerr := l.injector.Remove(kind, url); rerr != nil {
				l.logger.Warn("failed to undo cancelled injection", "url", url, "error", rerr)
			}
			return nil, l.cancelOnce(url, start, ctx.Err())
		}

		l.loadedMu.Lock()
		l.loaded[url] = struct{}{}
		l.loadedMu.Unlock()

		l.metrics.RecordInjection(ctx, string(kind))
		l.logger.WithTrace(ctx).Debug("injected resource", "kind", string(kind), "url", url)
		return nil, nil
	})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		var ce *CancelError
		if !errors.As(err, &ce) {
			err = l.cancelOnce(url, start, err)
		}
	}
	return err
}

func (l *Loader) isLoaded(url string) bool {
	l.loadedMu.Lock()
	defer l.loadedMu.Unlock()
	_, ok := l.loaded[url]
	return ok
}

func (l *Loader) cancelOnce(url string, start time.Time, cause error) error {
	return &CancelError{
		URL:     url,
		Elapsed: time.Since(start),
		Timeout: errors.Is(cause, context.DeadlineExceeded),
		Err:     cause,
	}
}
