// Package loader implements the resource loading and caching layer of the
// AITS UI framework: a fetcher for markup, structured data, scripts and
// stylesheets that deduplicates concurrent requests, tracks byte-level
// progress, enforces a memory budget with score-based eviction, and
// tolerates partial failure in batched loads.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/park-jun-woo/aits-loader/internal/platform/cachestore"
	"github.com/park-jun-woo/aits-loader/internal/platform/coalesce"
	"github.com/park-jun-woo/aits-loader/internal/platform/observability"
)

// Deps are the loader's external collaborators. Every field is optional
// except Injector, which is required before any script/style load.
type Deps struct {
	// Transport issues GET requests. Defaults to an *http.Client with the
	// configured timeout.
	Transport Transport

	// Injector performs the side effect of activating a script or
	// stylesheet.
	Injector Injector

	// Logger overrides the logger built from config.
	Logger *slog.Logger
}

// Loader is the resource loading and caching facade. It is safe for many
// concurrent callers issuing overlapping requests.
type Loader struct {
	cfg       *Config
	store     *cachestore.Store
	flights   coalesce.Group
	transport Transport
	injector  Injector
	userAgent string

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.TracerProvider

	progress progressHub

	// loaded is the set of absolute URLs already injected by the one-shot
	// loader. Append-only except on Close.
	loadedMu sync.Mutex
	loaded   map[string]struct{}

	closeOnce sync.Once
}

// CacheStats is a snapshot of cache occupancy.
type CacheStats struct {
	SizeBytes     int64
	EntriesByKind map[Kind]int
}

// New creates a Loader. A nil cfg uses DefaultConfig.
func New(cfg *Config, deps Deps) (*Loader, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Loader{
		cfg:       cfg,
		injector:  deps.Injector,
		userAgent: cfg.HTTP.UserAgent,
		loaded:    make(map[string]struct{}),
	}

	if deps.Logger != nil {
		l.logger = &observability.Logger{Logger: deps.Logger}
	} else {
		l.logger = observability.NewLogger(
			cfg.Observability.Logging.Level,
			cfg.Observability.Logging.Format,
		)
	}

	metrics, err := observability.NewMetrics("aits-loader", cfg.Observability.Metrics.Enabled)
	if err != nil {
		return nil, err
	}
	l.metrics = metrics

	tracer, err := observability.NewTracerProvider(
		context.Background(),
		"aits-loader",
		cfg.Observability.Tracing.Endpoint,
		cfg.Observability.Tracing.Enabled,
	)
	if err != nil {
		return nil, err
	}
	l.tracer = tracer

	l.store = cachestore.New(cachestore.Config{
		MaxBytes:      cfg.Cache.MaxBytes,
		MaxAge:        cfg.Cache.MaxAge,
		SweepInterval: cfg.Cache.SweepInterval,
		OnEvict: func(kind, key string) {
			l.metrics.RecordEviction(context.Background(), kind)
			l.logger.Debug("evicted cache entry", "kind", kind, "key", key)
		},
	})

	if deps.Transport != nil {
		l.transport = deps.Transport
	} else {
		l.transport = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	return l, nil
}

// Load fetches one resource. Results for markup and data kinds are cached;
// script and style kinds route to the one-shot side-effect loader and return
// a nil value.
//
// Concurrent loads for the same (kind, source) share a single underlying
// fetch. Cancellation is per-caller via ctx.
func (l *Loader) Load(ctx context.Context, kind Kind, source string, opts *LoadOptions) (any, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var o LoadOptions
	if opts != nil {
		o = *opts
	}

	ctx, span := l.tracer.StartSpan(ctx, "loader.Load",
		attribute.String("kind", string(kind)),
		attribute.String("source", source),
	)
	var loadErr error
	defer func() { observability.EndSpan(span, loadErr) }()

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	if kind.SideEffect() {
		loadErr = l.loadOnce(ctx, kind, source, o)
		return nil, loadErr
	}

	if !o.NoCache {
		if v, err := l.store.Get(string(kind), source); err == nil {
			l.metrics.RecordCacheHit(ctx, string(kind))
			l.logger.WithTrace(ctx).Debug("cache hit", "kind", string(kind), "source", source)
			return v, nil
		} else if !errors.Is(err, cachestore.ErrNotFound) {
			loadErr = err
			return nil, loadErr
		}
		l.metrics.RecordCacheMiss(ctx, string(kind))
	}

	start := time.Now()
	key := coalesce.Key(string(kind), source)
	value, shared, err := l.flights.Do(ctx, key, func() (any, error) {
		v, err := l.fetchWithProgress(ctx, kind, source, o)
		if err != nil {
			return nil, err
		}
		if !o.NoCache {
			if err := l.store.Set(string(kind), source, v); err != nil {
				// The value is still usable; only the cache write failed.
				l.logger.WithTrace(ctx).Warn("cache write failed",
					"kind", string(kind), "source", source, "error", err)
			} else {
				l.metrics.SetCacheSize(ctx, l.store.Stats().SizeBytes)
			}
		}
		return v, nil
	})
	if shared {
		l.metrics.RecordCoalesced(ctx, string(kind))
	}
	if err != nil {
		// A waiter detached by its own context reports cancellation, not
		// the flight's outcome.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			var ce *CancelError
			if !errors.As(err, &ce) {
				err = &CancelError{
					URL:     source,
					Elapsed: time.Since(start),
					Timeout: errors.Is(err, context.DeadlineExceeded),
					Err:     err,
				}
			}
		}
		loadErr = err
		return nil, loadErr
	}
	return value, nil
}

// Invalidate removes the cached value for source across all value-carrying
// kinds. It reports whether anything was removed.
func (l *Loader) Invalidate(source string) bool {
	removed := false
	for _, kind := range []Kind{KindMarkup, KindData} {
		if l.store.Invalidate(string(kind), source) {
			removed = true
		}
	}
	return removed
}

// Clear drops cached entries older than maxAge; a non-positive maxAge drops
// everything. The one-shot loaded-URL set is not affected.
func (l *Loader) Clear(maxAge time.Duration) {
	l.store.Clear(maxAge)
	l.metrics.SetCacheSize(context.Background(), l.store.Stats().SizeBytes)
}

// GetCacheStats returns current cache occupancy.
func (l *Loader) GetCacheStats() CacheStats {
	st := l.store.Stats()
	out := CacheStats{
		SizeBytes:     st.SizeBytes,
		EntriesByKind: make(map[Kind]int, len(st.EntriesByKind)),
	}
	for kind, n := range st.EntriesByKind {
		out.EntriesByKind[Kind(kind)] = n
	}
	return out
}

// AddProgressListener registers fn for progress events from every load. The
// returned function removes the listener.
func (l *Loader) AddProgressListener(fn ProgressFunc) (remove func()) {
	return l.progress.add(fn)
}

// MetricsHandler exposes the Prometheus scrape endpoint for the loader's
// metrics.
func (l *Loader) MetricsHandler() http.Handler {
	return l.metrics.Handler()
}

// Close stops the background sweep, flushes tracing, and resets the
// one-shot loaded-URL set. The loader must not be used afterwards.
func (l *Loader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.store.Close()
		if terr := l.tracer.Shutdown(context.Background()); terr != nil && err == nil {
			err = terr
		}
		l.loadedMu.Lock()
		l.loaded = make(map[string]struct{})
		l.loadedMu.Unlock()
	})
	return err
}
