package loader

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/park-jun-woo/aits-loader/internal/platform/observability"
)

// batchResourceID labels aggregate progress events.
const batchResourceID = "batch"

// BatchResult is the outcome of one batch load. Failures appear in Errors
// keyed by source; every other descriptor's value appears in Results.
type BatchResult struct {
	Results  map[string]any
	Errors   map[string]error
	Progress LoadingProgress
}

// Batch loads every descriptor concurrently and never fails as a whole:
// per-resource errors are collected into the result instead of aborting
// sibling loads. There is deliberately no concurrency cap; callers with very
// large manifests should use Preload.
//
// onProgress, when non-nil, receives the aggregate progress on every
// per-resource update. A failed resource counts as fully loaded so the
// aggregate still reaches 1.
func (l *Loader) Batch(ctx context.Context, descriptors []Descriptor, onProgress ProgressFunc) *BatchResult {
	res := &BatchResult{
		Results:  make(map[string]any, len(descriptors)),
		Errors:   make(map[string]error),
		Progress: LoadingProgress{ResourceID: batchResourceID},
	}
	if len(descriptors) == 0 {
		return res
	}

	ctx, span := l.tracer.StartSpan(ctx, "loader.Batch",
		attribute.Int("resources", len(descriptors)),
	)
	defer func() { observability.EndSpan(span, nil) }()

	var mu sync.Mutex
	perSource := make(map[string]LoadingProgress, len(descriptors))

	aggregate := func() LoadingProgress {
		agg := LoadingProgress{ResourceID: batchResourceID}
		for _, p := range perSource {
			agg.Loaded += p.Loaded
			agg.Total += p.Total
			agg.Progress += p.Progress
		}
		// Sources that have not reported yet count as zero.
		agg.Progress /= float64(len(descriptors))
		return agg
	}

	update := func(source string, p LoadingProgress) {
		mu.Lock()
		perSource[source] = p
		agg := aggregate()
		res.Progress = agg
		mu.Unlock()

		if onProgress != nil {
			onProgress(agg)
		}
	}

	var wg sync.WaitGroup
	for _, d := range descriptors {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()

			var o LoadOptions
			if d.Options != nil {
				o = *d.Options
			}
			callerProgress := o.OnProgress
			o.OnProgress = func(p LoadingProgress) {
				if callerProgress != nil {
					callerProgress(p)
				}
				update(d.Source, p)
			}

			value, err := l.Load(ctx, d.Kind, d.Source, &o)

			mu.Lock()
			if err != nil {
				res.Errors[d.Source] = err
			} else {
				res.Results[d.Source] = value
			}
			mu.Unlock()

			// Completion pins this source at 1, so the aggregate converges
			// even when the resource failed or never streamed.
			mu.Lock()
			prev, reported := perSource[d.Source]
			mu.Unlock()
			if !reported || prev.Progress < 1 {
				update(d.Source, LoadingProgress{
					Loaded:     1,
					Total:      1,
					Progress:   1,
					ResourceID: d.Source,
				})
			}
		}()
	}
	wg.Wait()

	l.metrics.RecordBatch(ctx, len(descriptors), len(res.Errors))
	if len(res.Errors) > 0 {
		l.logger.WithTrace(ctx).Warn("batch completed with failures",
			"resources", len(descriptors), "failures", len(res.Errors))
	}
	return res
}
