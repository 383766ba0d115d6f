package loader

import (
	"context"
	"time"

	"github.com/park-jun-woo/aits-loader/internal/platform/worker"
)

// PreloadResult is the outcome of warming a single manifest entry.
type PreloadResult struct {
	Source   string
	Kind     Kind
	Duration time.Duration
	Err      error
}

// PreloadSummary aggregates a preload run.
type PreloadSummary struct {
	Results   []PreloadResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors reports whether any manifest entry failed to preload.
func (s *PreloadSummary) HasErrors() bool {
	return s.Errors > 0
}

// Preload warms the cache with a manifest of resources, typically at
// application startup. Unlike Batch it runs with a bounded number of
// workers, so large manifests do not fan out unboundedly. Failures are
// reported in the summary, never returned as an error.
func (l *Loader) Preload(ctx context.Context, manifest []Descriptor) *PreloadSummary {
	start := time.Now()
	summary := &PreloadSummary{
		Results: make([]PreloadResult, 0, len(manifest)),
	}
	if len(manifest) == 0 {
		summary.TotalTime = time.Since(start)
		return summary
	}

	preloadCtx, cancel := context.WithTimeout(ctx, l.cfg.Preload.Timeout)
	defer cancel()

	pool := worker.NewPool[PreloadResult](preloadCtx, l.cfg.Preload.Workers, len(manifest))
	defer pool.Close()

	jobs := make([]worker.Job[PreloadResult], 0, len(manifest))
	for _, d := range manifest {
		d := d
		jobs = append(jobs, worker.Job[PreloadResult]{
			ID: string(d.Kind) + ":" + d.Source,
			Run: func(jobCtx context.Context) (PreloadResult, error) {
				entryStart := time.Now()
				_, err := l.Load(jobCtx, d.Kind, d.Source, d.Options)
				return PreloadResult{
					Source:   d.Source,
					Kind:     d.Kind,
					Duration: time.Since(entryStart),
					Err:      err,
				}, err
			},
		})
	}

	for _, r := range pool.RunAll(jobs) {
		summary.Results = append(summary.Results, r.Value)
		if r.Value.Err != nil {
			summary.Errors++
		}
	}
	summary.TotalTime = time.Since(start)

	if summary.Errors > 0 {
		l.logger.Warn("preload completed with errors",
			"resources", len(manifest),
			"errors", summary.Errors,
			"duration_ms", summary.TotalTime.Milliseconds(),
		)
	} else {
		l.logger.Info("preload completed",
			"resources", len(manifest),
			"duration_ms", summary.TotalTime.Milliseconds(),
		)
	}
	return summary
}
