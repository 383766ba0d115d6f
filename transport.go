package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchChunkSize is how much of the response body is read between progress
// reports.
const fetchChunkSize = 32 * 1024

// Transport issues the loader's GET requests. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// fetchWithProgress performs the network fetch for one resource, reporting
// byte-level progress along the way and decoding the payload per kind.
func (l *Loader) fetchWithProgress(ctx context.Context, kind Kind, source string, opts LoadOptions) (any, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("loader: building request for %s: %w", source, err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	if opts.Priority != "" {
		req.Header.Set("Priority", string(opts.Priority))
	}

	resp, err := l.transport.Do(req)
	if err != nil {
		l.metrics.RecordFetch(ctx, string(kind), "error", time.Since(start), 0)
		return nil, l.classifyFetchErr(source, start, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		l.metrics.RecordFetch(ctx, string(kind), "error", time.Since(start), 0)
		return nil, &TransportError{
			URL:        source,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	var body []byte
	if resp.ContentLength > 0 {
		body, err = l.readWithProgress(ctx, resp.Body, resp.ContentLength, source, opts.OnProgress)
	} else {
		// No declared total: skip incremental reporting and emit a single
		// terminal event once the payload is in.
		body, err = io.ReadAll(resp.Body)
		if err == nil {
			l.progress.emit(opts.OnProgress, LoadingProgress{
				Loaded:     1,
				Total:      1,
				Progress:   1,
				ResourceID: source,
			})
		}
	}
	if err != nil {
		l.metrics.RecordFetch(ctx, string(kind), "error", time.Since(start), 0)
		return nil, l.classifyFetchErr(source, start, err)
	}

	value, err := decodeBody(kind, source, body)
	if err != nil {
		l.metrics.RecordFetch(ctx, string(kind), "decode_error", time.Since(start), int64(len(body)))
		return nil, err
	}

	l.metrics.RecordFetch(ctx, string(kind), "success", time.Since(start), int64(len(body)))
	l.logger.WithTrace(ctx).Debug("fetched resource",
		"kind", string(kind),
		"source", source,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return value, nil
}

// readWithProgress streams the body in chunks, accumulating loaded bytes and
// emitting a progress event after every chunk. Chunks are concatenated in
// arrival order.
func (l *Loader) readWithProgress(ctx context.Context, body io.Reader, total int64, source string, onProgress ProgressFunc) ([]byte, error) {
	out := make([]byte, 0, total)
	buf := make([]byte, fetchChunkSize)
	var loaded int64

	for {
		n, err := body.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			loaded += int64(n)

			progress := float64(loaded) / float64(total)
			if progress > 1 {
				progress = 1
			}
			l.progress.emit(onProgress, LoadingProgress{
				Loaded:     loaded,
				Total:      total,
				Progress:   progress,
				ResourceID: source,
			})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		// Cancellation is observed at chunk boundaries.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	// A short or undeclared-length body still terminates at exactly 1.
	if loaded != total {
		l.progress.emit(onProgress, LoadingProgress{
			Loaded:     loaded,
			Total:      loaded,
			Progress:   1,
			ResourceID: source,
		})
	}
	return out, nil
}

// decodeBody converts the raw payload per the resource kind. Markup, script
// and style bodies are plain text; data bodies are parsed as JSON.
func decodeBody(kind Kind, source string, body []byte) (any, error) {
	switch kind {
	case KindMarkup, KindScript, KindStyle:
		return string(body), nil
	case KindData:
		var value any
		if err := json.Unmarshal(body, &value); err != nil {
			return nil, &DecodeError{URL: source, Kind: kind, Err: err}
		}
		return value, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// classifyFetchErr separates cancellation and timeout from plain transport
// failures.
func (l *Loader) classifyFetchErr(source string, start time.Time, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &CancelError{
			URL:     source,
			Elapsed: time.Since(start),
			Timeout: true,
			Err:     context.DeadlineExceeded,
		}
	case errors.Is(err, context.Canceled):
		return &CancelError{
			URL:     source,
			Elapsed: time.Since(start),
			Err:     context.Canceled,
		}
	default:
		return fmt.Errorf("loader: fetching %s: %w", source, err)
	}
}
