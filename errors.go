package loader

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownKind is returned for a load with an unrecognized resource kind.
var ErrUnknownKind = errors.New("loader: unknown resource kind")

// ErrNoInjector is returned for script/style loads when no injection
// collaborator was configured.
var ErrNoInjector = errors.New("loader: no injector configured")

// TransportError reports a non-success response status. The payload, if any,
// is discarded.
type TransportError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("loader: request for %s failed: %s", e.URL, e.Status)
}

// DecodeError reports a payload that arrived but could not be parsed for its
// declared kind. It is never converted into a fallback value.
type DecodeError struct {
	URL  string
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("loader: decoding %s as %s: %v", e.URL, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CancelError reports that a load was cancelled or timed out before
// completing. It wraps the underlying context error, so errors.Is against
// context.Canceled or context.DeadlineExceeded works.
type CancelError struct {
	URL     string
	Elapsed time.Duration
	Timeout bool
	Err     error
}

func (e *CancelError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("loader: load of %s timed out after %v", e.URL, e.Elapsed)
	}
	return fmt.Sprintf("loader: load of %s cancelled after %v", e.URL, e.Elapsed)
}

func (e *CancelError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is a cancellation or timeout, as opposed
// to a transport or decode failure.
func IsCancelled(err error) bool {
	var ce *CancelError
	return errors.As(err, &ce)
}

// IsTimeout reports whether err is specifically a timeout.
func IsTimeout(err error) bool {
	var ce *CancelError
	return errors.As(err, &ce) && ce.Timeout
}
