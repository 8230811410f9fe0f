// Package errors provides sentinel errors and error types for the chessagg
// ingest pipeline. It defines one sentinel per error kind named in the
// aggregator's error-handling design, plus a structured RunError that
// preserves month/URL context while still supporting errors.Is() and
// errors.As().
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the error kinds recognized by the pipeline.
// Use these with errors.Is() to check for a specific kind.
var (
	// ErrIO indicates a byte-source read failure (local file or HTTP body).
	ErrIO = errors.New("io error")

	// ErrDecompress indicates the compressed stream could not be decoded.
	ErrDecompress = errors.New("decompress error")

	// ErrFrame indicates the framer could not delimit a game record.
	ErrFrame = errors.New("frame error")

	// ErrParse indicates a per-field parse failure (recovered by defaulting).
	ErrParse = errors.New("parse error")

	// ErrConfig indicates invalid or missing configuration.
	ErrConfig = errors.New("config error")

	// ErrDB indicates a store connection, transaction, or constraint failure.
	ErrDB = errors.New("db error")

	// ErrCancel indicates the run was aborted by a cancellation signal.
	ErrCancel = errors.New("cancelled")
)

// RunError wraps an error with ingest-run context: which month and source
// were being processed, and which error kind it falls under. It implements
// error and supports unwrapping via errors.Is()/errors.As() through both
// the underlying error and the kind sentinel.
type RunError struct {
	Err    error  // The underlying error.
	Kind   error  // One of the sentinels above.
	Month  string // Month label, e.g. "2013-01" (empty if not yet known).
	Source string // Source URL or file path, if known.
}

// Error returns a formatted message including all available context.
func (e *RunError) Error() string {
	var parts []string

	if e.Month != "" {
		parts = append(parts, fmt.Sprintf("month %s", e.Month))
	}
	if e.Source != "" {
		parts = append(parts, e.Source)
	}

	context := strings.Join(parts, ", ")

	if e.Err != nil {
		if context != "" {
			return fmt.Sprintf("%s: %v", context, e.Err)
		}
		return e.Err.Error()
	}
	return context
}

// Unwrap exposes both the underlying error and the error kind so that
// errors.Is(err, errors.ErrDB) and errors.Is(err, someSpecificCause) both
// work through the wrapper.
func (e *RunError) Unwrap() []error {
	if e.Kind != nil {
		return []error{e.Err, e.Kind}
	}
	return []error{e.Err}
}

// Wrap adds context to an error while preserving it for errors.Is()/errors.As().
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf adds formatted context to an error while preserving it for
// errors.Is()/errors.As().
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}
