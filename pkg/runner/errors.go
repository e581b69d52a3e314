// Copyright 2025 Certen Protocol

package runner

import "errors"

// fatalError marks a job step failure as deterministic: no amount of
// retrying will make it succeed, so the runner moves the job straight to
// failed_fatal instead of scheduling a backoff retry. Every other error
// returned from a step is treated as transient by default, matching §7's
// error taxonomy (only a named, deliberate subset of failures is fatal;
// everything else is assumed retryable).
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error { return &fatalError{err: err} }

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
