package backend

import "errors"

// TransientError marks a write failure that is worth retrying: connectivity
// loss, server errors, rate limiting. The batch writer keeps the batch and
// retries with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix: a rejected
// payload, bad credentials, a missing table. The batch writer drops the
// batch rather than retry forever.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is marked non-retryable. Unclassified
// errors are neither; callers treat those as transient.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
