package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates the requested entry was not found in the backend
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidIdentifier indicates an entry identifier failed the validity check
	ErrInvalidIdentifier = errors.New("invalid cache entry identifier")

	// ErrInvalidTag indicates a tag failed the validity check
	ErrInvalidTag = errors.New("invalid cache tag")

	// ErrBackendUnavailable indicates the storage backend could not serve a call
	ErrBackendUnavailable = errors.New("cache backend unavailable")

	// ErrMalformedEntry indicates stored bytes could not be parsed back into a response
	ErrMalformedEntry = errors.New("malformed cache entry")
)

// BackendError wraps a failure returned by a Backend.
type BackendError struct {
	Op         string // "get", "set", "has", "remove", "find_by_tag"
	Identifier string // entry identifier or tag the call was made for
	Err        error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("cache backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache backend %s %q: %v", e.Op, e.Identifier, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports every BackendError as ErrBackendUnavailable.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func backendError(op, identifier string, err error) error {
	CacheErrors.WithLabelValues(op).Inc()
	return &BackendError{Op: op, Identifier: identifier, Err: err}
}
