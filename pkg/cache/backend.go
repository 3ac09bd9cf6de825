package cache

import (
	"context"
	"time"
)

// Backend is a tagged key/value store with per-entry expiry.
//
// Implementations must be safe for concurrent use and Get, Set and Has must
// be atomic per identifier. A ttl of 0 means the entry never expires.
type Backend interface {
	// Get returns the stored bytes and whether the entry exists.
	Get(ctx context.Context, id string) ([]byte, bool, error)

	// Set stores data under id, replacing any previous entry and its tags.
	Set(ctx context.Context, id string, data []byte, tags []string, ttl time.Duration) error

	// Has reports whether an unexpired entry exists.
	Has(ctx context.Context, id string) (bool, error)

	// Remove deletes an entry. Removing a missing entry is not an error.
	Remove(ctx context.Context, id string) error

	// FindIdentifiersByTag returns the identifiers of all unexpired entries carrying tag.
	FindIdentifiersByTag(ctx context.Context, tag string) ([]string, error)
}
