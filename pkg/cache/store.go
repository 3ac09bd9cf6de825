package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Store persists responses in a Backend using the serialized entry format.
// It validates identifiers and tags but holds no caching policy.
type Store struct {
	backend Backend
}

// NewStore creates a new entry store on top of backend.
func NewStore(backend Backend) *Store {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	return &Store{
		backend: backend,
	}
}

// Get retrieves and decodes the entry stored under id.
// Returns ErrCacheMiss if the backend has no such entry.
func (s *Store) Get(ctx context.Context, id string) (*Response, error) {
	if !IsValidIdentifier(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}

	data, found, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, backendError("get", id, err)
	}
	if !found {
		return nil, ErrCacheMiss
	}

	resp, err := UnmarshalResponse(data)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("decode entry %q: %w", id, err)
	}
	return resp, nil
}

// Set serializes resp and stores it under id with the given tags.
// A ttl of 0 stores the entry without expiry.
func (s *Store) Set(ctx context.Context, id string, resp *Response, tags []string, ttl time.Duration) error {
	if !IsValidIdentifier(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	for _, tag := range tags {
		if !IsValidTag(tag) {
			return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}
	}
	if ttl < 0 {
		return fmt.Errorf("negative ttl %s for entry %q", ttl, id)
	}

	data, err := MarshalResponse(resp)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", id, err)
	}

	if err := s.backend.Set(ctx, id, data, tags, ttl); err != nil {
		return backendError("set", id, err)
	}

	StoredBytes.Add(float64(len(data)))
	return nil
}

// Has reports whether an entry is stored under id.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	if !IsValidIdentifier(id) {
		return false, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}

	found, err := s.backend.Has(ctx, id)
	if err != nil {
		return false, backendError("has", id, err)
	}
	return found, nil
}

// Remove deletes the entry stored under id.
func (s *Store) Remove(ctx context.Context, id string) error {
	if !IsValidIdentifier(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}

	if err := s.backend.Remove(ctx, id); err != nil {
		return backendError("remove", id, err)
	}
	return nil
}

// GetByTag returns all entries carrying tag, keyed by identifier.
// Entries that vanish between the tag lookup and the fetch are skipped.
func (s *Store) GetByTag(ctx context.Context, tag string) (map[string]*Response, error) {
	ids, err := s.identifiersByTag(ctx, tag)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*Response, len(ids))
	for _, id := range ids {
		resp, err := s.Get(ctx, id)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries[id] = resp
	}
	return entries, nil
}

// InvalidateTag removes every entry carrying tag and returns how many were removed.
func (s *Store) InvalidateTag(ctx context.Context, tag string) (int, error) {
	ids, err := s.identifiersByTag(ctx, tag)
	if err != nil {
		return 0, err
	}

	for i, id := range ids {
		if err := s.backend.Remove(ctx, id); err != nil {
			return i, backendError("remove", id, err)
		}
	}
	return len(ids), nil
}

// SetVary records the Vary header names declared for r's URI.
// An empty list removes any previous record.
func (s *Store) SetVary(ctx context.Context, r *http.Request, names []string, ttl time.Duration) error {
	id := VaryIdentifier(r)
	if len(names) == 0 {
		if err := s.backend.Remove(ctx, id); err != nil {
			return backendError("remove", id, err)
		}
		return nil
	}

	if err := s.backend.Set(ctx, id, []byte(strings.Join(names, ", ")), nil, ttl); err != nil {
		return backendError("set", id, err)
	}
	return nil
}

// Vary returns the Vary header names recorded for r's URI, or nil.
func (s *Store) Vary(ctx context.Context, r *http.Request) ([]string, error) {
	id := VaryIdentifier(r)
	data, found, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, backendError("get", id, err)
	}
	if !found {
		return nil, nil
	}

	header := http.Header{"Vary": []string{string(data)}}
	return ListHeader(header, "Vary"), nil
}

func (s *Store) identifiersByTag(ctx context.Context, tag string) ([]string, error) {
	if !IsValidTag(tag) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}

	ids, err := s.backend.FindIdentifiersByTag(ctx, tag)
	if err != nil {
		return nil, backendError("find_by_tag", tag, err)
	}
	return ids, nil
}
