// Package cache provides the shared TTL key-value abstraction used for
// replay records, idempotency records and session state.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("cache: key not found")
	// ErrUnavailable indicates the cache backend could not be reached.
	// Callers that gate security checks on the cache must fail closed
	// when they see this error.
	ErrUnavailable = errors.New("cache: backend unavailable")
)

// Store is a TTL key-value store. SetNX is the single synchronization
// primitive in the system: it must be atomic so that two concurrent
// requests can never both observe themselves as the first writer for
// the same key.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes key=value with the given TTL, overwriting any existing value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes key=value with the given TTL only if the key does not
	// already exist. It reports whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Expire resets the TTL of an existing key. Expiring a missing key is
	// a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
