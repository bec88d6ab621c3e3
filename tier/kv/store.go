package kv

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs.
// Must be safe for concurrent use and must be byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set for
// the same key. Implementations must not prepend/append metadata, transcode, or
// otherwise mutate values.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 => no expiry). May ignore
	// cost or ttl if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Keys lists stored keys. It may include keys that disappear before the
	// caller looks at them.
	Keys(ctx context.Context) ([]string, error)

	// Len is the number of stored entries.
	Len(ctx context.Context) (int, error)

	// Clear drops every entry.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// ByteSizer is implemented by stores that know their memory footprint.
type ByteSizer interface {
	Bytes() int64
}
