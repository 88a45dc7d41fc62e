package engine

import (
	"context"
	"time"
)

// Store is the key-value contract the Manager relies on. Implementations must
// make SetNX and Replace atomic, and attach the TTL in the same write.
type Store interface {
	// SetNX writes value under key with ttl only if key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the current value, found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
	// Replace overwrites key with value and ttl only if it currently holds old.
	Replace(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error)
}

// CompareAndDeleter is implemented by stores able to delete a key only while
// it still holds the given value. Release prefers it over Get and Delete.
type CompareAndDeleter interface {
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
