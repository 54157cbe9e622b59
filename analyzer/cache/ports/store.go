package cacheports

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no value exists for a key.
var ErrNotFound = errors.New("cache: key not found")

// Store is the process-external key-value area that cache entries are persisted in.
// Values are opaque bytes; stores never interpret them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate keys under a prefix.
// Sweeping, clearing and stats need it; plain Get/Set caching does not.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalDeleter is implemented by stores that can delete a key only while it
// still holds an expected value. Sweeping uses it so a concurrent write is never lost.
type ConditionalDeleter interface {
	DeleteIf(ctx context.Context, key string, expected []byte) (bool, error)
}
