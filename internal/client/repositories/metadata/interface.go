// Package metadata is a small key/value table in the local client database.
// The credential store and the identity salt live here.
package metadata

import "context"

// Repository stores opaque values under string keys.
// Get returns (nil, nil) when the key does not exist.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all pairs atomically.
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, key string) error
	// DeleteMany removes all keys atomically. Missing keys are ignored.
	DeleteMany(ctx context.Context, keys ...string) error
	// List returns every pair whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
