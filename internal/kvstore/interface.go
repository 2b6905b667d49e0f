// Package kvstore implements the durable key-value persistence used for the
// recording index and the upload queue. Each value is a complete JSON
// document; every Set replaces the whole value, so readers observe either
// the previous snapshot or the new one, never a torn record.
package kvstore

import "context"

// Store is a durable key-value document store.
type Store interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with their values.
	List(ctx context.Context) (map[string][]byte, error)

	// Clear removes every key.
	Clear(ctx context.Context) error
}
