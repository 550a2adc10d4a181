// Package store persists the session namespace across process restarts.
//
// The stores offer single-key operations only. The session service orders its
// writes so that a crash between two of them fails toward "logged out".
package store

import "context"

// Store is a durable string key/value map.
//
// Error Contract:
//   - Get returns sentinel.ErrNotFound (wrapped) when the key is absent
//   - Delete of an absent key is not an error
//   - infrastructure failures are returned wrapped with context
type Store interface {
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, key Key, value string) error
	Delete(ctx context.Context, key Key) error
	// Keys lists every key currently stored, including keys written by other
	// components sharing the store.
	Keys(ctx context.Context) ([]Key, error)
}
