// Package store keeps user data durable across restarts. Each list is
// re-serialized in full to a keyed blob on every mutation.
package store

import (
	"context"
	"fmt"
)

const (
	KeyNotes     = "voznote_data"
	KeyFavorites = "sophia_favorites"
)

// BlobStore is durable keyed storage. Get returns nil data when the key is absent.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Open returns the blob backend named by driver ("sqlite" or "file").
func Open(driver, path string) (BlobStore, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(path)
	case "file":
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
