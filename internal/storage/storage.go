package storage

import (
	"context"
	"errors"
)

var ErrEmptyObject = errors.New("storage object is empty")

// Gateway is the object-storage boundary the pipeline talks to. Keys are
// opaque paths inside a single bucket.
type Gateway interface {
	// DownloadTo fetches the object at key into the local file at path.
	// Missing objects and zero-length bodies are errors.
	DownloadTo(ctx context.Context, key, path string) error

	// PutFile uploads the local file at path to key.
	PutFile(ctx context.Context, key, path, contentType string) error

	// PublicURL returns the externally reachable URL for a key.
	PublicURL(key string) string
}
