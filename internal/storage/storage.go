package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore holds uploaded document bytes addressed by key.
type ObjectStore interface {
	// Put writes data under key. Keys are content addressed, so an existing
	// object is left untouched and Put returns nil.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
