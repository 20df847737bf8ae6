// Package storage is the object-storage gateway: path-addressed writes,
// server-side copies, and short-lived presigned access URLs.
package storage

import (
	"context"
	"io"
	"time"
)

// PutOptions carries per-object write metadata.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Gateway abstracts the blob store.
type Gateway interface {
	// Put writes an object. Implementations retry transient failures.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error

	// Copy performs a server-side copy between keys.
	Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error

	// Remove deletes an object. Removing a missing object is not an error.
	Remove(ctx context.Context, key string) error

	// Fetch opens an object for reading.
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignedURL mints a fresh time-limited access URL for an object.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
