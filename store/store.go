// Package store defines the object store contract the batch pipeline
// uploads through. Backends live in aws/s3 and store/minio.
package store

import (
	"context"
	"io"
)

// PutInput describes one object to store.
type PutInput struct {
	Bucket string
	Key    string

	// Body is read exactly once unless the backend rewinds it for a retry.
	Body io.Reader

	// Size is the exact number of bytes Body yields
	Size int64

	ContentType string
	Metadata    map[string]string
}

// PutOutput is what the store reports for a stored object.
type PutOutput struct {
	ETag      string
	VersionID string
}

// Store is a remote object store.
//
// Implementations classify failures with the sentinels of the errors
// package: a request that never reached the store wraps ErrConnection,
// rejected credentials wrap ErrAccessDenied or ErrInvalidCredentials.
type Store interface {
	// ValidateIdentity checks that the configured credentials are accepted.
	ValidateIdentity(ctx context.Context) error

	// EnsureBucket creates bucket if needed. A bucket that already exists
	// is not an error.
	EnsureBucket(ctx context.Context, bucket string) error

	// Put stores one object.
	Put(ctx context.Context, in *PutInput) (*PutOutput, error)
}
