// Package store defines the object store abstraction wheelport
// publishes through, along with the provider implementations:
// S3, Google Cloud Storage, Azure Blob Storage, MinIO, a local
// filesystem store and an in-memory store.
package store

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors returned by Store implementations. Providers
// translate their SDK-specific failures into these so callers can
// branch with errors.Is regardless of the backend in use.
var (
	// ErrContainerNotFound reports that the requested container
	// (bucket) does not exist.
	ErrContainerNotFound = errors.New("container not found")

	// ErrObjectNotFound reports that the requested object does not
	// exist in the container.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidCredentials reports that the provider rejected the
	// configured credentials. It is terminal: the publish pipeline
	// never retries it.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Container describes a bucket or container in the remote store.
type Container struct {
	Name string
}

// Object describes a stored object.
type Object struct {
	Name string
	Size int64
}

// Store is the interface every storage provider implements.
//
// Implementations translate provider errors into the package sentinels
// where the contract names one. A single Store value is only used from
// one goroutine at a time; concurrent uploads each open their own
// session via an Opener.
type Store interface {
	// GetContainer returns the named container, or ErrContainerNotFound
	// if it does not exist.
	GetContainer(ctx context.Context, name string) (*Container, error)

	// CreateContainer creates the named container and returns it.
	CreateContainer(ctx context.Context, name string) (*Container, error)

	// ListObjects returns all objects in the container.
	ListObjects(ctx context.Context, container string) ([]Object, error)

	// GetObject returns metadata for a single object, or
	// ErrObjectNotFound if it does not exist.
	GetObject(ctx context.Context, container, name string) (*Object, error)

	// ReadObject streams the content of an object. The caller must
	// close the returned reader.
	ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error)

	// UploadObject stores size bytes read from r under the given name,
	// replacing any existing object.
	UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error

	// DeleteObject removes an object. Providers with idempotent
	// deletes return nil for a missing object; the others return
	// ErrObjectNotFound.
	DeleteObject(ctx context.Context, container, name string) error

	// Close releases any resources held by this session.
	Close() error
}

// PublicURLer is an optional capability: stores that can serve their
// containers over HTTP report the container's public base URL.
// Callers discover it with a type assertion.
type PublicURLer interface {
	PublicURL(ctx context.Context, container string) (string, error)
}

// Opener creates store sessions. The publish pipeline opens one
// session for the orchestration work and one per upload task, since
// provider clients are not guaranteed safe for concurrent use.
type Opener interface {
	Open(ctx context.Context) (Store, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Store, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Store, error) {
	return f(ctx)
}
