package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSAttrs carries the object metadata the store needs from a listing
// or stat call.
type GCSAttrs struct {
	Name string
	Size int64
}

// GCSAPI is the subset of the GCS client the store uses. The real
// client is wrapped by realGCSClient; tests provide mocks.
type GCSAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, project string) error
	ListObjects(ctx context.Context, bucket string) ([]GCSAttrs, error)
	ObjectAttrs(ctx context.Context, bucket, object string) (*GCSAttrs, error)
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	DeleteObject(ctx context.Context, bucket, object string) error
	Close() error
}

// realGCSClient adapts *storage.Client to GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.client.Bucket(bucket).Attrs(ctx)
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *realGCSClient) CreateBucket(ctx context.Context, bucket, project string) error {
	return c.client.Bucket(bucket).Create(ctx, project, nil)
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket string) ([]GCSAttrs, error) {
	var out []GCSAttrs
	it := c.client.Bucket(bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, GCSAttrs{Name: attrs.Name, Size: attrs.Size})
	}
	return out, nil
}

func (c *realGCSClient) ObjectAttrs(ctx context.Context, bucket, object string) (*GCSAttrs, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSAttrs{Name: attrs.Name, Size: attrs.Size}, nil
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	return c.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (c *realGCSClient) DeleteObject(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Close() error {
	return c.client.Close()
}

// GCSStore publishes to Google Cloud Storage.
type GCSStore struct {
	project string
	client  GCSAPI
}

var (
	_ Store       = (*GCSStore)(nil)
	_ PublicURLer = (*GCSStore)(nil)
)

// NewGCSStore opens a GCS session using the given service account key
// file, or the application default credentials when the path is empty.
// Failing to resolve credentials is ErrInvalidCredentials.
func NewGCSStore(ctx context.Context, project, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		// The client constructor fails only on credential detection.
		return nil, fmt.Errorf("creating gcs client: %w: %w", ErrInvalidCredentials, err)
	}
	return &GCSStore{project: project, client: &realGCSClient{client: client}}, nil
}

// NewGCSStoreWithClient creates a GCS store with an injected client.
// Used by tests.
func NewGCSStoreWithClient(project string, client GCSAPI) *GCSStore {
	return &GCSStore{project: project, client: client}
}

// GetContainer implements Store.
func (g *GCSStore) GetContainer(ctx context.Context, name string) (*Container, error) {
	exists, err := g.client.BucketExists(ctx, name)
	if err != nil {
		return nil, g.translateErr(err, name, "")
	}
	if !exists {
		return nil, fmt.Errorf("container %q: %w", name, ErrContainerNotFound)
	}
	return &Container{Name: name}, nil
}

// CreateContainer implements Store. GCS requires a project to create
// buckets in.
func (g *GCSStore) CreateContainer(ctx context.Context, name string) (*Container, error) {
	if g.project == "" {
		return nil, fmt.Errorf("creating container %q: gcs project not configured", name)
	}
	if err := g.client.CreateBucket(ctx, name, g.project); err != nil {
		return nil, g.translateErr(err, name, "")
	}
	return &Container{Name: name}, nil
}

// ListObjects implements Store.
func (g *GCSStore) ListObjects(ctx context.Context, container string) ([]Object, error) {
	attrs, err := g.client.ListObjects(ctx, container)
	if err != nil {
		return nil, g.translateErr(err, container, "")
	}
	out := make([]Object, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, Object{Name: a.Name, Size: a.Size})
	}
	return out, nil
}

// GetObject implements Store.
func (g *GCSStore) GetObject(ctx context.Context, container, name string) (*Object, error) {
	attrs, err := g.client.ObjectAttrs(ctx, container, name)
	if err != nil {
		return nil, g.translateErr(err, container, name)
	}
	return &Object{Name: attrs.Name, Size: attrs.Size}, nil
}

// ReadObject implements Store.
func (g *GCSStore) ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	rc, err := g.client.NewReader(ctx, container, name)
	if err != nil {
		return nil, g.translateErr(err, container, name)
	}
	return rc, nil
}

// UploadObject implements Store. GCS reports most write failures at
// Close, when the upload is finalized.
func (g *GCSStore) UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error {
	w := g.client.NewWriter(ctx, container, name)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return g.translateErr(fmt.Errorf("writing object %q: %w", name, err), container, name)
	}
	if err := w.Close(); err != nil {
		return g.translateErr(err, container, name)
	}
	return nil
}

// DeleteObject implements Store.
func (g *GCSStore) DeleteObject(ctx context.Context, container, name string) error {
	if err := g.client.DeleteObject(ctx, container, name); err != nil {
		return g.translateErr(err, container, name)
	}
	return nil
}

// Close implements Store.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// PublicURL implements PublicURLer.
func (g *GCSStore) PublicURL(ctx context.Context, container string) (string, error) {
	return "https://storage.googleapis.com/" + container, nil
}

// translateErr maps GCS errors onto the store sentinels.
func (g *GCSStore) translateErr(err error, container, name string) error {
	switch {
	case isGCSAuthError(err):
		return fmt.Errorf("gcs request: %w: %w", ErrInvalidCredentials, err)
	case errors.Is(err, gcs.ErrBucketNotExist):
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	case errors.Is(err, gcs.ErrObjectNotExist):
		return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		if name != "" {
			return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
		}
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	return err
}

// isGCSAuthError reports whether err is an authentication failure.
func isGCSAuthError(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 401
}
