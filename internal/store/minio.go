package store

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAPI is the subset of the MinIO client the store uses. The real
// client is wrapped by realMinioClient; tests provide mocks.
type MinioAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
	ListObjects(ctx context.Context, bucket string) ([]minio.ObjectInfo, error)
	StatObject(ctx context.Context, bucket, name string) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, name string) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64) error
	RemoveObject(ctx context.Context, bucket, name string) error
}

// realMinioClient adapts *minio.Client to MinioAPI.
type realMinioClient struct {
	client *minio.Client
}

func (c *realMinioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return c.client.BucketExists(ctx, bucket)
}

func (c *realMinioClient) MakeBucket(ctx context.Context, bucket, region string) error {
	return c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (c *realMinioClient) ListObjects(ctx context.Context, bucket string) ([]minio.ObjectInfo, error) {
	var out []minio.ObjectInfo
	for info := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{}) {
		if info.Err != nil {
			return nil, info.Err
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *realMinioClient) StatObject(ctx context.Context, bucket, name string) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{})
}

func (c *realMinioClient) GetObject(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject defers the request until the first read. Stat here so
	// a missing object surfaces now, like on the other providers.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (c *realMinioClient) PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64) error {
	_, err := c.client.PutObject(ctx, bucket, name, r, size, minio.PutObjectOptions{})
	return err
}

func (c *realMinioClient) RemoveObject(ctx context.Context, bucket, name string) error {
	return c.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{})
}

// MinioStore publishes to a MinIO deployment.
type MinioStore struct {
	endpoint string
	secure   bool
	region   string
	client   MinioAPI
}

var (
	_ Store       = (*MinioStore)(nil)
	_ PublicURLer = (*MinioStore)(nil)
)

// NewMinioStore opens a MinIO session with static credentials.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey string, useSSL bool, region string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &MinioStore{
		endpoint: endpoint,
		secure:   useSSL,
		region:   region,
		client:   &realMinioClient{client: client},
	}, nil
}

// NewMinioStoreWithClient creates a MinIO store with an injected
// client. Used by tests.
func NewMinioStoreWithClient(endpoint string, useSSL bool, region string, client MinioAPI) *MinioStore {
	return &MinioStore{endpoint: endpoint, secure: useSSL, region: region, client: client}
}

// GetContainer implements Store.
func (m *MinioStore) GetContainer(ctx context.Context, name string) (*Container, error) {
	exists, err := m.client.BucketExists(ctx, name)
	if err != nil {
		return nil, translateMinioErr(err, name, "")
	}
	if !exists {
		return nil, fmt.Errorf("container %q: %w", name, ErrContainerNotFound)
	}
	return &Container{Name: name}, nil
}

// CreateContainer implements Store.
func (m *MinioStore) CreateContainer(ctx context.Context, name string) (*Container, error) {
	if err := m.client.MakeBucket(ctx, name, m.region); err != nil {
		return nil, translateMinioErr(err, name, "")
	}
	return &Container{Name: name}, nil
}

// ListObjects implements Store.
func (m *MinioStore) ListObjects(ctx context.Context, container string) ([]Object, error) {
	infos, err := m.client.ListObjects(ctx, container)
	if err != nil {
		return nil, translateMinioErr(err, container, "")
	}
	out := make([]Object, 0, len(infos))
	for _, info := range infos {
		out = append(out, Object{Name: info.Key, Size: info.Size})
	}
	return out, nil
}

// GetObject implements Store.
func (m *MinioStore) GetObject(ctx context.Context, container, name string) (*Object, error) {
	info, err := m.client.StatObject(ctx, container, name)
	if err != nil {
		return nil, translateMinioErr(err, container, name)
	}
	return &Object{Name: info.Key, Size: info.Size}, nil
}

// ReadObject implements Store.
func (m *MinioStore) ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	rc, err := m.client.GetObject(ctx, container, name)
	if err != nil {
		return nil, translateMinioErr(err, container, name)
	}
	return rc, nil
}

// UploadObject implements Store.
func (m *MinioStore) UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error {
	if err := m.client.PutObject(ctx, container, name, r, size); err != nil {
		return translateMinioErr(err, container, name)
	}
	return nil
}

// DeleteObject implements Store. MinIO follows S3 semantics: deleting
// a missing object succeeds.
func (m *MinioStore) DeleteObject(ctx context.Context, container, name string) error {
	if err := m.client.RemoveObject(ctx, container, name); err != nil {
		return translateMinioErr(err, container, name)
	}
	return nil
}

// Close implements Store. The MinIO client holds no per-session state.
func (m *MinioStore) Close() error { return nil }

// PublicURL implements PublicURLer.
func (m *MinioStore) PublicURL(ctx context.Context, container string) (string, error) {
	scheme := "http"
	if m.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, m.endpoint, container), nil
}

// translateMinioErr maps MinIO errors onto the store sentinels.
func translateMinioErr(err error, container, name string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("minio request: %w: %w", ErrInvalidCredentials, err)
	}
	if resp.StatusCode == 401 {
		return fmt.Errorf("minio request: %w: %w", ErrInvalidCredentials, err)
	}
	return err
}
