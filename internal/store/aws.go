package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client the store uses. Tests provide
// mock implementations of this interface.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store publishes to Amazon S3 or any S3-compatible endpoint.
type S3Store struct {
	region      string
	endpointURL string
	client      S3API
}

var (
	_ Store       = (*S3Store)(nil)
	_ PublicURLer = (*S3Store)(nil)
)

// NewS3Store opens an S3 session. The default credential chain is used
// unless both static keys are given. Credentials must resolve at
// construction time; a failure here is ErrInvalidCredentials.
func NewS3Store(ctx context.Context, region, endpointURL string, usePathStyle bool, accessKeyID, secretAccessKey string) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("resolving aws credentials: %w: %w", ErrInvalidCredentials, err)
	}

	var s3Opts []func(*s3.Options)
	if endpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
		})
	}
	if usePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	slog.Debug("S3 store session opened", "region", region, "endpoint", endpointURL)
	return &S3Store{
		region:      region,
		endpointURL: endpointURL,
		client:      s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// NewS3StoreWithClient creates an S3 store with an injected client.
// Used by tests.
func NewS3StoreWithClient(region, endpointURL string, client S3API) *S3Store {
	return &S3Store{region: region, endpointURL: endpointURL, client: client}
}

// GetContainer implements Store.
func (s *S3Store) GetContainer(ctx context.Context, name string) (*Container, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if isS3AuthError(err) {
			return nil, fmt.Errorf("head bucket %q: %w: %w", name, ErrInvalidCredentials, err)
		}
		if isS3NotFound(err) {
			return nil, fmt.Errorf("container %q: %w", name, ErrContainerNotFound)
		}
		return nil, fmt.Errorf("head bucket %q: %w", name, err)
	}
	return &Container{Name: name}, nil
}

// CreateContainer implements Store.
func (s *S3Store) CreateContainer(ctx context.Context, name string) (*Container, error) {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 is the one region that must not be sent as a location
	// constraint.
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		if isS3AuthError(err) {
			return nil, fmt.Errorf("create bucket %q: %w: %w", name, ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return &Container{Name: name}, nil
}

// ListObjects implements Store.
func (s *S3Store) ListObjects(ctx context.Context, container string) ([]Object, error) {
	var out []Object
	var continuation *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(container),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, s.translateErr(err, container, "")
		}
		for _, obj := range resp.Contents {
			out = append(out, Object{
				Name: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return out, nil
}

// GetObject implements Store.
func (s *S3Store) GetObject(ctx context.Context, container, name string) (*Object, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, s.translateErr(err, container, name)
	}
	return &Object{Name: name, Size: aws.ToInt64(resp.ContentLength)}, nil
}

// ReadObject implements Store.
func (s *S3Store) ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, s.translateErr(err, container, name)
	}
	return resp.Body, nil
}

// UploadObject implements Store.
func (s *S3Store) UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(container),
		Key:           aws.String(name),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return s.translateErr(err, container, name)
	}
	return nil
}

// DeleteObject implements Store. S3 deletes are idempotent, so a
// missing object is not an error.
func (s *S3Store) DeleteObject(ctx context.Context, container, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		return s.translateErr(err, container, name)
	}
	return nil
}

// Close implements Store. The S3 client holds no per-session state.
func (s *S3Store) Close() error { return nil }

// PublicURL implements PublicURLer. Without a custom endpoint the
// static website address of the bucket is returned.
func (s *S3Store) PublicURL(ctx context.Context, container string) (string, error) {
	if s.endpointURL != "" {
		return strings.TrimRight(s.endpointURL, "/") + "/" + container, nil
	}
	return fmt.Sprintf("http://%s.s3-website-%s.amazonaws.com", container, s.region), nil
}

// translateErr maps S3 errors for object operations onto the store
// sentinels.
func (s *S3Store) translateErr(err error, container, name string) error {
	switch {
	case isS3AuthError(err):
		return fmt.Errorf("s3 request: %w: %w", ErrInvalidCredentials, err)
	case isS3NoSuchBucket(err):
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	case name != "" && isS3NotFound(err):
		return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	return err
}

// isS3NotFound reports whether err is any S3 not-found error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404", "NoSuchBucket":
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		return httpErr.HTTPStatusCode() == 404
	}
	return false
}

// isS3NoSuchBucket reports whether err names a missing bucket
// specifically.
func isS3NoSuchBucket(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	return errors.As(err, &noSuchBucket)
}

// isS3AuthError reports whether err means the request was signed with
// rejected credentials.
func isS3AuthError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return true
	}
	return false
}
