package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobItem is one entry of a container listing.
type AzureBlobItem struct {
	Name string
	Size int64
}

// AzureBlobAPI is the subset of the Azure blob client the store uses.
// The real client is wrapped by realAzureClient; tests provide mocks.
type AzureBlobAPI interface {
	ContainerExists(ctx context.Context, container string) (bool, error)
	CreateContainer(ctx context.Context, container string) error
	ListBlobs(ctx context.Context, container string) ([]AzureBlobItem, error)
	BlobProperties(ctx context.Context, container, blob string) (int64, error)
	DownloadStream(ctx context.Context, container, blob string) (io.ReadCloser, error)
	UploadStream(ctx context.Context, container, blob string, r io.Reader) error
	DeleteBlob(ctx context.Context, container, blob string) error
}

// AzureStore publishes to Azure Blob Storage.
type AzureStore struct {
	accountURL string
	client     AzureBlobAPI
}

var (
	_ Store       = (*AzureStore)(nil)
	_ PublicURLer = (*AzureStore)(nil)
)

// NewAzureStore opens an Azure Blob Storage session. The account URL
// is derived from the account name when not given explicitly; with a
// connection string neither is needed.
func NewAzureStore(ctx context.Context, account, accountURL, connectionString string, useManagedIdentity bool) (*AzureStore, error) {
	if accountURL == "" && account != "" {
		accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", account)
	}
	if accountURL == "" && connectionString == "" {
		return nil, errors.New("azure store requires an account, an account URL or a connection string")
	}
	client, err := newRealAzureClient(accountURL, connectionString, useManagedIdentity)
	if err != nil {
		return nil, err
	}
	return &AzureStore{accountURL: accountURL, client: client}, nil
}

// NewAzureStoreWithClient creates an Azure store with an injected
// client. Used by tests.
func NewAzureStoreWithClient(accountURL string, client AzureBlobAPI) *AzureStore {
	return &AzureStore{accountURL: accountURL, client: client}
}

// GetContainer implements Store.
func (a *AzureStore) GetContainer(ctx context.Context, name string) (*Container, error) {
	exists, err := a.client.ContainerExists(ctx, name)
	if err != nil {
		return nil, a.translateErr(err, name, "")
	}
	if !exists {
		return nil, fmt.Errorf("container %q: %w", name, ErrContainerNotFound)
	}
	return &Container{Name: name}, nil
}

// CreateContainer implements Store.
func (a *AzureStore) CreateContainer(ctx context.Context, name string) (*Container, error) {
	if err := a.client.CreateContainer(ctx, name); err != nil {
		return nil, a.translateErr(err, name, "")
	}
	return &Container{Name: name}, nil
}

// ListObjects implements Store.
func (a *AzureStore) ListObjects(ctx context.Context, container string) ([]Object, error) {
	items, err := a.client.ListBlobs(ctx, container)
	if err != nil {
		return nil, a.translateErr(err, container, "")
	}
	out := make([]Object, 0, len(items))
	for _, item := range items {
		out = append(out, Object{Name: item.Name, Size: item.Size})
	}
	return out, nil
}

// GetObject implements Store.
func (a *AzureStore) GetObject(ctx context.Context, container, name string) (*Object, error) {
	size, err := a.client.BlobProperties(ctx, container, name)
	if err != nil {
		return nil, a.translateErr(err, container, name)
	}
	return &Object{Name: name, Size: size}, nil
}

// ReadObject implements Store.
func (a *AzureStore) ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	rc, err := a.client.DownloadStream(ctx, container, name)
	if err != nil {
		return nil, a.translateErr(err, container, name)
	}
	return rc, nil
}

// UploadObject implements Store.
func (a *AzureStore) UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error {
	if err := a.client.UploadStream(ctx, container, name, r); err != nil {
		return a.translateErr(err, container, name)
	}
	return nil
}

// DeleteObject implements Store.
func (a *AzureStore) DeleteObject(ctx context.Context, container, name string) error {
	if err := a.client.DeleteBlob(ctx, container, name); err != nil {
		return a.translateErr(err, container, name)
	}
	return nil
}

// Close implements Store. The blob client holds no per-session state.
func (a *AzureStore) Close() error { return nil }

// PublicURL implements PublicURLer.
func (a *AzureStore) PublicURL(ctx context.Context, container string) (string, error) {
	if a.accountURL == "" {
		return "", errors.New("azure account URL not configured")
	}
	return strings.TrimRight(a.accountURL, "/") + "/" + container, nil
}

// translateErr maps Azure blob errors onto the store sentinels.
func (a *AzureStore) translateErr(err error, container, name string) error {
	switch {
	case isAzureAuthError(err):
		return fmt.Errorf("azure request: %w: %w", ErrInvalidCredentials, err)
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	return err
}

// isAzureAuthError reports whether err means the credentials were
// rejected, either by the storage service or by the token provider.
func isAzureAuthError(err error) bool {
	if bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.InvalidAuthenticationInfo,
		bloberror.AuthorizationFailure,
	) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 401 {
		return true
	}
	var authErr *azidentity.AuthenticationFailedError
	return errors.As(err, &authErr)
}
