package store

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// realAzureClient adapts *azblob.Client to AzureBlobAPI.
type realAzureClient struct {
	client *azblob.Client
}

// newRealAzureClient builds the blob service client. Credential
// selection order: connection string when given, then managed identity
// when requested, then the default Azure credential chain.
func newRealAzureClient(accountURL, connectionString string, useManagedIdentity bool) (*realAzureClient, error) {
	if connectionString != "" {
		client, err := azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("azure client from connection string: %w: %w", ErrInvalidCredentials, err)
		}
		return &realAzureClient{client: client}, nil
	}

	var cred azcore.TokenCredential
	var err error
	if useManagedIdentity {
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azure credentials: %w: %w", ErrInvalidCredentials, err)
	}

	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}
	return &realAzureClient{client: client}, nil
}

func (c *realAzureClient) ContainerExists(ctx context.Context, container string) (bool, error) {
	_, err := c.client.ServiceClient().NewContainerClient(container).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *realAzureClient) CreateContainer(ctx context.Context, container string) error {
	_, err := c.client.CreateContainer(ctx, container, nil)
	return err
}

func (c *realAzureClient) ListBlobs(ctx context.Context, container string) ([]AzureBlobItem, error) {
	var out []AzureBlobItem
	pager := c.client.NewListBlobsFlatPager(container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			entry := AzureBlobItem{}
			if item.Name != nil {
				entry.Name = *item.Name
			}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				entry.Size = *item.Properties.ContentLength
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (c *realAzureClient) BlobProperties(ctx context.Context, container, blob string) (int64, error) {
	resp, err := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blob).GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if resp.ContentLength == nil {
		return 0, nil
	}
	return *resp.ContentLength, nil
}

func (c *realAzureClient) DownloadStream(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *realAzureClient) UploadStream(ctx context.Context, container, blob string, r io.Reader) error {
	_, err := c.client.UploadStream(ctx, container, blob, r, nil)
	return err
}

func (c *realAzureClient) DeleteBlob(ctx context.Context, container, blob string) error {
	_, err := c.client.DeleteBlob(ctx, container, blob, nil)
	return err
}
