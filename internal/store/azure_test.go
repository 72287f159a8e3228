package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// azureErr builds the service error shape bloberror.HasCode matches on.
func azureErr(code bloberror.Code, status int) error {
	return &azcore.ResponseError{ErrorCode: string(code), StatusCode: status}
}

// mockAzureClient implements AzureBlobAPI for unit testing.
type mockAzureClient struct {
	// containers stores blobs keyed by container, then by blob name.
	containers map[string]map[string][]byte
	// forceErr, when set, is returned by every call.
	forceErr error
	// deleteCalls tracks the number of DeleteBlob calls.
	deleteCalls int
}

func newMockAzureClient() *mockAzureClient {
	return &mockAzureClient{containers: make(map[string]map[string][]byte)}
}

func (m *mockAzureClient) ContainerExists(ctx context.Context, container string) (bool, error) {
	if m.forceErr != nil {
		return false, m.forceErr
	}
	_, ok := m.containers[container]
	return ok, nil
}

func (m *mockAzureClient) CreateContainer(ctx context.Context, container string) error {
	if m.forceErr != nil {
		return m.forceErr
	}
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string][]byte)
	}
	return nil
}

func (m *mockAzureClient) ListBlobs(ctx context.Context, container string) ([]AzureBlobItem, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	blobs, ok := m.containers[container]
	if !ok {
		return nil, azureErr(bloberror.ContainerNotFound, 404)
	}
	var out []AzureBlobItem
	for name, data := range blobs {
		out = append(out, AzureBlobItem{Name: name, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockAzureClient) BlobProperties(ctx context.Context, container, blob string) (int64, error) {
	if m.forceErr != nil {
		return 0, m.forceErr
	}
	blobs, ok := m.containers[container]
	if !ok {
		return 0, azureErr(bloberror.ContainerNotFound, 404)
	}
	data, ok := blobs[blob]
	if !ok {
		return 0, azureErr(bloberror.BlobNotFound, 404)
	}
	return int64(len(data)), nil
}

func (m *mockAzureClient) DownloadStream(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	blobs, ok := m.containers[container]
	if !ok {
		return nil, azureErr(bloberror.ContainerNotFound, 404)
	}
	data, ok := blobs[blob]
	if !ok {
		return nil, azureErr(bloberror.BlobNotFound, 404)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockAzureClient) UploadStream(ctx context.Context, container, blob string, r io.Reader) error {
	if m.forceErr != nil {
		return m.forceErr
	}
	blobs, ok := m.containers[container]
	if !ok {
		return azureErr(bloberror.ContainerNotFound, 404)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	blobs[blob] = data
	return nil
}

func (m *mockAzureClient) DeleteBlob(ctx context.Context, container, blob string) error {
	m.deleteCalls++
	if m.forceErr != nil {
		return m.forceErr
	}
	blobs, ok := m.containers[container]
	if !ok {
		return azureErr(bloberror.ContainerNotFound, 404)
	}
	if _, ok := blobs[blob]; !ok {
		return azureErr(bloberror.BlobNotFound, 404)
	}
	delete(blobs, blob)
	return nil
}

func newTestAzureStore() (*AzureStore, *mockAzureClient) {
	mock := newMockAzureClient()
	return NewAzureStoreWithClient("https://testaccount.blob.core.windows.net", mock), mock
}

func TestAzureContainerLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestAzureStore()

	if _, err := st.GetContainer(ctx, "wheels"); !errors.Is(err, ErrContainerNotFound) {
		t.Fatalf("GetContainer on missing container: %v, want ErrContainerNotFound", err)
	}
	if _, err := st.CreateContainer(ctx, "wheels"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	c, err := st.GetContainer(ctx, "wheels")
	if err != nil {
		t.Fatalf("GetContainer: %v", err)
	}
	if c.Name != "wheels" {
		t.Errorf("container name = %q, want %q", c.Name, "wheels")
	}
}

func TestAzureObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, mock := newTestAzureStore()
	st.CreateContainer(ctx, "wheels")

	if err := st.UploadObject(ctx, "wheels", "pkg-1.0.whl", strings.NewReader("payload"), 7); err != nil {
		t.Fatalf("UploadObject: %v", err)
	}

	obj, err := st.GetObject(ctx, "wheels", "pkg-1.0.whl")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if obj.Size != 7 {
		t.Errorf("object size = %d, want 7", obj.Size)
	}

	rc, err := st.ReadObject(ctx, "wheels", "pkg-1.0.whl")
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "payload" {
		t.Errorf("object content = %q, want %q", data, "payload")
	}

	if err := st.DeleteObject(ctx, "wheels", "pkg-1.0.whl"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := st.DeleteObject(ctx, "wheels", "pkg-1.0.whl"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("DeleteObject on missing blob: %v, want ErrObjectNotFound", err)
	}
	if mock.deleteCalls != 2 {
		t.Errorf("deleteCalls = %d, want 2", mock.deleteCalls)
	}
}

func TestAzureListObjects(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestAzureStore()
	st.CreateContainer(ctx, "wheels")
	st.UploadObject(ctx, "wheels", "b.whl", strings.NewReader("bb"), 2)
	st.UploadObject(ctx, "wheels", "a.whl", strings.NewReader("a"), 1)

	objects, err := st.ListObjects(ctx, "wheels")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 2 || objects[0].Name != "a.whl" || objects[1].Name != "b.whl" {
		t.Errorf("ListObjects = %v", objects)
	}

	if _, err := st.ListObjects(ctx, "missing"); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("ListObjects on missing container: %v, want ErrContainerNotFound", err)
	}
}

func TestAzureAuthErrorTranslation(t *testing.T) {
	ctx := context.Background()
	st, mock := newTestAzureStore()

	mock.forceErr = azureErr(bloberror.AuthenticationFailed, 403)
	if _, err := st.GetContainer(ctx, "wheels"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("GetContainer: %v, want ErrInvalidCredentials", err)
	}
	if err := st.UploadObject(ctx, "wheels", "a.whl", strings.NewReader("x"), 1); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("UploadObject: %v, want ErrInvalidCredentials", err)
	}

	// A bare 401 without a storage error code still counts.
	mock.forceErr = &azcore.ResponseError{StatusCode: 401}
	if _, err := st.ListObjects(ctx, "wheels"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ListObjects: %v, want ErrInvalidCredentials", err)
	}
}

func TestAzurePublicURL(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestAzureStore()

	url, err := st.PublicURL(ctx, "wheels")
	if err != nil {
		t.Fatalf("PublicURL: %v", err)
	}
	if url != "https://testaccount.blob.core.windows.net/wheels" {
		t.Errorf("url = %q", url)
	}

	st = NewAzureStoreWithClient("", newMockAzureClient())
	if _, err := st.PublicURL(ctx, "wheels"); err == nil {
		t.Error("expected an error without an account URL")
	}
}
