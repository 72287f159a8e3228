package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDirStoreContainerLifecycle(t *testing.T) {
	ctx := context.Background()
	st, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

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
	// Creating again is idempotent.
	if _, err := st.CreateContainer(ctx, "wheels"); err != nil {
		t.Errorf("CreateContainer (existing): %v", err)
	}
}

func TestDirStoreObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
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
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("reading object: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("object content = %q, want %q", data, "payload")
	}

	if err := st.DeleteObject(ctx, "wheels", "pkg-1.0.whl"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := st.GetObject(ctx, "wheels", "pkg-1.0.whl"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("GetObject after delete: %v, want ErrObjectNotFound", err)
	}
	if err := st.DeleteObject(ctx, "wheels", "pkg-1.0.whl"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("DeleteObject on missing object: %v, want ErrObjectNotFound", err)
	}
}

func TestDirStoreUploadReplaces(t *testing.T) {
	ctx := context.Background()
	st, _ := NewDirStore(t.TempDir())
	st.CreateContainer(ctx, "wheels")

	st.UploadObject(ctx, "wheels", "a.whl", strings.NewReader("old"), 3)
	if err := st.UploadObject(ctx, "wheels", "a.whl", strings.NewReader("newer"), 5); err != nil {
		t.Fatalf("UploadObject: %v", err)
	}

	rc, err := st.ReadObject(ctx, "wheels", "a.whl")
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "newer" {
		t.Errorf("content after replace = %q, want %q", data, "newer")
	}
}

func TestDirStoreUploadSizeMismatch(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	st, _ := NewDirStore(root)
	st.CreateContainer(ctx, "wheels")

	if err := st.UploadObject(ctx, "wheels", "a.whl", strings.NewReader("abc"), 9); err == nil {
		t.Fatal("expected an error for a size mismatch")
	}
	// The failed upload must not leave a partial object behind.
	if _, err := st.GetObject(ctx, "wheels", "a.whl"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("partial object left behind: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, ".tmp"))
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned up, %d entries left", len(entries))
	}
}

func TestDirStoreUploadToMissingContainer(t *testing.T) {
	ctx := context.Background()
	st, _ := NewDirStore(t.TempDir())

	err := st.UploadObject(ctx, "nope", "a.whl", strings.NewReader("x"), 1)
	if !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("UploadObject: %v, want ErrContainerNotFound", err)
	}
}

func TestDirStoreListSkipsHiddenAndDirs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	st, _ := NewDirStore(root)
	st.CreateContainer(ctx, "wheels")
	st.UploadObject(ctx, "wheels", "b.whl", strings.NewReader("bb"), 2)
	st.UploadObject(ctx, "wheels", "a.whl", strings.NewReader("a"), 1)

	containerDir := filepath.Join(root, "wheels")
	if err := os.WriteFile(filepath.Join(containerDir, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatalf("planting hidden file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(containerDir, "subdir"), 0o755); err != nil {
		t.Fatalf("planting subdirectory: %v", err)
	}

	objects, err := st.ListObjects(ctx, "wheels")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	want := []Object{{Name: "a.whl", Size: 1}, {Name: "b.whl", Size: 2}}
	if !reflect.DeepEqual(objects, want) {
		t.Errorf("ListObjects = %v, want %v", objects, want)
	}
}

func TestDirStoreRejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	st, _ := NewDirStore(t.TempDir())
	st.CreateContainer(ctx, "wheels")

	for _, name := range []string{"", ".", "..", "a/b.whl", `a\b.whl`} {
		if err := st.UploadObject(ctx, "wheels", name, strings.NewReader("x"), 1); err == nil {
			t.Errorf("UploadObject(%q) succeeded, want error", name)
		}
		if _, err := st.GetObject(ctx, "wheels", name); err == nil {
			t.Errorf("GetObject(%q) succeeded, want error", name)
		}
	}
}

func TestDirStoreSweepsTempFiles(t *testing.T) {
	root := t.TempDir()
	if _, err := NewDirStore(root); err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	leftover := filepath.Join(root, ".tmp", "a.whl.deadbeef")
	if err := os.WriteFile(leftover, []byte("partial"), 0o644); err != nil {
		t.Fatalf("planting leftover temp file: %v", err)
	}

	if _, err := NewDirStore(root); err != nil {
		t.Fatalf("NewDirStore (reopen): %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Errorf("leftover temp file survived the sweep: %v", err)
	}
}

func TestDirStorePublicURL(t *testing.T) {
	ctx := context.Background()
	st, _ := NewDirStore(t.TempDir())
	st.CreateContainer(ctx, "wheels")

	url, err := st.PublicURL(ctx, "wheels")
	if err != nil {
		t.Fatalf("PublicURL: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("url = %q, want a file:// prefix", url)
	}
	if !strings.HasSuffix(url, "/wheels") {
		t.Errorf("url = %q, want a /wheels suffix", url)
	}

	if _, err := st.PublicURL(ctx, "missing"); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("PublicURL for missing container: %v, want ErrContainerNotFound", err)
	}
}
