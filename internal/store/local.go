package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelport/wheelport/internal/uid"
)

// DirStore stores containers as directories under a root directory and
// objects as plain files inside them. It exists for offline runs and
// rehearsals against a local wheelhouse mirror.
//
// Uploads are atomic: content is written to a temp file under
// root/.tmp, fsynced, then renamed into the container directory.
type DirStore struct {
	root string
}

var _ Store = (*DirStore)(nil)

// NewDirStore creates the root (and its temp directory) if needed and
// sweeps temp files left behind by interrupted runs.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	tmpDir := filepath.Join(root, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		os.Remove(filepath.Join(tmpDir, entry.Name()))
	}

	return &DirStore{root: root}, nil
}

// validName rejects object and container names that would escape the
// store layout on disk.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func (d *DirStore) containerPath(container string) string {
	return filepath.Join(d.root, container)
}

func (d *DirStore) objectPath(container, name string) string {
	return filepath.Join(d.root, container, name)
}

func (d *DirStore) tempPath(name string) string {
	return filepath.Join(d.root, ".tmp", name+"."+uid.New())
}

// GetContainer implements Store.
func (d *DirStore) GetContainer(ctx context.Context, name string) (*Container, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid container name %q", name)
	}
	info, err := os.Stat(d.containerPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("container %q: %w", name, ErrContainerNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("container path %q is not a directory", name)
	}
	return &Container{Name: name}, nil
}

// CreateContainer implements Store.
func (d *DirStore) CreateContainer(ctx context.Context, name string) (*Container, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid container name %q", name)
	}
	if err := os.MkdirAll(d.containerPath(name), 0o755); err != nil {
		return nil, fmt.Errorf("creating container %q: %w", name, err)
	}
	return &Container{Name: name}, nil
}

// ListObjects implements Store. Dot files and subdirectories are not
// objects and are skipped.
func (d *DirStore) ListObjects(ctx context.Context, container string) ([]Object, error) {
	entries, err := os.ReadDir(d.containerPath(container))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	if err != nil {
		return nil, err
	}

	var out []Object
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, Object{Name: name, Size: info.Size()})
	}
	return out, nil
}

// GetObject implements Store.
func (d *DirStore) GetObject(ctx context.Context, container, name string) (*Object, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid object name %q", name)
	}
	info, err := os.Stat(d.objectPath(container, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	return &Object{Name: name, Size: info.Size()}, nil
}

// ReadObject implements Store.
func (d *DirStore) ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid object name %q", name)
	}
	f, err := os.Open(d.objectPath(container, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UploadObject implements Store.
func (d *DirStore) UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error {
	if !validName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	if _, err := os.Stat(d.containerPath(container)); os.IsNotExist(err) {
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}

	tmp := d.tempPath(name)
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing object data: %w", err)
	}
	if size >= 0 && n != size {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("upload body for %q: wrote %d bytes, expected %d", name, n, size)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp, d.objectPath(container, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("moving object into place: %w", err)
	}
	return nil
}

// DeleteObject implements Store.
func (d *DirStore) DeleteObject(ctx context.Context, container, name string) error {
	if !validName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	err := os.Remove(d.objectPath(container, name))
	if os.IsNotExist(err) {
		return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	return err
}

// Close implements Store.
func (d *DirStore) Close() error { return nil }

// PublicURL implements PublicURLer with a file:// URL, which browsers
// and pip accept for a local wheelhouse.
func (d *DirStore) PublicURL(ctx context.Context, container string) (string, error) {
	if _, err := d.GetContainer(ctx, container); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(d.containerPath(container))
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
