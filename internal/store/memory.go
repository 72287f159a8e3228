package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// MemStore is an in-memory Store used for tests and dry runs. It is
// safe for concurrent use, so a single instance can back every session
// an Opener hands out.
//
// With a snapshot path configured the content is persisted to a SQLite
// file: loaded at construction, written on session close and on a
// background interval while the store is alive.
type MemStore struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte

	snapshotPath string
	stopSnapshot chan struct{}
	snapshotDone chan struct{}
	stopOnce     sync.Once
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store without persistence.
func NewMemStore() *MemStore {
	return &MemStore{
		containers: make(map[string]map[string][]byte),
	}
}

// NewMemStoreWithSnapshot returns an in-memory store persisted to a
// SQLite file at path. An existing snapshot is loaded first, then a
// background goroutine rewrites it every interval until Shutdown.
func NewMemStoreWithSnapshot(path string, interval time.Duration) (*MemStore, error) {
	m := NewMemStore()
	m.snapshotPath = path
	if err := m.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", path, err)
	}
	m.stopSnapshot = make(chan struct{})
	m.snapshotDone = make(chan struct{})
	go m.snapshotLoop(interval)
	return m, nil
}

// GetContainer implements Store.
func (m *MemStore) GetContainer(ctx context.Context, name string) (*Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.containers[name]; !ok {
		return nil, fmt.Errorf("container %q: %w", name, ErrContainerNotFound)
	}
	return &Container{Name: name}, nil
}

// CreateContainer implements Store. Creating a container that already
// exists is not an error.
func (m *MemStore) CreateContainer(ctx context.Context, name string) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[name]; !ok {
		m.containers[name] = make(map[string][]byte)
	}
	return &Container{Name: name}, nil
}

// ListObjects implements Store. Objects are returned sorted by name,
// matching the listing order of the hosted providers.
func (m *MemStore) ListObjects(ctx context.Context, container string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects, ok := m.containers[container]
	if !ok {
		return nil, fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	out := make([]Object, 0, len(objects))
	for name, data := range objects {
		out = append(out, Object{Name: name, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetObject implements Store.
func (m *MemStore) GetObject(ctx context.Context, container, name string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects, ok := m.containers[container]
	if !ok {
		return nil, fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	data, ok := objects[name]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	return &Object{Name: name, Size: int64(len(data))}, nil
}

// ReadObject implements Store.
func (m *MemStore) ReadObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects, ok := m.containers[container]
	if !ok {
		return nil, fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	data, ok := objects[name]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// UploadObject implements Store.
func (m *MemStore) UploadObject(ctx context.Context, container, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading upload body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("upload body for %q: read %d bytes, expected %d", name, len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.containers[container]
	if !ok {
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	objects[name] = data
	return nil
}

// DeleteObject implements Store.
func (m *MemStore) DeleteObject(ctx context.Context, container, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.containers[container]
	if !ok {
		return fmt.Errorf("container %q: %w", container, ErrContainerNotFound)
	}
	if _, ok := objects[name]; !ok {
		return fmt.Errorf("object %q: %w", name, ErrObjectNotFound)
	}
	delete(objects, name)
	return nil
}

// Close implements Store. When persistence is enabled the current
// content is flushed to the snapshot file; the store itself stays
// usable so other sessions sharing it are unaffected.
func (m *MemStore) Close() error {
	if m.snapshotPath == "" {
		return nil
	}
	return m.writeSnapshot()
}

// Shutdown stops the background snapshot goroutine and writes a final
// snapshot. It is a no-op for stores without persistence.
func (m *MemStore) Shutdown() error {
	if m.snapshotPath == "" {
		return nil
	}
	m.stopOnce.Do(func() {
		close(m.stopSnapshot)
		<-m.snapshotDone
	})
	return m.writeSnapshot()
}

func (m *MemStore) snapshotLoop(interval time.Duration) {
	defer close(m.snapshotDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSnapshot:
			return
		case <-ticker.C:
			if err := m.writeSnapshot(); err != nil {
				slog.Error("Memory store snapshot failed", "path", m.snapshotPath, "error", err)
			}
		}
	}
}

// loadSnapshot restores the store from the snapshot file. A missing
// file leaves the store empty.
func (m *MemStore) loadSnapshot() error {
	if _, err := os.Stat(m.snapshotPath); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", m.snapshotPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='objects'`).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := db.Query(`SELECT name FROM containers`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		m.containers[name] = make(map[string][]byte)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = db.Query(`SELECT container, name, data FROM objects`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var container, name string
		var data []byte
		if err := rows.Scan(&container, &name, &data); err != nil {
			return err
		}
		objects, ok := m.containers[container]
		if !ok {
			objects = make(map[string][]byte)
			m.containers[container] = objects
		}
		objects[name] = data
	}
	return rows.Err()
}

// writeSnapshot writes the full store content to a temporary SQLite
// file and renames it over the snapshot path.
func (m *MemStore) writeSnapshot() error {
	m.mu.RLock()
	containers := make(map[string]map[string][]byte, len(m.containers))
	for cname, objects := range m.containers {
		copied := make(map[string][]byte, len(objects))
		for name, data := range objects {
			copied[name] = data
		}
		containers[cname] = copied
	}
	m.mu.RUnlock()

	tmpPath := m.snapshotPath + ".tmp"
	os.Remove(tmpPath)

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE containers (name TEXT PRIMARY KEY);
		CREATE TABLE objects (
			container TEXT NOT NULL,
			name      TEXT NOT NULL,
			data      BLOB NOT NULL,
			PRIMARY KEY (container, name)
		);
	`); err != nil {
		db.Close()
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return err
	}

	cnames := make([]string, 0, len(containers))
	for cname := range containers {
		cnames = append(cnames, cname)
	}
	sort.Strings(cnames)

	for _, cname := range cnames {
		if _, err := tx.Exec(`INSERT INTO containers (name) VALUES (?)`, cname); err != nil {
			tx.Rollback()
			db.Close()
			return err
		}
		objects := containers[cname]
		names := make([]string, 0, len(objects))
		for name := range objects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := tx.Exec(`INSERT INTO objects (container, name, data) VALUES (?, ?, ?)`,
				cname, name, objects[name]); err != nil {
				tx.Rollback()
				db.Close()
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, m.snapshotPath); err != nil {
		return err
	}
	// SQLite sidecar files of the temp database are stale after the
	// rename.
	os.Remove(tmpPath + "-wal")
	os.Remove(tmpPath + "-shm")
	return nil
}
