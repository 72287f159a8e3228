// Package manifest maintains metadata.json, the per-container record
// of published file digests and sizes.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wheelport/wheelport/internal/store"
)

// ObjectName is the name of the manifest object inside a container.
const ObjectName = "metadata.json"

// FileInfo records the digest and size of one published file.
type FileInfo struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest maps file names to their recorded info.
type Manifest map[string]FileInfo

// Load fetches and parses the container manifest. A container that has
// never been published to has no manifest object, which yields an
// empty manifest. A manifest that exists but does not parse is an
// error: continuing would silently drop the digests of every file
// already published.
func Load(ctx context.Context, st store.Store, container string) (Manifest, error) {
	if _, err := st.GetObject(ctx, container, ObjectName); err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("checking manifest: %w", err)
	}

	rc, err := st.ReadObject(ctx, container, ObjectName)
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ObjectName, err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// Merge combines the remote manifest with the locally scanned one into
// a new map. Local entries win on conflict; remote entries for files
// not present locally are preserved. Neither input is modified.
func Merge(remote, local Manifest) Manifest {
	merged := make(Manifest, len(remote)+len(local))
	for name, info := range remote {
		merged[name] = info
	}
	for name, info := range local {
		merged[name] = info
	}
	return merged
}

// Save uploads the manifest, replacing the previous object. Map keys
// marshal in sorted order, so equal manifests produce identical bytes.
func Save(ctx context.Context, st store.Store, container string, m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	slog.Info("Uploading manifest", "object", ObjectName, "entries", len(m))
	if err := st.UploadObject(ctx, container, ObjectName, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("uploading %s: %w", ObjectName, err)
	}
	return nil
}
