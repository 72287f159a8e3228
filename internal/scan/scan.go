// Package scan walks the local folder that is about to be published.
package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelport/wheelport/internal/manifest"
)

// Folder reads the files of dir and returns their paths in lexical
// order together with a manifest of their SHA-256 digests and sizes.
// Dot files and subdirectories are skipped. Any unreadable entry
// aborts the scan: publishing a partial folder would leave the remote
// container half updated.
func Folder(dir string) ([]string, manifest.Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading folder %s: %w", dir, err)
	}

	var paths []string
	meta := manifest.Manifest{}
	// os.ReadDir returns entries sorted by name.
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		sum := sha256.Sum256(data)
		meta[name] = manifest.FileInfo{
			SHA256: hex.EncodeToString(sum[:]),
			Size:   int64(len(data)),
		}
		paths = append(paths, path)
	}
	return paths, meta, nil
}
