// Package index regenerates index.html, the flat link page package
// installers resolve against.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/wheelport/wheelport/internal/manifest"
	"github.com/wheelport/wheelport/internal/store"
)

// ObjectName is the name of the index object inside a container.
const ObjectName = "index.html"

// reservedSuffixes mark bookkeeping objects that are never package
// files: the manifest, the index itself and any other json or html.
var reservedSuffixes = []string{".json", ".html"}

// PackageNames lists the package files of a container, sorted by name.
// Bookkeeping objects are filtered out.
func PackageNames(ctx context.Context, st store.Store, container string) ([]string, error) {
	objects, err := st.ListObjects(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("listing container %q: %w", container, err)
	}
	var names []string
	for _, obj := range objects {
		if isReserved(obj.Name) {
			continue
		}
		names = append(names, obj.Name)
	}
	sort.Strings(names)
	return names, nil
}

func isReserved(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Build regenerates the index from the current container listing and
// uploads it, replacing the previous one. Files with a digest in the
// manifest get a #sha256= fragment so installers can verify what they
// download; files without one get a bare link.
func Build(ctx context.Context, st store.Store, container string, m manifest.Manifest) error {
	names, err := PackageNames(ctx, st, container)
	if err != nil {
		return err
	}

	slog.Info("Updating index", "object", ObjectName, "links", len(names))

	var b strings.Builder
	b.WriteString("<html><body><p>\n")
	for _, name := range names {
		if info, ok := m[name]; ok && info.SHA256 != "" {
			fmt.Fprintf(&b, "<li><a href=\"%s#sha256=%s\">%s</a></li>\n", name, info.SHA256, name)
		} else {
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", name, name)
		}
	}
	b.WriteString("</p></body></html>\n")

	body := b.String()
	if err := st.UploadObject(ctx, container, ObjectName, strings.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("uploading %s: %w", ObjectName, err)
	}
	return nil
}
